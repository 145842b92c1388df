package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ironlog/internal/http/errors"
	mw "github.com/dropDatabas3/ironlog/internal/http/middlewares"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// TokenCutoff corta los tokens ya emitidos de un subject.
type TokenCutoff interface {
	InvalidateTokens(ctx context.Context, subject string) error
}

type adminHandler struct {
	tokens Tokens
	cutoff TokenCutoff
	authMW mw.Middleware
}

func NewAdminHandler(tokens Tokens, cutoff TokenCutoff, authMW mw.Middleware) *adminHandler {
	return &adminHandler{tokens: tokens, cutoff: cutoff, authMW: authMW}
}

func (h *adminHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authMW, mw.RequireRole(identity.RoleAdmin))
		r.Post("/v1/admin/users/{subject}/revoke", h.handleRevokeAll)
	})
}

type revokeAllResponse struct {
	Subject string `json:"subject"`
	Revoked int    `json:"revoked_refresh_tokens"`
}

// handleRevokeAll: "logout everywhere" de un usuario. Primero el cutoff (corta
// los access vivos), después los refresh del índice.
func (h *adminHandler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	subject := strings.TrimSpace(chi.URLParam(r, "subject"))
	if subject == "" {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("subject"))
		return
	}
	ctx := r.Context()
	if err := h.cutoff.InvalidateTokens(ctx, subject); err != nil {
		errors.WriteError(w, err)
		return
	}
	n, err := h.tokens.RevokeAllForSubject(ctx, subject)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	logger.From(ctx).Info("subject tokens revoked", logger.Subject(subject), logger.Count(n))
	writeJSON(w, http.StatusOK, revokeAllResponse{Subject: subject, Revoked: n})
}
