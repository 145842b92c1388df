package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ironlog/internal/http/errors"
	mw "github.com/dropDatabas3/ironlog/internal/http/middlewares"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
	"github.com/dropDatabas3/ironlog/internal/refresh"
)

// Login verifica el id token del provider y aprovisiona el registro local.
type Login interface {
	Login(ctx context.Context, provider, idToken string) (*identity.Record, error)
}

// Tokens es la parte de refresh.Manager que usan los handlers.
type Tokens interface {
	IssuePair(ctx context.Context, subject, role string) (refresh.Pair, error)
	Rotate(ctx context.Context, oldRefresh, subject string) (refresh.Pair, error)
	Logout(ctx context.Context, access *jwt.Claims, accessRaw, refreshRaw string) error
	RevokeAllForSubject(ctx context.Context, subject string) (int, error)
}

type LoginRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func tokenResponse(p refresh.Pair, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:      p.Access.Raw,
		TokenType:        "Bearer",
		ExpiresIn:        int64(p.Access.ExpiresAt.Sub(now).Seconds()),
		RefreshToken:     p.Refresh.Raw,
		RefreshExpiresIn: int64(p.Refresh.ExpiresAt.Sub(now).Seconds()),
	}
}

type authHandler struct {
	login  Login
	tokens Tokens
	authMW mw.Middleware
	// rate limit por endpoint; nil = sin límite
	loginRL, refreshRL mw.Middleware
}

func NewAuthHandler(login Login, tokens Tokens, authMW, loginRL, refreshRL mw.Middleware) *authHandler {
	noop := func(next http.Handler) http.Handler { return next }
	if loginRL == nil {
		loginRL = noop
	}
	if refreshRL == nil {
		refreshRL = noop
	}
	return &authHandler{login: login, tokens: tokens, authMW: authMW, loginRL: loginRL, refreshRL: refreshRL}
}

func (h *authHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.With(h.loginRL).Post("/v1/auth/login", h.handleLogin)
		r.With(h.refreshRL).Post("/v1/auth/refresh", h.handleRefresh)
		r.With(h.authMW).Post("/v1/auth/logout", h.handleLogout)
	})
}

func (h *authHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !readJSON(w, r, &req, false) {
		return
	}
	req.Provider = strings.TrimSpace(req.Provider)
	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.Provider == "" || req.IDToken == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("provider y id_token son obligatorios"))
		return
	}

	ctx := r.Context()
	rec, err := h.login.Login(ctx, req.Provider, req.IDToken)
	if err != nil {
		logger.From(ctx).Info("login rejected", logger.Provider(req.Provider), logger.Err(err))
		errors.WriteError(w, err)
		return
	}
	pair, err := h.tokens.IssuePair(ctx, rec.Subject, string(rec.Role))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(pair, time.Now()))
}

func (h *authHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !readJSON(w, r, &req, false) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("refresh_token es obligatorio"))
		return
	}

	pair, err := h.tokens.Rotate(r.Context(), req.RefreshToken, "")
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(pair, time.Now()))
}

// handleLogout revoca el access del request y, si viene en el body, el refresh.
func (h *authHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := mw.GetIdentity(r.Context())
	if id == nil {
		errors.WriteError(w, errors.ErrNotAuthenticated)
		return
	}
	var req RefreshRequest
	if !readJSON(w, r, &req, true) {
		return
	}
	if err := h.tokens.Logout(r.Context(), id.Claims, id.Raw, strings.TrimSpace(req.RefreshToken)); err != nil {
		errors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
