package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ironlog/internal/http/errors"
	mw "github.com/dropDatabas3/ironlog/internal/http/middlewares"
	"github.com/dropDatabas3/ironlog/internal/ownership"
)

type Authorizer interface {
	CanAccess(ctx context.Context, caller ownership.Caller, ref ownership.Ref) bool
}

type accessHandler struct {
	authz  Authorizer
	authMW mw.Middleware
}

func NewAccessHandler(authz Authorizer, authMW mw.Middleware) *accessHandler {
	return &accessHandler{authz: authz, authMW: authMW}
}

func (h *accessHandler) Register(r chi.Router) {
	r.With(h.authMW, mw.RequireUser()).Get("/v1/access/{kind}/{id}", h.handleCheck)
}

// handleCheck responde 204 si el caller puede operar sobre el recurso y 404
// en cualquier otro caso: no se distingue "no existe" de "no es tuyo".
func (h *accessHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	kind, ok := ownership.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("kind"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("id"))
		return
	}
	callerID, _ := mw.CallerID(r.Context())
	role, _ := mw.CallerRole(r.Context())

	if !h.authz.CanAccess(r.Context(), ownership.Caller{ID: callerID, Role: role}, ownership.Ref{Kind: kind, ID: id}) {
		errors.WriteError(w, errors.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
