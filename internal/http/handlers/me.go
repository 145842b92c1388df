package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ironlog/internal/http/errors"
	mw "github.com/dropDatabas3/ironlog/internal/http/middlewares"
	"github.com/dropDatabas3/ironlog/internal/identity"
)

type MeResponse struct {
	ID         int64  `json:"id"`
	Subject    string `json:"subject"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	PictureURL string `json:"picture_url,omitempty"`
	Role       string `json:"role"`
}

func meResponse(rec *identity.Record) MeResponse {
	return MeResponse{
		ID:         rec.ID,
		Subject:    rec.Subject,
		Email:      rec.Email,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		PictureURL: rec.PictureURL,
		Role:       string(rec.Role),
	}
}

type meHandler struct {
	authMW mw.Middleware
}

func NewMeHandler(authMW mw.Middleware) *meHandler { return &meHandler{authMW: authMW} }

func (h *meHandler) Register(r chi.Router) {
	r.With(h.authMW, mw.RequireUser()).Get("/v1/me", h.handleMe)
}

func (h *meHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := mw.GetIdentity(r.Context())
	if id == nil || id.Record == nil {
		errors.WriteError(w, errors.ErrNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, meResponse(id.Record))
}
