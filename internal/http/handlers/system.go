package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ironlog/internal/cache"
	"github.com/dropDatabas3/ironlog/internal/http/errors"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// JWKSSource publica las claves públicas vigentes (activa + retiradas).
type JWKSSource interface {
	JWKSJSON() []byte
}

// CacheStats expone el estado del cache en /readyz.
type CacheStats interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// Check es una dependencia que /readyz verifica.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type systemHandler struct {
	jwks    JWKSSource
	checks  []Check
	metrics http.Handler
	stats   CacheStats // opcional
}

func NewSystemHandler(jwks JWKSSource, metrics http.Handler, stats CacheStats, checks ...Check) *systemHandler {
	return &systemHandler{jwks: jwks, checks: checks, metrics: metrics, stats: stats}
}

func (h *systemHandler) Register(r chi.Router) {
	r.Get("/.well-known/jwks.json", h.handleJWKS)
	r.Get("/readyz", h.handleReadyz)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
}

func (h *systemHandler) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.jwks.JWKSJSON())
}

type readyzResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Cache  *cache.Stats      `json:"cache,omitempty"`
}

func (h *systemHandler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := readyzResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	for _, c := range h.checks {
		if err := c.Fn(ctx); err != nil {
			logger.From(ctx).Error("readiness check failed", logger.String("check", c.Name), logger.Err(err))
			resp.Checks[c.Name] = "fail"
			resp.Status = "unavailable"
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	// Stats es informativo: si falla no cambia el estado.
	if h.stats != nil {
		if st, err := h.stats.Stats(ctx); err == nil {
			resp.Cache = &st
		} else {
			logger.From(ctx).Warn("cache stats unavailable", logger.Err(err))
		}
	}
	if resp.Status != "ready" {
		writeJSON(w, errors.ErrServiceUnavailable.HTTPStatus, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
