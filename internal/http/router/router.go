// Package router arma el chi.Router con los middlewares globales y registra
// cada grupo de handlers.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ironlog/internal/http/errors"
	"github.com/dropDatabas3/ironlog/internal/http/handlers"
	mw "github.com/dropDatabas3/ironlog/internal/http/middlewares"
	"github.com/dropDatabas3/ironlog/internal/rate"
)

type Deps struct {
	Authenticator mw.Authenticator
	Login         handlers.Login
	Tokens        handlers.Tokens
	Cutoff        handlers.TokenCutoff
	Authorizer    handlers.Authorizer
	JWKS          handlers.JWKSSource
	Metrics       http.Handler
	Checks        []handlers.Check
	CacheStats    handlers.CacheStats // nil = /readyz sin stats

	// nil = sin rate limit
	LoginLimiter   rate.Limiter
	RefreshLimiter rate.Limiter
}

// registrar lo implementa cada grupo de handlers.
type registrar interface {
	Register(r chi.Router)
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})

	authMW := mw.RequireAuth(d.Authenticator)
	var loginRL, refreshRL mw.Middleware
	if d.LoginLimiter != nil {
		loginRL = mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.LoginLimiter, KeyFunc: mw.IPOnlyRateKey})
	}
	if d.RefreshLimiter != nil {
		refreshRL = mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.RefreshLimiter, KeyFunc: mw.IPOnlyRateKey})
	}

	for _, h := range []registrar{
		handlers.NewSystemHandler(d.JWKS, d.Metrics, d.CacheStats, d.Checks...),
		handlers.NewAuthHandler(d.Login, d.Tokens, authMW, loginRL, refreshRL),
		handlers.NewMeHandler(authMW),
		handlers.NewAccessHandler(d.Authorizer, authMW),
		handlers.NewAdminHandler(d.Tokens, d.Cutoff, authMW),
	} {
		h.Register(r)
	}
	return r
}
