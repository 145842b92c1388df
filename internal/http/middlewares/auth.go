package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/ironlog/internal/authn"
	"github.com/dropDatabas3/ironlog/internal/http/errors"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// Authenticator resuelve un bearer a una identidad local.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*authn.Identity, error)
}

// BearerToken extrae el token de Authorization: Bearer <JWT>.
func BearerToken(r *http.Request) (string, bool) {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < len("bearer ") || !strings.EqualFold(ah[:len("bearer ")], "bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(ah[len("bearer "):])
	return raw, raw != ""
}

// RequireAuth valida el bearer y guarda la identidad en el contexto.
// Sin token o con token inválido responde 401.
func RequireAuth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}

			id, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				appErr := errors.FromError(err)
				if appErr.HTTPStatus == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				}
				errors.WriteError(w, appErr)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(id.Record.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser verifica que haya un usuario autenticado en el contexto.
// Debe usarse después de RequireAuth.
func RequireUser() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := CallerID(r.Context()); !ok {
				errors.WriteError(w, errors.ErrNotAuthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
