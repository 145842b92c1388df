package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/ironlog/internal/http/errors"
	"github.com/dropDatabas3/ironlog/internal/identity"
)

// RequireRole verifica que el caller tenga al menos uno de los roles.
// Debe usarse después de RequireAuth.
func RequireRole(roles ...identity.Role) Middleware {
	allowed := make(map[identity.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := CallerRole(r.Context())
			if !ok {
				errors.WriteError(w, errors.ErrNotAuthenticated)
				return
			}
			if _, ok := allowed[role]; !ok {
				errors.WriteError(w, errors.ErrAccessDenied.WithDetail("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
