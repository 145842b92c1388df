package middlewares

import (
	"context"

	"github.com/dropDatabas3/ironlog/internal/authn"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
)

type ctxKey string

const (
	ctxIdentityKey  ctxKey = "identity"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithIdentity inyecta la identidad autenticada en el contexto.
func WithIdentity(ctx context.Context, id *authn.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetIdentity retorna nil si el request no pasó por RequireAuth.
func GetIdentity(ctx context.Context) *authn.Identity {
	if id, ok := ctx.Value(ctxIdentityKey).(*authn.Identity); ok {
		return id
	}
	return nil
}

// CallerID es el id local del usuario autenticado. Sin autenticación
// devuelve (0, false), nunca un error.
func CallerID(ctx context.Context) (int64, bool) {
	id := GetIdentity(ctx)
	if id == nil || id.Record == nil {
		return 0, false
	}
	return id.Record.ID, true
}

// CallerEmail es el email del registro local del usuario autenticado.
func CallerEmail(ctx context.Context) (string, bool) {
	id := GetIdentity(ctx)
	if id == nil || id.Record == nil || id.Record.Email == "" {
		return "", false
	}
	return id.Record.Email, true
}

// CallerRole sale del registro, no de las claims: un cambio de rol aplica
// sin esperar a que expire el access.
func CallerRole(ctx context.Context) (identity.Role, bool) {
	id := GetIdentity(ctx)
	if id == nil || id.Record == nil {
		return "", false
	}
	return id.Record.Role, true
}

// GetClaims retorna las claims verificadas del bearer, o nil.
func GetClaims(ctx context.Context) *jwt.Claims {
	if id := GetIdentity(ctx); id != nil {
		return id.Claims
	}
	return nil
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}
