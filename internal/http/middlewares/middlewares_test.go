package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ironlog/internal/authn"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/rate"
)

type fakeAuth map[string]*authn.Identity

func (f fakeAuth) Authenticate(_ context.Context, raw string) (*authn.Identity, error) {
	if id, ok := f[raw]; ok {
		return id, nil
	}
	if raw == "expired" {
		return nil, jwt.ErrExpired
	}
	return nil, jwt.ErrInvalidSignature
}

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(Chain(noContent(), mw("a"), mw("b"), mw("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestIDPropagatesOrGenerates(t *testing.T) {
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := serve(h, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), seen)
}

func TestRecoverWrites500(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithLogging(), WithRecover())
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestRequireAuth(t *testing.T) {
	alice := &authn.Identity{Record: &identity.Record{ID: 7, Email: "a@example.com", Role: identity.RoleUser}}
	var gotID int64
	var gotEmail string
	h := RequireAuth(fakeAuth{"good": alice})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = CallerID(r.Context())
		gotEmail, _ = CallerEmail(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_MISSING")
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec = serve(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer good")
	rec = serve(h, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(7), gotID)
	assert.Equal(t, "a@example.com", gotEmail)
}

func TestCallerHelpersAbsentWithoutAuth(t *testing.T) {
	ctx := context.Background()
	_, ok := CallerID(ctx)
	assert.False(t, ok)
	_, ok = CallerEmail(ctx)
	assert.False(t, ok)
	_, ok = CallerRole(ctx)
	assert.False(t, ok)
	assert.Nil(t, GetClaims(ctx))
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(identity.RoleAdmin)(noContent())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	user := &authn.Identity{Record: &identity.Record{ID: 1, Role: identity.RoleUser}}
	req = req.WithContext(WithIdentity(req.Context(), user))
	rec := serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCESS_DENIED")

	admin := &authn.Identity{Record: &identity.Record{ID: 2, Role: identity.RoleAdmin}}
	req = req.WithContext(WithIdentity(req.Context(), admin))
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)
}

func TestWithRateLimit(t *testing.T) {
	h := WithRateLimit(RateLimitConfig{Limiter: rate.NewMemoryLimiter(2, time.Hour)})(noContent())

	newReq := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
		req.RemoteAddr = ip + ":5555"
		return req
	}
	assert.Equal(t, http.StatusNoContent, serve(h, newReq("10.0.0.1")).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, newReq("10.0.0.1")).Code)

	rec := serve(h, newReq("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, serve(h, newReq("10.0.0.2")).Code)

	req := newReq("10.0.0.3")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.3")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, req).Code)
}
