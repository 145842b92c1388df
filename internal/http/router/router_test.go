package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ironlog/internal/authn"
	"github.com/dropDatabas3/ironlog/internal/cache"
	"github.com/dropDatabas3/ironlog/internal/http/handlers"
	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/ownership"
	"github.com/dropDatabas3/ironlog/internal/rate"
	"github.com/dropDatabas3/ironlog/internal/refresh"
	"github.com/dropDatabas3/ironlog/internal/revocation"
)

const (
	localIss = "https://ironlog.test"
	idpIss   = "https://idp.test"
	ns       = "https://ironlog.test/claims"
)

type env struct {
	srv     *httptest.Server
	idpKeys *jwt.KeySet
	lookups *ownership.MemoryLookups
}

func newEnv(t *testing.T, loginLimiter rate.Limiter, checks ...handlers.Check) *env {
	t.Helper()
	local, err := jwt.GenerateKeySet("local-1")
	require.NoError(t, err)
	idp, err := jwt.GenerateKeySet("idp-1")
	require.NoError(t, err)

	store := revocation.NewCacheStore(cache.NewMemory("test", 0, time.Minute))
	checker := revocation.NewChecker(store, revocation.FailClosed, 0, time.Second)
	ids := identity.NewService(identity.NewMemoryRepository(), ns, time.Millisecond)

	verifier := jwt.NewVerifier(local, jwt.WithIssuer(localIss), jwt.WithRevocation(checker), jwt.WithCutoff(ids))
	issuer := jwt.NewIssuer(localIss, local, nil)
	tokens := refresh.NewManager(verifier, issuer, refresh.NewMemoryIndex(), checker, ids)
	auth := authn.New(localIss, verifier, ids,
		authn.Provider{Name: "oidc", Issuer: idpIss, Verifier: jwt.NewVerifier(idp, jwt.WithIssuer(idpIss))})
	lookups := ownership.NewMemoryLookups()

	h := New(Deps{
		Authenticator: auth,
		Login:         auth,
		Tokens:        tokens,
		Cutoff:        ids,
		Authorizer:    ownership.NewAuthorizer(lookups),
		JWKS:          issuer,
		Checks:        checks,
		CacheStats:    cache.NewMemory("stats", 0, time.Minute),
		LoginLimiter:  loginLimiter,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, idpKeys: idp, lookups: lookups}
}

func (e *env) idToken(t *testing.T, sub, role string) string {
	t.Helper()
	now := time.Now()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, jwtv5.MapClaims{
		"iss":            idpIss,
		"sub":            sub,
		"email":          sub + "@example.com",
		"email_verified": true,
		"given_name":     sub,
		ns + "/role":     role,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Minute).Unix(),
	})
	tok.Header["kid"] = e.idpKeys.KID
	raw, err := tok.SignedString(e.idpKeys.Priv)
	require.NoError(t, err)
	return raw
}

func (e *env) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *env) login(t *testing.T, sub, role string) (access, refreshTok string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"provider": "oidc", "id_token": e.idToken(t, sub, role),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "Bearer", body["token_type"])
	return body["access_token"].(string), body["refresh_token"].(string)
}

func (e *env) me(t *testing.T, access string) int64 {
	t.Helper()
	resp, body := e.do(t, http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return int64(body["id"].(float64))
}

func TestLoginMeRefreshLogout(t *testing.T) {
	e := newEnv(t, nil)
	access, rt := e.login(t, "alice", "user")

	resp, body := e.do(t, http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "user", body["role"])

	resp, body = e.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rt})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	newAccess := body["access_token"].(string)
	newRT := body["refresh_token"].(string)
	assert.NotEqual(t, rt, newRT)

	resp, body = e.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rt})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", body["code"])

	resp, _ = e.do(t, http.MethodPost, "/v1/auth/logout", newAccess, map[string]string{"refresh_token": newRT})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/v1/me", newAccess, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", body["code"])

	resp, _ = e.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": newRT})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginValidation(t *testing.T) {
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"provider": "oidc"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_FIELDS", body["code"])

	resp, body = e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"provider": "saml", "id_token": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_PROVIDER", body["code"])

	resp, body = e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"provider": "oidc", "id_token": "x", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_JSON", body["code"])

	resp, body = e.do(t, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_MISSING", body["code"])
}

func TestAccessCheckScenarios(t *testing.T) {
	e := newEnv(t, nil)
	aAccess, _ := e.login(t, "a", "user")
	bAccess, _ := e.login(t, "b", "user")
	adminAccess, _ := e.login(t, "root", "admin")

	aID := e.me(t, aAccess)
	e.lookups.AddSession(10, aID)
	e.lookups.AddInstance(20, 10)
	e.lookups.AddItem(ownership.KindSet, 30, 20)

	cases := []struct {
		name, bearer, path string
		want               int
	}{
		{"owner session", aAccess, "/v1/access/session/10", http.StatusNoContent},
		{"owner set", aAccess, "/v1/access/sets/30", http.StatusNoContent},
		{"other user", bAccess, "/v1/access/session/10", http.StatusNotFound},
		{"admin", adminAccess, "/v1/access/session/10", http.StatusNoContent},
		{"unknown id", aAccess, "/v1/access/session/999", http.StatusNotFound},
		{"bad kind", aAccess, "/v1/access/widget/10", http.StatusBadRequest},
		{"bad id", aAccess, "/v1/access/session/abc", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := e.do(t, http.MethodGet, tc.path, tc.bearer, nil)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestAdminRevokeAll(t *testing.T) {
	e := newEnv(t, nil)
	aAccess, aRT := e.login(t, "alice", "user")
	adminAccess, _ := e.login(t, "root", "admin")

	resp, body := e.do(t, http.MethodPost, "/v1/admin/users/alice/revoke", aAccess, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCESS_DENIED", body["code"])

	resp, body = e.do(t, http.MethodPost, "/v1/admin/users/nobody/revoke", adminAccess, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "USER_NOT_FOUND", body["code"])

	resp, body = e.do(t, http.MethodPost, "/v1/admin/users/alice/revoke", adminAccess, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(1), body["revoked_refresh_tokens"])

	resp, _ = e.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": aRT})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSystemEndpoints(t *testing.T) {
	e := newEnv(t, nil, handlers.Check{Name: "db", Fn: func(context.Context) error { return errors.New("down") }})

	resp, body := e.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	keys, ok := body["keys"].([]any)
	require.True(t, ok)
	assert.Len(t, keys, 1)

	resp, body = e.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "fail", body["checks"].(map[string]any)["db"])
	assert.Equal(t, "memory", body["cache"].(map[string]any)["driver"])

	resp, body = e.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ROUTE_NOT_FOUND", body["code"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestLoginRateLimited(t *testing.T) {
	e := newEnv(t, rate.NewMemoryLimiter(1, time.Hour))
	e.login(t, "alice", "user")

	resp, body := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"provider": "oidc", "id_token": e.idToken(t, "alice", "user"),
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
}
