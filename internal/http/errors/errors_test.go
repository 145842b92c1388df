package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/refresh"
)

func TestFromErrorMapsDomainSentinels(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("verify: %w", jwt.ErrExpired), "TOKEN_EXPIRED", http.StatusUnauthorized},
		{jwt.ErrInvalidSignature, "TOKEN_INVALID", http.StatusUnauthorized},
		{jwt.ErrRevoked, "TOKEN_REVOKED", http.StatusUnauthorized},
		{refresh.ErrInvalidRefreshToken, "INVALID_REFRESH_TOKEN", http.StatusUnauthorized},
		{identity.ErrEmailNotVerified, "ACCOUNT_NOT_VERIFIED", http.StatusForbidden},
		{identity.ErrEmailTaken, "EMAIL_ALREADY_IN_USE", http.StatusConflict},
		{identity.ErrNotFound, "USER_NOT_FOUND", http.StatusNotFound},
		{fmt.Errorf("%w: %q", identity.ErrUnsupportedProvider, "myspace"), "UNKNOWN_PROVIDER", http.StatusBadRequest},
		{fmt.Errorf("boom"), "INTERNAL_SERVER_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
		assert.Equal(t, tc.status, got.HTTPStatus, tc.err.Error())
	}
}

func TestCatalogueIsNotMutated(t *testing.T) {
	e := ErrAccessDenied.WithDetail("x")
	assert.Empty(t, ErrAccessDenied.Detail)
	assert.ErrorIs(t, e, ErrAccessDenied)
	assert.NotErrorIs(t, e, ErrNotAuthenticated)
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("wrapped: %w", ErrTokenMissing.WithDetail("bearer")))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "TOKEN_MISSING", body["code"])
	assert.Equal(t, "bearer", body["detail"])

	rec = httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("db password=secret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}
