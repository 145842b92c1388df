package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rsaJWKS(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	b, err := json.Marshal(jwks{Keys: []jwk{{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
	require.NoError(t, err)
	return b
}

func TestRemoteJWKSVerifiesProviderToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits atomic.Int32
	body := rsaJWKS(t, "prov-1", &priv.PublicKey)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"iss":            "https://idp.test/",
		"aud":            []string{"ironlog-api"},
		"sub":            "idp|42",
		"email":          "a@example.com",
		"email_verified": true,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})
	tk.Header["kid"] = "prov-1"
	raw, err := tk.SignedString(priv)
	require.NoError(t, err)

	src := NewRemoteJWKS(srv.URL, "", time.Minute)
	v := NewVerifier(src,
		WithMethods("RS256"),
		WithIssuer("https://idp.test"),
		WithAudience("ironlog-api"),
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c, err := v.Verify(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "idp|42", c.Subject)
		assert.Equal(t, true, c.Raw["email_verified"])
	}
	assert.Equal(t, int32(1), hits.Load(), "jwks cached within TTL")

	_, err = NewVerifier(src, WithMethods("RS256"), WithAudience("other")).Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRemoteJWKSUnknownKid(t *testing.T) {
	ks, err := GenerateKeySet("local-1")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, ks.JWKSJSON(), 0o600))

	src := NewRemoteJWKS("", path, time.Minute)
	ctx := context.Background()

	pub, err := src.PublicKey(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, ks.Pub, pub)

	_, err = src.PublicKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrKidNotFound)
}

func TestRemoteJWKSFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRemoteJWKS(srv.URL, "", time.Minute).PublicKey(context.Background(), "k")
	assert.Error(t, err)
}
