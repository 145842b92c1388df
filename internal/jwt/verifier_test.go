package jwt

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevocation struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (f *fakeRevocation) Revoked(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

type fakeCutoff map[string]time.Time

func (f fakeCutoff) TokensValidFrom(_ context.Context, subject string) (time.Time, bool) {
	t, ok := f[subject]
	return t, ok
}

type recorderFunc func(ctx context.Context, jti, subject string, exp time.Time) error

func (f recorderFunc) Record(ctx context.Context, jti, subject string, exp time.Time) error {
	return f(ctx, jti, subject, exp)
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	ks, err := GenerateKeySet("test-1")
	require.NoError(t, err)
	return NewIssuer("https://ironlog.test", ks, nil)
}

func TestVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	v := NewVerifier(iss.Keys, WithIssuer(iss.Iss), WithRevocation(&fakeRevocation{}))

	tok, err := iss.IssueAccess(ctx, "auth0|alice", "admin")
	require.NoError(t, err)

	c, err := v.VerifyAccess(ctx, tok.Raw)
	require.NoError(t, err)
	assert.Equal(t, "auth0|alice", c.Subject)
	assert.Equal(t, "admin", c.Role)
	assert.Equal(t, tok.ID, c.ID)
	assert.Equal(t, AuthTypeLocal, c.AuthType)
	assert.Equal(t, UseAccess, c.TokenUse)
	assert.Equal(t, tok.ExpiresAt.Unix(), c.ExpiresAt.Unix())
	assert.Equal(t, "auth0|alice", c.Raw["sub"])
}

func TestVerifyExpiredOneSecondAgo(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	iss.now = func() time.Time { return time.Now().Add(-iss.AccessTTL - time.Second) }

	tok, err := iss.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)

	_, err = NewVerifier(iss.Keys).Verify(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsForeignKeyAndTampering(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	other := newTestIssuer(t)

	tok, err := other.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)

	v := NewVerifier(iss.Keys)
	_, err = v.Verify(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	own, err := iss.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)
	tampered := own.Raw[:len(own.Raw)-4] + "AAAA"
	_, err = v.Verify(ctx, tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = v.Verify(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsSymmetricAlgorithm(t *testing.T) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tk.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = NewVerifier(newTestIssuer(t).Keys).Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyIssuerMismatch(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	tok, err := iss.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)

	_, err = NewVerifier(iss.Keys, WithIssuer("https://elsewhere")).Verify(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRevoked(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	rev := &fakeRevocation{ids: map[string]bool{}}
	v := NewVerifier(iss.Keys, WithRevocation(rev))

	tok, err := iss.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)
	_, err = v.Verify(ctx, tok.Raw)
	require.NoError(t, err)

	rev.ids[tok.ID] = true
	_, err = v.Verify(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestVerifyRevokedByContentHashWithoutJTI(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	raw, err := iss.sign(jwtv5.MapClaims{"sub": "sub-1", "exp": time.Now().Add(time.Minute).Unix()})
	require.NoError(t, err)

	rev := &fakeRevocation{ids: map[string]bool{ContentHash(raw): true}}
	_, err = NewVerifier(iss.Keys, WithRevocation(rev)).Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestVerifyMissingExpIsInvalid(t *testing.T) {
	iss := newTestIssuer(t)
	raw, err := iss.sign(jwtv5.MapClaims{"sub": "sub-1", "jti": "j"})
	require.NoError(t, err)

	_, err = NewVerifier(iss.Keys).Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	tok, err := iss.IssueRefresh(ctx, "sub-1")
	require.NoError(t, err)

	v := NewVerifier(iss.Keys)
	_, err = v.VerifyAccess(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	c, err := v.Verify(ctx, tok.Raw)
	require.NoError(t, err)
	assert.Equal(t, UseRefresh, c.TokenUse)
}

func TestVerifyCutoff(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)
	tok, err := iss.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)

	c, err := NewVerifier(iss.Keys).Verify(ctx, tok.Raw)
	require.NoError(t, err)
	iat := c.IssuedAt

	cut := fakeCutoff{"sub-1": iat.Add(time.Minute)}
	_, err = NewVerifier(iss.Keys, WithCutoff(cut)).Verify(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrRevoked)

	// Corte más tarde en el mismo segundo en que se emitió: revocado.
	cut["sub-1"] = iat.Add(900 * time.Millisecond)
	_, err = NewVerifier(iss.Keys, WithCutoff(cut)).Verify(ctx, tok.Raw)
	assert.ErrorIs(t, err, ErrRevoked)

	cut["sub-1"] = iat.Add(-time.Second)
	_, err = NewVerifier(iss.Keys, WithCutoff(cut)).Verify(ctx, tok.Raw)
	assert.NoError(t, err)

	_, err = NewVerifier(iss.Keys, WithCutoff(fakeCutoff{"other": iat})).Verify(ctx, tok.Raw)
	assert.NoError(t, err)
}

func TestVerifyRetiringKey(t *testing.T) {
	ctx := context.Background()
	old := newTestIssuer(t)
	tok, err := old.IssueAccess(ctx, "sub-1", "user")
	require.NoError(t, err)

	next, err := GenerateKeySet("test-2")
	require.NoError(t, err)
	next.AddRetiring(old.Keys.KID, old.Keys.Pub)

	_, err = NewVerifier(next).Verify(ctx, tok.Raw)
	assert.NoError(t, err)
}

func TestIssueRefreshRecordsAndPropagatesFailure(t *testing.T) {
	ctx := context.Background()
	iss := newTestIssuer(t)

	var gotJTI, gotSub string
	iss.SetRecorder(recorderFunc(func(_ context.Context, jti, sub string, exp time.Time) error {
		gotJTI, gotSub = jti, sub
		assert.True(t, exp.After(time.Now().Add(iss.RefreshTTL-time.Minute)))
		return nil
	}))
	tok, err := iss.IssueRefresh(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, gotJTI)
	assert.Equal(t, "sub-1", gotSub)

	boom := errors.New("index down")
	iss.SetRecorder(recorderFunc(func(context.Context, string, string, time.Time) error { return boom }))
	_, err = iss.IssueRefresh(ctx, "sub-1")
	assert.ErrorIs(t, err, boom)
}

func TestKeySetPEMRoundTripAndJWKS(t *testing.T) {
	ks, err := GenerateKeySet("pem-1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "signing.pem")
	require.NoError(t, ks.WritePEM(path))

	loaded, err := LoadKeySetPEM(path, "pem-1")
	require.NoError(t, err)
	assert.Equal(t, ks.Pub, loaded.Pub)

	keys, err := ParseJWKS(loaded.JWKSJSON())
	require.NoError(t, err)
	require.Contains(t, keys, "pem-1")
	assert.Equal(t, ks.Pub, keys["pem-1"])

	_, err = ParseKeySetPEM([]byte("garbage"), "x")
	assert.Error(t, err)
}
