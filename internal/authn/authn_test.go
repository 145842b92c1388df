package authn

import (
	"context"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
)

const (
	localIss = "https://ironlog.test"
	idpIss   = "https://idp.test/"
	ns       = "https://ironlog.test/claims"
)

type fixture struct {
	auth     *Authenticator
	issuer   *jwt.Issuer
	idpKeys  *jwt.KeySet
	repo     *identity.MemoryRepository
	identity *identity.Service
}

func newFixture(t *testing.T, bearer bool) *fixture {
	t.Helper()
	local, err := jwt.GenerateKeySet("local-1")
	require.NoError(t, err)
	idp, err := jwt.GenerateKeySet("idp-1")
	require.NoError(t, err)

	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, ns, time.Millisecond)
	a := New(localIss,
		jwt.NewVerifier(local, jwt.WithIssuer(localIss), jwt.WithCutoff(ids)),
		ids,
		Provider{Name: "oidc", Issuer: idpIss, Verifier: jwt.NewVerifier(idp, jwt.WithIssuer(idpIss)), Bearer: bearer},
	)
	return &fixture{
		auth:     a,
		issuer:   jwt.NewIssuer(localIss, local, nil),
		idpKeys:  idp,
		repo:     repo,
		identity: ids,
	}
}

func (f *fixture) idToken(t *testing.T, sub string, verified bool) string {
	t.Helper()
	now := time.Now()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, jwtv5.MapClaims{
		"iss":            idpIss,
		"sub":            sub,
		"email":          sub + "@example.com",
		"email_verified": verified,
		"name":           "Test User",
		ns + "/role":     "user",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Minute).Unix(),
	})
	tok.Header["kid"] = f.idpKeys.KID
	raw, err := tok.SignedString(f.idpKeys.Priv)
	require.NoError(t, err)
	return raw
}

func TestLoginProvisionsThenLocalTokenAuthenticates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	rec, err := f.auth.Login(ctx, "OIDC", f.idToken(t, "alice", true))
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Subject)
	assert.Equal(t, "Test", rec.FirstName)

	access, err := f.issuer.IssueAccess(ctx, rec.Subject, string(rec.Role))
	require.NoError(t, err)

	id, err := f.auth.Authenticate(ctx, access.Raw)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, id.Source)
	assert.Equal(t, rec.ID, id.Record.ID)
	assert.Equal(t, access.ID, id.Claims.ID)
}

func TestLoginRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.auth.Login(ctx, "github", f.idToken(t, "alice", true))
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = f.auth.Login(ctx, "oidc", f.idToken(t, "alice", false))
	assert.ErrorIs(t, err, identity.ErrEmailNotVerified)
	assert.Zero(t, f.repo.Writes())

	_, err = f.auth.Login(ctx, "oidc", "not-a-jwt")
	assert.ErrorIs(t, err, jwt.ErrInvalidSignature)
}

func TestProviderBearerOnlyWhenEnabled(t *testing.T) {
	ctx := context.Background()

	off := newFixture(t, false)
	_, err := off.auth.Authenticate(ctx, off.idToken(t, "bob", true))
	assert.ErrorIs(t, err, jwt.ErrInvalidSignature)

	on := newFixture(t, true)
	id, err := on.auth.Authenticate(ctx, on.idToken(t, "bob", true))
	require.NoError(t, err)
	assert.Equal(t, SourceProvider, id.Source)
	assert.Equal(t, "bob", id.Record.Subject)
	assert.Equal(t, int64(1), on.repo.Writes())
}

func TestAuthenticateRejectsUnknownSubjectAndGarbage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	access, err := f.issuer.IssueAccess(ctx, "ghost", "admin")
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, access.Raw)
	assert.ErrorIs(t, err, jwt.ErrInvalidSignature)

	_, err = f.auth.Authenticate(ctx, "a.b.c")
	assert.ErrorIs(t, err, jwt.ErrInvalidSignature)
}

func TestAuthenticateAfterInvalidateTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	rec, err := f.auth.Login(ctx, "oidc", f.idToken(t, "carol", true))
	require.NoError(t, err)
	access, err := f.issuer.IssueAccess(ctx, rec.Subject, string(rec.Role))
	require.NoError(t, err)

	require.NoError(t, f.identity.InvalidateTokens(ctx, rec.Subject))

	_, err = f.auth.Authenticate(ctx, access.Raw)
	assert.ErrorIs(t, err, jwt.ErrRevoked)
}
