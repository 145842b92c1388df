package jwt

import (
	"context"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/ironlog/internal/audit"
	"github.com/dropDatabas3/ironlog/internal/metrics"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

// RevocationChecker responde si un id de token está revocado. La política ante
// fallas del store (fail open/closed) vive en la implementación.
type RevocationChecker interface {
	Revoked(ctx context.Context, id string) bool
}

// CutoffSource da el instante desde el cual los tokens de un subject son
// válidos (p.ej. tras un "logout everywhere").
type CutoffSource interface {
	TokensValidFrom(ctx context.Context, subject string) (time.Time, bool)
}

// Verifier valida firma, expiración y revocación de un bearer token.
type Verifier struct {
	keys       KeySource
	methods    []string
	issuer     string
	audience   string
	nbfLeeway  time.Duration
	revocation RevocationChecker
	cutoff     CutoffSource
	now        func() time.Time
}

type VerifierOption func(*Verifier)

// WithIssuer exige iss == iss.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = strings.TrimRight(iss, "/") }
}

// WithAudience exige que aud contenga aud (string o array).
func WithAudience(aud string) VerifierOption {
	return func(v *Verifier) { v.audience = aud }
}

// WithMethods reemplaza los algoritmos aceptados (default EdDSA).
func WithMethods(methods ...string) VerifierOption {
	return func(v *Verifier) { v.methods = methods }
}

func WithRevocation(rc RevocationChecker) VerifierOption {
	return func(v *Verifier) { v.revocation = rc }
}

func WithCutoff(cs CutoffSource) VerifierOption {
	return func(v *Verifier) { v.cutoff = cs }
}

// WithClock es para tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(keys KeySource, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:      keys,
		methods:   []string{jwtv5.SigningMethodEdDSA.Alg()},
		nbfLeeway: 30 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify: (a) firma, (b) exp, (c) revocación, (d) claims. Cualquier error de
// parseo o firma es ErrInvalidSignature, sin confianza parcial.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	c, err := v.verify(ctx, raw)
	metrics.TokenVerifications.WithLabelValues(resultLabel(err)).Inc()
	return c, err
}

// VerifyAccess es Verify + rechazo de refresh tokens usados como bearer.
func (v *Verifier) VerifyAccess(ctx context.Context, raw string) (*Claims, error) {
	c, err := v.verify(ctx, raw)
	if err == nil && c.TokenUse == UseRefresh {
		err = ErrInvalidSignature
		c = nil
	}
	metrics.TokenVerifications.WithLabelValues(resultLabel(err)).Inc()
	return c, err
}

func (v *Verifier) verify(ctx context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidSignature
	}

	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.PublicKey(ctx, kid)
	}

	// Las claims temporales las clasificamos nosotros (ErrExpired vs inválido).
	tok, err := jwtv5.Parse(raw, keyfunc,
		jwtv5.WithValidMethods(v.methods),
		jwtv5.WithoutClaimsValidation(),
	)
	if err != nil || !tok.Valid {
		logger.From(ctx).Debug("jwt parse failed", logger.Component("jwt"), logger.Err(err))
		return nil, ErrInvalidSignature
	}
	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidSignature
	}
	c := claimsFromMap(mc)
	now := v.now()

	if v.issuer != "" && strings.TrimRight(c.Issuer, "/") != v.issuer {
		return nil, ErrInvalidSignature
	}
	if v.audience != "" && !hasAudience(mc, v.audience) {
		return nil, ErrInvalidSignature
	}
	if c.ExpiresAt.IsZero() {
		return nil, ErrInvalidSignature
	}
	if !now.Before(c.ExpiresAt) {
		return nil, ErrExpired
	}
	if nbf, err := mc.GetNotBefore(); err == nil && nbf != nil && nbf.Time.After(now.Add(v.nbfLeeway)) {
		return nil, ErrInvalidSignature
	}

	if v.revocation != nil {
		id := c.RevocationID(raw)
		if v.revocation.Revoked(ctx, id) {
			audit.Log(ctx, audit.TokenRevokedHit, map[string]any{"subject": c.Subject, "jti": id})
			return nil, ErrRevoked
		}
	}
	if v.cutoff != nil && c.Subject != "" {
		if from, ok := v.cutoff.TokensValidFrom(ctx, c.Subject); ok && IssuedBeforeCutoff(c.IssuedAt, from) {
			audit.Log(ctx, audit.TokenRevokedHit, map[string]any{"subject": c.Subject, "jti": c.ID, "reason": "cutoff"})
			return nil, ErrRevoked
		}
	}
	return c, nil
}

// IssuedBeforeCutoff indica si un token emitido en iat queda cortado por from.
// iat tiene resolución de segundos: un token del mismo segundo que el corte no
// se puede ordenar respecto de él y se considera anterior.
func IssuedBeforeCutoff(iat, from time.Time) bool {
	return !iat.Truncate(time.Second).After(from.Truncate(time.Second))
}

func hasAudience(mc jwtv5.MapClaims, want string) bool {
	aud, err := mc.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func resultLabel(err error) string {
	switch err {
	case nil:
		return "ok"
	case ErrExpired:
		return "expired"
	case ErrRevoked:
		return "revoked"
	default:
		return "invalid_signature"
	}
}
