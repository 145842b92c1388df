package jwt

import (
	"context"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RefreshRecorder registra cada refresh emitido en el índice de tokens activos.
type RefreshRecorder interface {
	Record(ctx context.Context, jti, subject string, expiresAt time.Time) error
}

// Token es un JWT firmado listo para devolver al cliente.
type Token struct {
	Raw       string
	ID        string
	ExpiresAt time.Time
}

// Issuer firma access/refresh tokens con la clave Ed25519 activa del KeySet.
type Issuer struct {
	Iss        string        // "iss"
	Keys       *KeySet       // clave activa
	AccessTTL  time.Duration // minutos (default 15m)
	RefreshTTL time.Duration // días (default 7d)

	recorder RefreshRecorder
	now      func() time.Time
}

func NewIssuer(iss string, keys *KeySet, recorder RefreshRecorder) *Issuer {
	return &Issuer{
		Iss:        iss,
		Keys:       keys,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		recorder:   recorder,
		now:        time.Now,
	}
}

// SetRecorder conecta el índice de refresh (lo crea el paquete refresh, que a
// su vez depende del Issuer).
func (i *Issuer) SetRecorder(r RefreshRecorder) { i.recorder = r }

// ActiveKID devuelve el KID activo actual.
func (i *Issuer) ActiveKID() (string, error) {
	kid, _, err := i.Keys.Active()
	return kid, err
}

// IssueAccess emite un access token: sub, role, auth_type, jti, iat, exp.
func (i *Issuer) IssueAccess(ctx context.Context, subject, role string) (Token, error) {
	now := i.now().UTC()
	exp := now.Add(i.AccessTTL)
	jti := uuid.NewString()

	raw, err := i.sign(jwtv5.MapClaims{
		"iss":       i.Iss,
		"sub":       subject,
		"role":      role,
		"auth_type": AuthTypeLocal,
		"token_use": UseAccess,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
	})
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, ID: jti, ExpiresAt: time.Unix(exp.Unix(), 0)}, nil
}

// IssueRefresh emite un refresh token y lo registra en el índice de activos.
// Si el registro falla el token no se devuelve: un refresh fuera del índice
// nunca rota.
func (i *Issuer) IssueRefresh(ctx context.Context, subject string) (Token, error) {
	now := i.now().UTC()
	exp := now.Add(i.RefreshTTL)
	jti := uuid.NewString()

	raw, err := i.sign(jwtv5.MapClaims{
		"iss":       i.Iss,
		"sub":       subject,
		"token_use": UseRefresh,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
	})
	if err != nil {
		return Token{}, err
	}
	expAt := time.Unix(exp.Unix(), 0)
	if i.recorder != nil {
		if err := i.recorder.Record(ctx, jti, subject, expAt); err != nil {
			return Token{}, fmt.Errorf("record refresh: %w", err)
		}
	}
	return Token{Raw: raw, ID: jti, ExpiresAt: expAt}, nil
}

// sign setea header kid/typ y firma con EdDSA.
func (i *Issuer) sign(claims jwtv5.MapClaims) (string, error) {
	kid, priv, err := i.Keys.Active()
	if err != nil {
		return "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	return tk.SignedString(priv)
}

// JWKSJSON expone el JWKS de las claves propias.
func (i *Issuer) JWKSJSON() []byte {
	return i.Keys.JWKSJSON()
}
