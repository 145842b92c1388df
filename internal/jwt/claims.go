package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrExpired          = errors.New("token_expired")
	ErrRevoked          = errors.New("token_revoked")
)

const (
	UseAccess  = "access"
	UseRefresh = "refresh"

	// AuthTypeLocal marca los access tokens emitidos por este servicio.
	AuthTypeLocal = "local"
)

// Claims es la vista tipada de un token verificado. Raw conserva todas las
// claims tal como vinieron (las del provider incluidas).
type Claims struct {
	Subject   string
	ID        string
	Role      string
	AuthType  string
	TokenUse  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       map[string]any
}

// RevocationID es la key con la que se consulta/registra el token en la
// revocation store: el jti, o el hash del token si no trae jti.
func (c *Claims) RevocationID(raw string) string {
	if c.ID != "" {
		return c.ID
	}
	return ContentHash(raw)
}

// ContentHash: sha256 hex del token compacto.
func ContentHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func claimsFromMap(mc jwtv5.MapClaims) *Claims {
	c := &Claims{Raw: make(map[string]any, len(mc))}
	for k, v := range mc {
		c.Raw[k] = v
	}
	c.Subject, _ = mc["sub"].(string)
	c.ID, _ = mc["jti"].(string)
	c.Role, _ = mc["role"].(string)
	c.AuthType, _ = mc["auth_type"].(string)
	c.TokenUse, _ = mc["token_use"].(string)
	c.Issuer, _ = mc["iss"].(string)
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}
