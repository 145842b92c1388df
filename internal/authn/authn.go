// Package authn resuelve un bearer token a una identidad local autenticada.
//
// Acepta dos tipos de bearer: access tokens emitidos por este servicio
// (ruteados por iss == issuer local) y, si el provider lo habilita, el id
// token del propio provider. El iss se lee sin verificar sólo para elegir la
// fuente de claves; después el verificador elegido chequea todo.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/ironlog/internal/identity"
	"github.com/dropDatabas3/ironlog/internal/jwt"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

var ErrUnknownProvider = errors.New("authn: unknown provider")

const (
	SourceLocal    = "local"
	SourceProvider = "provider"
)

// Identity es el caller autenticado de un request.
type Identity struct {
	Record *identity.Record
	Claims *jwt.Claims
	Raw    string
	Source string
}

// Provider es un identity provider externo habilitado para login.
type Provider struct {
	Name     string
	Issuer   string
	Verifier *jwt.Verifier
	// Bearer permite usar el id token del provider directamente como bearer de la API.
	Bearer bool
}

type Authenticator struct {
	localIssuer string
	local       *jwt.Verifier
	providers   map[string]Provider
	identities  *identity.Service
}

func New(localIssuer string, local *jwt.Verifier, ids *identity.Service, providers ...Provider) *Authenticator {
	a := &Authenticator{
		localIssuer: normIss(localIssuer),
		local:       local,
		providers:   make(map[string]Provider, len(providers)),
		identities:  ids,
	}
	for _, p := range providers {
		a.providers[strings.ToLower(p.Name)] = p
	}
	return a
}

// Authenticate verifica raw y carga el registro del caller. Los bearers del
// provider pasan por Provision: el primer request también crea el registro.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	iss, err := unverifiedIssuer(raw)
	if err != nil {
		return nil, err
	}

	if iss == a.localIssuer {
		c, err := a.local.VerifyAccess(ctx, raw)
		if err != nil {
			return nil, err
		}
		rec, err := a.identities.BySubject(ctx, c.Subject)
		if errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", jwt.ErrInvalidSignature)
		}
		if err != nil {
			return nil, fmt.Errorf("load identity: %w", err)
		}
		if rec.Deleted {
			return nil, identity.ErrIdentityDeleted
		}
		return &Identity{Record: rec, Claims: c, Raw: raw, Source: SourceLocal}, nil
	}

	for _, p := range a.providers {
		if !p.Bearer || normIss(p.Issuer) != iss {
			continue
		}
		rec, c, err := a.verifyProvider(ctx, p, raw)
		if err != nil {
			return nil, err
		}
		return &Identity{Record: rec, Claims: c, Raw: raw, Source: SourceProvider}, nil
	}

	logger.From(ctx).Debug("bearer from untrusted issuer", logger.Component("authn"), logger.String("iss", iss))
	return nil, jwt.ErrInvalidSignature
}

// Login verifica un id token del provider y provisiona su registro.
func (a *Authenticator) Login(ctx context.Context, provider, idToken string) (*identity.Record, error) {
	p, ok := a.providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	rec, _, err := a.verifyProvider(ctx, p, idToken)
	return rec, err
}

func (a *Authenticator) verifyProvider(ctx context.Context, p Provider, raw string) (*identity.Record, *jwt.Claims, error) {
	c, err := p.Verifier.Verify(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	rec, err := a.identities.Provision(ctx, identity.Principal{Provider: p.Name, Claims: c.Raw})
	if err != nil {
		return nil, nil, err
	}
	return rec, c, nil
}

func unverifiedIssuer(raw string) (string, error) {
	mc := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(raw, mc); err != nil {
		return "", fmt.Errorf("%w: %v", jwt.ErrInvalidSignature, err)
	}
	iss, _ := mc["iss"].(string)
	return normIss(iss), nil
}

func normIss(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }
