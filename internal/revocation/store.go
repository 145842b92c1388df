// Package revocation guarda los ids de tokens revocados hasta que expiran solos.
//
// La Store sólo sabe guardar y consultar; la política ante fallas del backend
// (fail open / fail closed), los reintentos y el timeout viven en Checker, que
// es lo que consume el verificador de JWT.
package revocation

import (
	"context"
	"strconv"
	"time"

	"github.com/dropDatabas3/ironlog/internal/cache"
)

// KeyPrefix agrupa las entradas dentro del cache compartido.
const KeyPrefix = "revoked:"

// Store es segura para uso concurrente.
type Store interface {
	// Revoke marca id como revocado durante ttl. ttl <= 0 es no-op: el token
	// ya expiró y nadie lo va a aceptar.
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// CacheStore implementa Store sobre cache.Client (redis o memory).
type CacheStore struct {
	c   cache.Client
	now func() time.Time
}

func NewCacheStore(c cache.Client) *CacheStore {
	return &CacheStore{c: c, now: time.Now}
}

func (s *CacheStore) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if id == "" || ttl <= 0 {
		return nil
	}
	// El valor es el instante de revocación (unix); sólo informativo.
	return s.c.Set(ctx, KeyPrefix+id, strconv.FormatInt(s.now().Unix(), 10), ttl)
}

func (s *CacheStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return s.c.Exists(ctx, KeyPrefix+id)
}

// Backing expone el cliente para el sweeper.
func (s *CacheStore) Backing() cache.Client { return s.c }
