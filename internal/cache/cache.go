// Package cache provee abstracciones para caching con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, go-cache; modo degradado / dev / tests)
//   - Redis (distribuido, para producción)
//
// Lo usan la revocation store y el rate limiter. Las entradas con TTL expiran
// solas en ambos backends.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Exists verifica si una key existe (y no expiró).
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	// Stats retorna estadísticas del cache (las expone /readyz).
	Stats(ctx context.Context) (Stats, error)
}

// Purger lo implementan backends sin expiración nativa confiable (memory).
// Borra las keys con el prefijo dado guardadas hace más de maxAge, sin importar su TTL.
type Purger interface {
	PurgeOlderThan(prefix string, maxAge time.Duration) int
}

// Stats contiene estadísticas del cache.
type Stats struct {
	Driver     string `json:"driver"`
	Keys       int64  `json:"keys"`
	UsedMemory string `json:"used_memory,omitempty"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string // host:port (redis)
	Password string
	DB       int
	Prefix   string // Prefijo para todas las keys

	// DefaultTTL y CleanupInterval aplican solo a memory.
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// ErrNotFound se retorna cuando la key no existe o expiró.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente de cache según la configuración.
// Con driver redis hace ping; si falla retorna el error (el caller decide el fallback).
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		c, err := NewRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL, cfg.CleanupInterval), nil
	}
}
