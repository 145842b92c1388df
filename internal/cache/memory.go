package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache (ya es thread-safe).
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

type memoryItem struct {
	value    string
	storedAt time.Time
}

// NewMemory crea un cliente de cache en memoria.
// cleanupInterval controla el janitor de go-cache que borra expirados.
func NewMemory(prefix string, defaultTTL, cleanupInterval time.Duration) *memoryClient {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(defaultTTL, cleanupInterval),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func ttlFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		m.misses.Add(1)
		return "", ErrNotFound
	}
	m.hits.Add(1)
	return v.(memoryItem).value, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(m.key(key), memoryItem{value: value, storedAt: time.Now()}, ttlFor(ttl))
	return nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}

func (m *memoryClient) Stats(context.Context) (Stats, error) {
	return Stats{
		Driver: "memory",
		Keys:   int64(m.c.ItemCount()),
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}, nil
}

// PurgeOlderThan borra keys con prefijo guardadas hace más de maxAge.
// Red de seguridad contra drift de timestamps: no depende del TTL por entrada.
func (m *memoryClient) PurgeOlderThan(prefix string, maxAge time.Duration) int {
	full := m.key(prefix)
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for k, it := range m.c.Items() {
		if !strings.HasPrefix(k, full) {
			continue
		}
		item, ok := it.Object.(memoryItem)
		if !ok || item.storedAt.Before(cutoff) {
			m.c.Delete(k)
			n++
		}
	}
	m.c.DeleteExpired()
	return n
}
