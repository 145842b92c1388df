// Package refresh implementa el índice de refresh tokens activos y la rotación
// de un solo uso sobre él.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound: el jti no está (o ya no está) en el índice.
var ErrNotFound = errors.New("refresh: token not in active index")

// Entry es lo que el índice sabe de un refresh token vivo.
type Entry struct {
	ID        string    `json:"jti"`
	Subject   string    `json:"sub"`
	ExpiresAt time.Time `json:"exp"`
}

// Index es el registro de refresh tokens activos. A lo sumo una entrada por jti.
type Index interface {
	Record(ctx context.Context, jti, subject string, expiresAt time.Time) error
	Lookup(ctx context.Context, jti string) (Entry, error)
	// Take remueve la entrada de forma atómica. Entre llamadas concurrentes con
	// el mismo jti sólo una recibe la entrada; el resto ErrNotFound.
	Take(ctx context.Context, jti string) (Entry, error)
	ListBySubject(ctx context.Context, subject string) ([]Entry, error)
}

// MemoryIndex es el índice in-process (dev, tests, modo degradado).
type MemoryIndex struct {
	mu        sync.Mutex
	entries   map[string]Entry
	bySubject map[string]map[string]struct{}
	now       func() time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries:   make(map[string]Entry),
		bySubject: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

func (m *MemoryIndex) Record(_ context.Context, jti, subject string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("refresh: empty jti")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = Entry{ID: jti, Subject: subject, ExpiresAt: expiresAt}
	set, ok := m.bySubject[subject]
	if !ok {
		set = make(map[string]struct{})
		m.bySubject[subject] = set
	}
	set[jti] = struct{}{}
	return nil
}

func (m *MemoryIndex) Lookup(_ context.Context, jti string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jti]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if !m.now().Before(e.ExpiresAt) {
		m.removeLocked(e)
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryIndex) Take(_ context.Context, jti string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jti]
	if !ok {
		return Entry{}, ErrNotFound
	}
	m.removeLocked(e)
	return e, nil
}

func (m *MemoryIndex) ListBySubject(_ context.Context, subject string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]Entry, 0, len(m.bySubject[subject]))
	for jti := range m.bySubject[subject] {
		e := m.entries[jti]
		if !now.Before(e.ExpiresAt) {
			m.removeLocked(e)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len es para tests y stats.
func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryIndex) removeLocked(e Entry) {
	delete(m.entries, e.ID)
	if set, ok := m.bySubject[e.Subject]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(m.bySubject, e.Subject)
		}
	}
}
