package identity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryRepository es el Repository in-process para dev y tests. Writes cuenta
// las escrituras para poder afirmar idempotencia.
type MemoryRepository struct {
	mu        sync.RWMutex
	nextID    int64
	bySubject map[string]*Record
	byID      map[int64]*Record
	writes    atomic.Int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bySubject: make(map[string]*Record),
		byID:      make(map[int64]*Record),
	}
}

func (m *MemoryRepository) Writes() int64 { return m.writes.Load() }

func (m *MemoryRepository) GetBySubject(_ context.Context, subject string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.bySubject[subject]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySubject[r.Subject]; ok {
		return ErrSubjectTaken
	}
	if m.emailInUseLocked(r.Email, 0) {
		return ErrEmailTaken
	}
	m.nextID++
	now := time.Now().UTC()
	r.ID = m.nextID
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.bySubject[r.Subject] = &cp
	m.byID[r.ID] = &cp
	m.writes.Add(1)
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, id int64, ch Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if ch.Email != nil && m.emailInUseLocked(*ch.Email, id) {
		return ErrEmailTaken
	}
	ch.Apply(r)
	r.UpdatedAt = time.Now().UTC()
	m.writes.Add(1)
	return nil
}

func (m *MemoryRepository) SetTokensValidFrom(_ context.Context, id int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.TokensValidFrom = t
	m.writes.Add(1)
	return nil
}

// SoftDelete marca el registro como borrado (lo usan los tests y el seed de dev).
func (m *MemoryRepository) SoftDelete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[id]; ok {
		r.Deleted = true
	}
}

func (m *MemoryRepository) emailInUseLocked(email string, except int64) bool {
	for _, r := range m.byID {
		if r.ID != except && !r.Deleted && strings.EqualFold(r.Email, email) {
			return true
		}
	}
	return false
}
