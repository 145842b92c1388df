package ownership

import (
	"context"
	"sync"
)

// MemoryLookups es un Lookups in-process (tests y dev sin base).
type MemoryLookups struct {
	mu        sync.RWMutex
	sessions  map[int64]int64          // session -> user
	instances map[int64]int64          // instance -> session
	items     map[Kind]map[int64]int64 // item -> parent
	library   map[int64]int64          // exercise -> creator
}

func NewMemoryLookups() *MemoryLookups {
	return &MemoryLookups{
		sessions:  make(map[int64]int64),
		instances: make(map[int64]int64),
		items:     make(map[Kind]map[int64]int64),
		library:   make(map[int64]int64),
	}
}

func (m *MemoryLookups) AddSession(id, owner int64) {
	m.mu.Lock()
	m.sessions[id] = owner
	m.mu.Unlock()
}

func (m *MemoryLookups) AddInstance(id, session int64) {
	m.mu.Lock()
	m.instances[id] = session
	m.mu.Unlock()
}

// AddItem registra un item. parent es el exercise instance (set, cardio
// interval) o la session (note).
func (m *MemoryLookups) AddItem(kind Kind, id, parent int64) {
	m.mu.Lock()
	if m.items[kind] == nil {
		m.items[kind] = make(map[int64]int64)
	}
	m.items[kind][id] = parent
	m.mu.Unlock()
}

func (m *MemoryLookups) AddLibraryExercise(id, creator int64) {
	m.mu.Lock()
	m.library[id] = creator
	m.mu.Unlock()
}

func (m *MemoryLookups) SessionOwner(_ context.Context, id int64) (int64, error) {
	return m.get(m.sessions, id)
}

func (m *MemoryLookups) ExerciseInstanceSession(_ context.Context, id int64) (int64, error) {
	return m.get(m.instances, id)
}

// ItemSession: las notas cuelgan directo de la session, el resto de un instance.
func (m *MemoryLookups) ItemSession(_ context.Context, kind Kind, id int64) (int64, error) {
	m.mu.RLock()
	parent, ok := m.items[kind][id]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrNotFound
	}
	if kind == KindNote {
		return parent, nil
	}
	return m.get(m.instances, parent)
}

func (m *MemoryLookups) LibraryExerciseOwner(_ context.Context, id int64) (int64, error) {
	return m.get(m.library, id)
}

func (m *MemoryLookups) get(src map[int64]int64, id int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := src[id]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}
