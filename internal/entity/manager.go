package entity

import (
	"sync"

	"github.com/EgorLis/arcorclient/internal/observe"
)

// Entity is what a Collection holds: a Manager or a type embedding one.
type Entity[T any] interface {
	ID() string
	Data() T
	Update(data T)
	Dispose()
}

// Manager is the local, identity-stable mirror of one server object. Data is
// replaced in place on updates so subscribers keep their reference across them.
type Manager[T any] struct {
	id string

	mu       sync.RWMutex
	data     T
	disposed bool
	owned    []func()

	// Updated fires after Data changed, with the new data.
	Updated observe.List[T]
	// Removing fires once, at the start of Dispose, with the entity id.
	Removing observe.List[string]
}

func NewManager[T any](id string, data T) *Manager[T] {
	return &Manager[T]{id: id, data: data}
}

func (m *Manager[T]) ID() string { return m.id }

func (m *Manager[T]) Data() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Update replaces the data and notifies Updated. Updates after Dispose are ignored.
func (m *Manager[T]) Update(data T) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.data = data
	m.mu.Unlock()
	m.Updated.Emit(data)
}

// Own hands an unsubscribe function to the manager; Dispose calls it. On an
// already disposed manager it runs immediately.
func (m *Manager[T]) Own(unsubscribe func()) {
	if unsubscribe == nil {
		return
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		unsubscribe()
		return
	}
	m.owned = append(m.owned, unsubscribe)
	m.mu.Unlock()
}

// Dispose raises Removing, then releases owned subscriptions. Only the first call
// has an effect.
func (m *Manager[T]) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	owned := m.owned
	m.owned = nil
	m.mu.Unlock()

	m.Removing.Emit(m.id)
	for i := len(owned) - 1; i >= 0; i-- {
		owned[i]()
	}
}

func (m *Manager[T]) Disposed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

var _ Entity[struct{}] = (*Manager[struct{}])(nil)
