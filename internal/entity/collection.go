package entity

import (
	"sync"

	"github.com/EgorLis/arcorclient/internal/observe"
)

// Collection is an ordered, id-keyed set of entities kept in step with the
// server by Upsert, Remove and Reconcile. Events fire outside the lock.
type Collection[T any, E Entity[T]] struct {
	idOf      func(T) string
	newEntity func(id string, data T) E

	mu    sync.RWMutex
	order []string
	items map[string]E

	Added   observe.List[E]
	Removed observe.List[E]
}

func NewCollection[T any, E Entity[T]](idOf func(T) string, newEntity func(id string, data T) E) *Collection[T, E] {
	return &Collection[T, E]{
		idOf:      idOf,
		newEntity: newEntity,
		items:     make(map[string]E),
	}
}

func (c *Collection[T, E]) Get(id string) (E, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[id]
	return e, ok
}

// List returns the entities in insertion order.
func (c *Collection[T, E]) List() []E {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]E, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Collection[T, E]) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *Collection[T, E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Upsert updates the entity with data's id in place or creates it. It reports
// whether a new entity was created.
func (c *Collection[T, E]) Upsert(data T) (E, bool) {
	id := c.idOf(data)
	c.mu.Lock()
	if e, ok := c.items[id]; ok {
		c.mu.Unlock()
		e.Update(data)
		return e, false
	}
	e := c.newEntity(id, data)
	c.attach(id, e)
	c.mu.Unlock()
	c.Added.Emit(e)
	return e, true
}

// Remove disposes and detaches the entity with id.
func (c *Collection[T, E]) Remove(id string) bool {
	e, ok := c.Get(id)
	if !ok {
		return false
	}
	c.dispose(id, e)
	return true
}

// Reconcile makes the collection match incoming. Entities whose id is still
// present are updated in place and keep their identity, new ids get new
// entities appended, and entities missing from incoming are disposed. It
// returns the resulting list.
func (c *Collection[T, E]) Reconcile(incoming []T) []E {
	type update struct {
		e    E
		data T
	}
	var (
		updates []update
		created []E
		stale   []E
	)
	seen := make(map[string]struct{}, len(incoming))

	c.mu.Lock()
	for _, data := range incoming {
		id := c.idOf(data)
		seen[id] = struct{}{}
		if e, ok := c.items[id]; ok {
			updates = append(updates, update{e, data})
			continue
		}
		e := c.newEntity(id, data)
		c.attach(id, e)
		created = append(created, e)
	}
	for _, id := range c.order {
		if _, ok := seen[id]; !ok {
			stale = append(stale, c.items[id])
		}
	}
	c.mu.Unlock()

	for _, u := range updates {
		u.e.Update(u.data)
	}
	for _, e := range stale {
		c.dispose(e.ID(), e)
	}
	for _, e := range created {
		c.Added.Emit(e)
	}
	return c.List()
}

// Clear disposes every entity.
func (c *Collection[T, E]) Clear() {
	for _, e := range c.List() {
		c.dispose(e.ID(), e)
	}
}

// dispose runs the entity's own teardown before detaching it.
func (c *Collection[T, E]) dispose(id string, e E) {
	e.Dispose()
	c.mu.Lock()
	_, ok := c.items[id]
	if ok {
		delete(c.items, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if ok {
		c.Removed.Emit(e)
	}
}

// attach appends e. Caller holds mu.
func (c *Collection[T, E]) attach(id string, e E) {
	c.items[id] = e
	c.order = append(c.order, id)
}
