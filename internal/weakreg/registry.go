// Package weakreg is a keyed registry that does not keep its values alive.
//
// Entries hold a weak.Pointer to the value. Once the value is unreachable and the
// collector has reclaimed it, the entry behaves as if Remove had been called and
// is purged on the next enumeration or mutation. Owners that know the exact end of
// a value's life call Remove themselves so lookups stop at that point instead of
// at the next collection.
package weakreg

import (
	"errors"
	"sync"
	"weak"
)

var (
	ErrNilKey    = errors.New("weakreg: nil key")
	ErrNilValue  = errors.New("weakreg: nil value")
	ErrDuplicate = errors.New("weakreg: key already present")
)

// Registry maps keys to values held weakly. The zero value is ready to use and
// safe for concurrent use.
type Registry[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]weak.Pointer[V]
}

func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{m: make(map[K]weak.Pointer[V])}
}

// Add inserts v under k. It fails when k already maps to a live value.
func (r *Registry[K, V]) Add(k K, v *V) error {
	if err := check(k, v); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purge()
	if _, ok := r.m[k]; ok {
		return ErrDuplicate
	}
	r.init()
	r.m[k] = weak.Make(v)
	return nil
}

// Set inserts or replaces the value under k.
func (r *Registry[K, V]) Set(k K, v *V) error {
	if err := check(k, v); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purge()
	r.init()
	r.m[k] = weak.Make(v)
	return nil
}

// Get returns the value under k, or nil when absent or reclaimed.
func (r *Registry[K, V]) Get(k K) *V {
	v, _ := r.TryGetValue(k)
	return v
}

func (r *Registry[K, V]) TryGetValue(k K) (*V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.m[k]
	if !ok {
		return nil, false
	}
	v := wp.Value()
	if v == nil {
		delete(r.m, k)
		return nil, false
	}
	return v, true
}

func (r *Registry[K, V]) ContainsKey(k K) bool {
	_, ok := r.TryGetValue(k)
	return ok
}

// Remove deletes k and reports whether a live entry was removed.
func (r *Registry[K, V]) Remove(k K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.m[k]
	if !ok {
		return false
	}
	delete(r.m, k)
	live := wp.Value() != nil
	r.purge()
	return live
}

func (r *Registry[K, V]) Clear() {
	r.mu.Lock()
	clear(r.m)
	r.mu.Unlock()
}

// Keys returns the keys of live entries in no particular order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purge()
	out := make([]K, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	return out
}

// Values returns the live values in no particular order. The returned pointers
// are strong references.
func (r *Registry[K, V]) Values() []*V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*V, 0, len(r.m))
	for k, wp := range r.m {
		if v := wp.Value(); v != nil {
			out = append(out, v)
		} else {
			delete(r.m, k)
		}
	}
	return out
}

// Len returns the number of live entries.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purge()
	return len(r.m)
}

func (r *Registry[K, V]) init() {
	if r.m == nil {
		r.m = make(map[K]weak.Pointer[V])
	}
}

// purge drops reclaimed entries. Caller holds mu.
func (r *Registry[K, V]) purge() {
	for k, wp := range r.m {
		if wp.Value() == nil {
			delete(r.m, k)
		}
	}
}

func check[K comparable, V any](k K, v *V) error {
	if any(k) == nil {
		return ErrNilKey
	}
	if v == nil {
		return ErrNilValue
	}
	return nil
}
