// Package observe provides a typed observer list used for entity lifecycle and
// session level notifications.
package observe

import (
	"fmt"
	"sync"
)

// Invoker runs fn somewhere. Inline runs it on the calling goroutine; callers that
// need delivery on another goroutine (a UI loop, a worker) pass their own.
type Invoker func(fn func())

// Inline is the default Invoker.
func Inline(fn func()) { fn() }

// List is a broadcast list of subscribers for values of type T. The zero value is
// ready to use. A panicking subscriber does not prevent delivery to the others.
type List[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []sub[T]

	// OnPanic, when set, receives the recovered value of a panicking subscriber.
	OnPanic func(any)
}

type sub[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe adds fn and returns a function removing it. The returned function is
// safe to call more than once.
func (l *List[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, sub[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *List[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers v to a snapshot of the current subscribers, in subscription order.
func (l *List[T]) Emit(v T) {
	l.mu.Lock()
	snapshot := make([]sub[T], len(l.subs))
	copy(snapshot, l.subs)
	onPanic := l.OnPanic
	l.mu.Unlock()

	for _, s := range snapshot {
		deliver(s.fn, v, onPanic)
	}
}

// Len returns the number of subscribers.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Reset drops every subscriber.
func (l *List[T]) Reset() {
	l.mu.Lock()
	l.subs = nil
	l.mu.Unlock()
}

func deliver[T any](fn func(T), v T, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	fn(v)
}

// PanicError wraps a recovered panic value.
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("subscriber panic: %w", err)
	}
	return fmt.Errorf("subscriber panic: %v", r)
}
