package locking

import (
	"fmt"
	"sync"

	"github.com/EgorLis/arcorclient/internal/entity"
	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/weakreg"
)

// State is the per entity lock bookkeeping.
type State struct {
	mu     sync.RWMutex
	pause  bool
	owner  string
	locked bool
}

func (s *State) PauseAutoLock() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pause
}

func (s *State) SetPauseAutoLock(on bool) {
	s.mu.Lock()
	s.pause = on
	s.mu.Unlock()
}

// Owner returns the user holding the server lock, if any.
func (s *State) Owner() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.locked
}

// SetOwner records a lock held by owner. An empty owner clears it.
func (s *State) SetOwner(owner string) {
	s.mu.Lock()
	s.owner = owner
	s.locked = owner != ""
	s.mu.Unlock()
}

// Registry maps entity ids to lock state without keeping entities alive.
type Registry = weakreg.Registry[string, State]

// Lockable decorates an entity manager with lock behaviour.
type Lockable[T any] struct {
	*entity.Manager[T]
	*State
	policy *Policy
}

// NewLockable builds a lockable entity. When reg is not nil the lock state is
// registered under id until the entity is disposed.
func NewLockable[T any](id string, data T, p *Policy, reg *Registry) *Lockable[T] {
	l := &Lockable[T]{
		Manager: entity.NewManager(id, data),
		State:   &State{},
		policy:  p,
	}
	if reg != nil {
		_ = reg.Set(id, l.State)
		l.Own(func() { reg.Remove(id) })
	}
	return l
}

// Lock sends WriteLock for this entity. Refused while the auto-lock policy is
// in charge.
func (l *Lockable[T]) Lock(lockTree bool) error {
	if err := l.manual("lock"); err != nil {
		return err
	}
	return l.policy.WriteLock([]string{l.ID()}, lockTree)
}

// Unlock sends WriteUnlock for this entity. Refused while the auto-lock policy
// is in charge.
func (l *Lockable[T]) Unlock() error {
	if err := l.manual("unlock"); err != nil {
		return err
	}
	return l.policy.WriteUnlock([]string{l.ID()}, false)
}

// Mutate runs fn, the mutating request. Under AutoLock with pause off a
// WriteLock is sent first and a failure aborts before fn runs.
func (l *Lockable[T]) Mutate(fn func() error) error {
	if l.Disposed() {
		return &errs.StateError{Op: "mutate " + l.ID(), State: "disposed"}
	}
	if l.policy.Mode() == AutoLock && !l.PauseAutoLock() {
		if err := l.policy.WriteLock([]string{l.ID()}, false); err != nil {
			return fmt.Errorf("auto-lock %s: %w", l.ID(), err)
		}
	}
	return fn()
}

func (l *Lockable[T]) manual(op string) error {
	if l.Disposed() {
		return &errs.StateError{Op: op + " " + l.ID(), State: "disposed"}
	}
	mode := l.policy.Mode()
	if mode == NoLocks || l.PauseAutoLock() {
		return nil
	}
	return &errs.LockPolicyError{Op: op, ID: l.ID(), Mode: mode.String()}
}

// MarkLocked records owner on every registered id and returns how many matched.
func MarkLocked(reg *Registry, ids []string, owner string) int {
	n := 0
	for _, id := range ids {
		if s := reg.Get(id); s != nil {
			s.SetOwner(owner)
			n++
		}
	}
	return n
}

// MarkUnlocked clears the owner on every registered id.
func MarkUnlocked(reg *Registry, ids []string) int {
	return MarkLocked(reg, ids, "")
}

var _ entity.Entity[struct{}] = (*Lockable[struct{}])(nil)
