// Package locking implements the write-lock policy for server objects.
//
// In AutoLock mode mutating operations acquire a write lock before the mutating
// request and never release it; the server drops the lock when the mutation
// completes. Explicit Lock and Unlock are refused in that mode unless the entity
// has auto-lock paused. In NoLocks mode the caller owns every lock call.
package locking

import (
	"fmt"
	"strings"
	"sync"
)

const (
	RequestWriteLock   = "WriteLock"
	RequestWriteUnlock = "WriteUnlock"
)

type Mode int

const (
	AutoLock Mode = iota
	NoLocks
)

func (m Mode) String() string {
	switch m {
	case AutoLock:
		return "auto"
	case NoLocks:
		return "none"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "auto" and "none" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "autolock", "":
		return AutoLock, nil
	case "none", "nolocks", "manual":
		return NoLocks, nil
	}
	return 0, fmt.Errorf("unknown lock mode %q", s)
}

// Caller performs a request that must succeed.
type Caller interface {
	Do(request string, args any) error
}

// LockArgs is the argument of WriteLock and WriteUnlock.
type LockArgs struct {
	ObjectIDs []string `json:"object_ids"`
	LockTree  bool     `json:"lock_tree"`
}

// Policy is the session wide locking mode plus the lock requests themselves.
type Policy struct {
	rpc Caller

	mu   sync.RWMutex
	mode Mode
}

func NewPolicy(rpc Caller, mode Mode) *Policy {
	return &Policy{rpc: rpc, mode: mode}
}

func (p *Policy) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

func (p *Policy) SetMode(m Mode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}

// WriteLock sends one lock request for ids.
func (p *Policy) WriteLock(ids []string, lockTree bool) error {
	return p.rpc.Do(RequestWriteLock, LockArgs{ObjectIDs: ids, LockTree: lockTree})
}

// WriteUnlock sends one unlock request for ids.
func (p *Policy) WriteUnlock(ids []string, lockTree bool) error {
	return p.rpc.Do(RequestWriteUnlock, LockArgs{ObjectIDs: ids, LockTree: lockTree})
}
