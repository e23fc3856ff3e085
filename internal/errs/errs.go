// Package errs holds the error taxonomy shared by the transport, the RPC engine,
// the locking layer and the session. Callers match with errors.Is against the
// sentinels and use errors.As to reach the typed details.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConnection    = errors.New("arcor: connection error")
	ErrTimeout       = errors.New("arcor: rpc timeout")
	ErrRejected      = errors.New("arcor: rpc rejected")
	ErrProtocolParse = errors.New("arcor: protocol parse error")
	ErrLockPolicy    = errors.New("arcor: lock policy violation")
	ErrState         = errors.New("arcor: invalid state")
)

// ConnectionError is fatal to the connection it was raised on.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection " + e.Op + " failed"
	}
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error        { return e.Err }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// TimeoutError reports a call that saw no matching response before its deadline.
type TimeoutError struct {
	Request string
	ID      int64
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rpc %s (id %d): no response within %s", e.Request, e.ID, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RejectedError is a server response with result=false.
type RejectedError struct {
	Request  string
	Messages []string
}

func (e *RejectedError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("rpc %s rejected by server", e.Request)
	}
	return fmt.Sprintf("rpc %s rejected: %s", e.Request, strings.Join(e.Messages, "; "))
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// StateError reports an operation attempted in a state that does not permit it.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrState }

// LockPolicyError is raised synchronously, before any network call, when an
// explicit lock or unlock would race the automatic locking policy.
type LockPolicyError struct {
	Op   string
	ID   string
	Mode string
}

func (e *LockPolicyError) Error() string {
	return fmt.Sprintf("%s %s: explicit locking is disabled in %s mode unless auto-lock is paused", e.Op, e.ID, e.Mode)
}

func (e *LockPolicyError) Is(target error) bool {
	return target == ErrLockPolicy || target == ErrState
}

// ProtocolParseError describes an inbound frame that could not be routed. It is
// logged and never surfaced to callers.
type ProtocolParseError struct {
	Reason string
	Frame  []byte
}

func (e *ProtocolParseError) Error() string {
	const limit = 64
	f := e.Frame
	if len(f) > limit {
		f = f[:limit]
	}
	return fmt.Sprintf("protocol: %s (frame %q)", e.Reason, f)
}

func (e *ProtocolParseError) Is(target error) bool { return target == ErrProtocolParse }
