// Package transport defines the full-duplex message channel the client runs on
// and its WebSocket implementation.
package transport

import "context"

// State is the connection state. It only moves forward; Closed is terminal.
type State int32

const (
	StateNone State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Close codes used by the client.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// Hooks receive transport notifications. OnMessage is called from the receive
// loop, one frame at a time, in arrival order. Any hook may be nil.
type Hooks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Transport is the contract the RPC engine and dispatcher are built on.
//
// Connect fails with a ConnectionError when the transport was already used or
// the handshake fails. Send fails with a StateError unless the transport is open
// and is safe for concurrent use. Close is idempotent and raises OnClose exactly
// once.
type Transport interface {
	SetHooks(h Hooks)
	Connect(ctx context.Context, uri string) error
	Send(payload []byte) error
	Close(code int, reason string) error
	State() State
}
