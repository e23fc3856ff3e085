// Package transporttest provides an in-memory Transport with a scriptable server
// side for tests of the layers above the socket.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/transport"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// Fake implements transport.Transport. Frames passed to Send are recorded and,
// when Responder is set, handed to it on a separate goroutine. Deliver feeds
// inbound frames to OnMessage one at a time.
type Fake struct {
	// Responder plays the server. It runs on its own goroutine per sent frame.
	Responder func(f *Fake, req wire.Request, frame []byte)
	// ConnectErr makes Connect fail as a handshake failure.
	ConnectErr error

	mu     sync.Mutex
	hooks  transport.Hooks
	state  transport.State
	sent   [][]byte
	sentCh chan []byte
	closes int
	code   int

	deliverMu sync.Mutex
}

func New() *Fake {
	return &Fake{sentCh: make(chan []byte, 1024)}
}

func (f *Fake) SetHooks(h transport.Hooks) {
	f.mu.Lock()
	f.hooks = h
	f.mu.Unlock()
}

func (f *Fake) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) Connect(ctx context.Context, uri string) error {
	f.mu.Lock()
	if f.state != transport.StateNone {
		f.mu.Unlock()
		return &errs.ConnectionError{Op: "connect", Err: transport.ErrAlreadyConnected}
	}
	if f.ConnectErr != nil {
		f.mu.Unlock()
		f.Close(transport.CloseAbnormal, "handshake failed")
		return &errs.ConnectionError{Op: "connect", Err: f.ConnectErr}
	}
	f.state = transport.StateOpen
	h := f.hooks
	f.mu.Unlock()
	if h.OnOpen != nil {
		h.OnOpen()
	}
	return nil
}

func (f *Fake) Send(payload []byte) error {
	f.mu.Lock()
	if f.state != transport.StateOpen {
		s := f.state
		f.mu.Unlock()
		return &errs.StateError{Op: "send", State: s.String()}
	}
	frame := append([]byte(nil), payload...)
	f.sent = append(f.sent, frame)
	responder := f.Responder
	f.mu.Unlock()

	f.sentCh <- frame
	if responder != nil {
		var req wire.Request
		_ = wire.Decode(frame, &req)
		go responder(f, req, frame)
	}
	return nil
}

func (f *Fake) Close(code int, reason string) error {
	f.mu.Lock()
	if f.state == transport.StateClosed {
		f.mu.Unlock()
		return nil
	}
	f.state = transport.StateClosed
	f.closes++
	f.code = code
	h := f.hooks
	f.mu.Unlock()
	if h.OnClose != nil {
		h.OnClose(code, reason)
	}
	return nil
}

// Fail simulates a fatal transport fault: an error notification followed by
// the close notification.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	h := f.hooks
	open := f.state == transport.StateOpen
	f.mu.Unlock()
	if !open {
		return
	}
	if h.OnError != nil {
		h.OnError(&errs.ConnectionError{Op: "read", Err: err})
	}
	f.Close(transport.CloseAbnormal, err.Error())
}

// Deliver hands frame to the receive side. Concurrent callers are serialized,
// like frames read off a single socket.
func (f *Fake) Deliver(frame []byte) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()
	f.mu.Lock()
	h := f.hooks
	open := f.state == transport.StateOpen
	f.mu.Unlock()
	if open && h.OnMessage != nil {
		h.OnMessage(frame)
	}
}

// Reply delivers a response to req.
func (f *Fake) Reply(req wire.Request, result bool, data any, messages ...string) {
	f.Deliver(ResponseFrame(req.Request, req.ID, result, data, messages...))
}

// Sent returns a copy of every frame sent so far.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentRequests decodes every sent frame as a request envelope.
func (f *Fake) SentRequests() []wire.Request {
	var out []wire.Request
	for _, frame := range f.Sent() {
		var req wire.Request
		if err := wire.Decode(frame, &req); err == nil {
			out = append(out, req)
		}
	}
	return out
}

// CountSent returns how many requests named name were sent.
func (f *Fake) CountSent(name string) int {
	n := 0
	for _, req := range f.SentRequests() {
		if req.Request == name {
			n++
		}
	}
	return n
}

// NextSent waits for the next sent frame.
func (f *Fake) NextSent(timeout time.Duration) (wire.Request, bool) {
	select {
	case frame := <-f.sentCh:
		var req wire.Request
		_ = wire.Decode(frame, &req)
		return req, true
	case <-time.After(timeout):
		return wire.Request{}, false
	}
}

// Closes reports how many close notifications were raised and the last code.
func (f *Fake) Closes() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes, f.code
}

// ResponseFrame builds a response envelope.
func ResponseFrame(name string, id int64, result bool, data any, messages ...string) []byte {
	resp := wire.Response{Response: name, ID: id, Result: result, Messages: messages}
	if resp.Messages == nil {
		resp.Messages = []string{}
	}
	if data != nil {
		raw, err := wire.Encode(data)
		if err != nil {
			panic(err)
		}
		resp.Data = raw
	}
	b, err := wire.Encode(&resp)
	if err != nil {
		panic(err)
	}
	return b
}

// EventFrame builds an event envelope. An empty change omits "changeType".
func EventFrame(name string, change wire.ChangeType, data any) []byte {
	ev := wire.Event{Event: name, ChangeType: change}
	if data != nil {
		raw, err := wire.Encode(data)
		if err != nil {
			panic(err)
		}
		ev.Data = raw
	}
	b, err := wire.Encode(&ev)
	if err != nil {
		panic(err)
	}
	return b
}

var _ transport.Transport = (*Fake)(nil)
