// Package dispatch routes inbound frames: responses go to the RPC engine,
// events to handlers registered by name, and everything else is dropped.
package dispatch

import (
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/observe"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// ResponseSink receives frames classified as responses.
type ResponseSink interface {
	Deliver(frame []byte) bool
}

// HandlerFunc handles one decoded event envelope.
type HandlerFunc func(ev wire.Event)

// handler reports whether it accepted the event.
type handler func(ev wire.Event) bool

// Stats counts what happened to dispatched frames.
type Stats struct {
	Responses uint64 // completed a pending call
	Events    uint64 // delivered to a handler
	Ignored   uint64 // event without handler or with unsupported change type
	Dropped   uint64 // malformed, unroutable or unmatched
	Panics    uint64 // handler panics recovered
}

type Dispatcher struct {
	rpc    ResponseSink
	log    zerolog.Logger
	invoke observe.Invoker

	mu       sync.RWMutex
	handlers map[string]handler

	metrics *metrics
}

type Option func(*Dispatcher)

// WithInvoker sets where event handlers run. Responses always complete on the
// dispatching goroutine so awaited calls never depend on the invoker.
func WithInvoker(inv observe.Invoker) Option {
	return func(d *Dispatcher) {
		if inv != nil {
			d.invoke = inv
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l.With().Str("component", "dispatch").Logger() }
}

func New(rpc ResponseSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rpc:      rpc,
		log:      zerolog.Nop(),
		invoke:   observe.Inline,
		handlers: make(map[string]handler),
		metrics:  newMetrics(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle registers h for events named name, replacing any previous handler.
func (d *Dispatcher) Handle(name string, h HandlerFunc) {
	if h == nil {
		d.handle(name, nil)
		return
	}
	d.handle(name, func(ev wire.Event) bool {
		h(ev)
		return true
	})
}

func (d *Dispatcher) handle(name string, h handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, name)
		return
	}
	d.handlers[name] = h
}

// Handles reports whether a handler is registered for name.
func (d *Dispatcher) Handles(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[name]
	return ok
}

// Dispatch routes one inbound frame. It never panics and never returns an
// error: faults in the frame or in a handler are logged and counted.
func (d *Dispatcher) Dispatch(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.inc(outcomePanic)
			d.log.Error().Err(observe.PanicError(r)).Msg("dispatch panic")
		}
	}()

	env := wire.Peek(frame)
	switch env.Kind {
	case wire.KindResponse:
		if d.rpc != nil && d.rpc.Deliver(frame) {
			d.metrics.inc(outcomeResponse)
			return
		}
		d.drop("unmatched response", frame)
	case wire.KindEvent:
		d.mu.RLock()
		h := d.handlers[env.Name]
		d.mu.RUnlock()
		if h == nil {
			d.metrics.inc(outcomeIgnored)
			d.log.Debug().Str("event", env.Name).Msg("no handler")
			return
		}
		var ev wire.Event
		if err := wire.Decode(frame, &ev); err != nil {
			d.drop("event envelope: "+err.Error(), frame)
			return
		}
		d.invoke(func() { d.run(h, ev) })
	case wire.KindMalformed:
		d.drop("malformed frame", frame)
	default:
		d.drop("neither response nor event", frame)
	}
}

// run counts the event only once its handler accepted it; ignored and dropped
// events are counted where they are rejected.
func (d *Dispatcher) run(h handler, ev wire.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.inc(outcomePanic)
			d.log.Error().Err(observe.PanicError(r)).Str("event", ev.Event).Msg("event handler panic")
		}
	}()
	if h(ev) {
		d.metrics.inc(outcomeEvent)
	}
}

func (d *Dispatcher) drop(reason string, frame []byte) {
	d.metrics.inc(outcomeDropped)
	d.log.Debug().Err(&errs.ProtocolParseError{Reason: reason, Frame: frame}).Msg("frame dropped")
}

func (d *Dispatcher) ignore(ev wire.Event, why string) {
	d.metrics.inc(outcomeIgnored)
	d.log.Debug().Str("event", ev.Event).Str("change_type", string(ev.ChangeType)).Msg(why)
}

// Stats reads the frame counters back from the dispatcher's registry.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Responses: d.metrics.count(outcomeResponse),
		Events:    d.metrics.count(outcomeEvent),
		Ignored:   d.metrics.count(outcomeIgnored),
		Dropped:   d.metrics.count(outcomeDropped),
		Panics:    d.metrics.count(outcomePanic),
	}
}

// Registry is the prometheus registry holding the dispatcher counters.
func (d *Dispatcher) Registry() *prometheus.Registry { return d.metrics.reg }

// On registers a handler decoding the event data into a T. Events whose data
// does not decode are dropped.
func On[T any](d *Dispatcher, name string, fn func(T)) {
	d.handle(name, func(ev wire.Event) bool {
		var v T
		if err := wire.Decode(ev.Data, &v); err != nil {
			d.drop("event data: "+err.Error(), ev.Data)
			return false
		}
		fn(v)
		return true
	})
}

// OnChange registers a handler for an entity change event. Change types not in
// supported are ignored.
func OnChange[T any](d *Dispatcher, name string, supported []wire.ChangeType, fn func(wire.ChangeType, T)) {
	d.handle(name, func(ev wire.Event) bool {
		if !slices.Contains(supported, ev.ChangeType) {
			d.ignore(ev, "unsupported change type")
			return false
		}
		var v T
		if err := wire.Decode(ev.Data, &v); err != nil {
			d.drop("event data: "+err.Error(), ev.Data)
			return false
		}
		fn(ev.ChangeType, v)
		return true
	})
}
