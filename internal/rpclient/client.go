package rpclient

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// DefaultTimeout is used when no timeout option is given.
const DefaultTimeout = 15 * time.Second

// Sender is the outbound half of a transport.
type Sender interface {
	Send(payload []byte) error
}

// Client correlates requests with responses over a shared connection.
type Client struct {
	out Sender
	log zerolog.Logger

	timeout       time.Duration
	validateNames bool

	seq     atomic.Int64
	mu      sync.Mutex
	pending map[int64]*pendingCall

	// OnRequest is called after a request was written, with its name and id.
	OnRequest func(name string, id int64)
}

type pendingCall struct {
	id      int64
	request string
	expect  string
	timer   *time.Timer
	done    chan outcome

	// onResponse runs on the delivering goroutine before the caller wakes up.
	onResponse func(*wire.Response)
}

type outcome struct {
	resp *wire.Response
	err  error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithResponseValidation toggles matching on the response name in addition to
// the id. Enabled by default.
func WithResponseValidation(on bool) Option {
	return func(c *Client) { c.validateNames = on }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "rpc").Logger() }
}

func New(out Sender, opts ...Option) *Client {
	c := &Client{
		out:           out,
		log:           zerolog.Nop(),
		timeout:       DefaultTimeout,
		validateNames: true,
		pending:       make(map[int64]*pendingCall),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Timeout() time.Duration { return c.timeout }

func (c *Client) nextID() int64 { return c.seq.Add(1) }

// LastID returns the most recently allocated correlation id.
func (c *Client) LastID() int64 { return c.seq.Load() }

// Call sends request with args and waits for the response carrying the same id
// (and, with validation on, the name expect). An empty expect means the request
// name. A response with result=false is returned without error; use Expect or
// Decode to turn it into a RejectedError.
func (c *Client) Call(request string, args any, expect string) (*wire.Response, error) {
	return c.CallWith(request, args, expect, nil)
}

// CallWith is Call with a hook that sees the response in inbound frame order:
// onResponse runs inside Deliver, before any later frame is dispatched and
// before CallWith returns. It is not called on timeout or connection loss.
func (c *Client) CallWith(request string, args any, expect string, onResponse func(*wire.Response)) (*wire.Response, error) {
	if expect == "" {
		expect = request
	}
	id := c.nextID()
	payload, err := wire.EncodeRequest(request, id, args)
	if err != nil {
		return nil, err
	}

	p := &pendingCall{id: id, request: request, expect: expect, done: make(chan outcome, 1), onResponse: onResponse}
	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	c.mu.Unlock()

	if err := c.out.Send(payload); err != nil {
		if c.take(id, "", false) != nil {
			p.timer.Stop()
		}
		return nil, err
	}
	c.log.Debug().Str("request", request).Int64("id", id).Msg("sent")
	if c.OnRequest != nil {
		c.OnRequest(request, id)
	}

	res := <-p.done
	return res.resp, res.err
}

// take removes and returns the pending call for id. With checkName the call is
// only taken when its expected response name equals name.
func (c *Client) take(id int64, name string, checkName bool) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	if checkName && p.expect != name {
		return nil
	}
	delete(c.pending, id)
	return p
}

func (c *Client) expire(id int64) {
	p := c.take(id, "", false)
	if p == nil {
		return
	}
	c.log.Warn().Str("request", p.request).Int64("id", id).Dur("after", c.timeout).Msg("rpc timeout")
	p.done <- outcome{err: &errs.TimeoutError{Request: p.request, ID: id, After: c.timeout}}
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsPending reports whether id still awaits a response.
func (c *Client) IsPending(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}
