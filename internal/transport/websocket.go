package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/observe"
)

// ErrAlreadyConnected is wrapped in the ConnectionError returned by a second
// Connect on the same transport.
var ErrAlreadyConnected = errors.New("transport: already connected")

// Options configure a WebSocket transport.
type Options struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
	ReadLimit    int64
	// PingInterval enables ping control frames; the read deadline is then
	// extended by every pong. Zero disables keep-alive.
	PingInterval time.Duration
	Logger       zerolog.Logger
}

// WebSocket is a Transport over a single gorilla/websocket connection. Text
// frames only.
type WebSocket struct {
	opts Options
	log  zerolog.Logger

	state atomic.Int32

	hmu   sync.RWMutex
	hooks Hooks

	// wmu serializes writes and guards conn.
	wmu  sync.Mutex
	conn *websocket.Conn

	closing  atomic.Bool
	closedCh chan struct{}
	pingStop chan struct{}
}

// NewWebSocket returns an unconnected transport.
func NewWebSocket(opts Options) *WebSocket {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 << 20
	}
	return &WebSocket{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "transport").Logger(),
		closedCh: make(chan struct{}),
	}
}

func (t *WebSocket) SetHooks(h Hooks) {
	t.hmu.Lock()
	t.hooks = h
	t.hmu.Unlock()
}

func (t *WebSocket) State() State { return State(t.state.Load()) }

// Done is closed once the transport reached StateClosed.
func (t *WebSocket) Done() <-chan struct{} { return t.closedCh }

// Connect dials uri and starts the receive loop.
func (t *WebSocket) Connect(ctx context.Context, uri string) error {
	if !t.state.CompareAndSwap(int32(StateNone), int32(StateConnecting)) {
		return &errs.ConnectionError{Op: "connect", Err: ErrAlreadyConnected}
	}
	t.log.Debug().Str("uri", uri).Msg("connecting")

	conn, _, err := t.opts.Dialer.DialContext(ctx, uri, nil)
	if err != nil {
		t.shutdown(CloseAbnormal, "handshake failed")
		return &errs.ConnectionError{Op: "connect", Err: err}
	}
	conn.SetReadLimit(t.opts.ReadLimit)
	if t.opts.PingInterval > 0 {
		wait := 3 * t.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	t.wmu.Lock()
	t.conn = conn
	opened := t.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	t.wmu.Unlock()
	if !opened {
		// Close won the race while dialing.
		_ = conn.Close()
		return &errs.ConnectionError{Op: "connect", Err: errors.New("closed while connecting")}
	}

	t.log.Info().Str("uri", uri).Msg("connected")
	if h := t.hooksSnapshot(); h.OnOpen != nil {
		h.OnOpen()
	}

	if t.opts.PingInterval > 0 {
		t.startPing(conn)
	}
	go t.readLoop(conn)
	return nil
}

// Send writes one text frame. Concurrent callers are serialized.
func (t *WebSocket) Send(payload []byte) error {
	t.wmu.Lock()
	if s := t.State(); s != StateOpen || t.conn == nil {
		t.wmu.Unlock()
		return &errs.StateError{Op: "send", State: s.String()}
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	err := t.conn.WriteMessage(websocket.TextMessage, payload)
	t.wmu.Unlock()

	if err != nil {
		cerr := &errs.ConnectionError{Op: "write", Err: err}
		t.emitError(cerr)
		t.shutdown(CloseAbnormal, "write failed")
		return cerr
	}
	return nil
}

// Close sends a close frame when open, closes the socket and raises OnClose.
// Only the first call does the work; later calls wait for it to reach Closed.
func (t *WebSocket) Close(code int, reason string) error {
	t.shutdown(code, reason)
	return nil
}

func (t *WebSocket) shutdown(code int, reason string) {
	if !t.closing.CompareAndSwap(false, true) {
		<-t.closedCh
		return
	}
	prev := State(t.state.Swap(int32(StateClosing)))
	t.stopPing()

	t.wmu.Lock()
	conn := t.conn
	if conn != nil && prev == StateOpen && code != CloseAbnormal {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(500*time.Millisecond))
	}
	t.wmu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	t.state.Store(int32(StateClosed))
	close(t.closedCh)
	t.log.Info().Int("code", code).Str("reason", reason).Msg("closed")

	if h := t.hooksSnapshot(); h.OnClose != nil {
		h.OnClose(code, reason)
	}
}

func (t *WebSocket) readLoop(conn *websocket.Conn) {
	code, reason := CloseAbnormal, "receive loop ended"
	defer func() {
		if r := recover(); r != nil {
			t.emitError(&errs.ConnectionError{Op: "read", Err: observe.PanicError(r)})
			code, reason = CloseAbnormal, "receive loop panic"
		}
		t.shutdown(code, reason)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.closing.Load() {
				return
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason = ce.Code, ce.Text
				if ce.Code == CloseNormal || ce.Code == CloseGoingAway {
					return
				}
			}
			t.emitError(&errs.ConnectionError{Op: "read", Err: err})
			return
		}
		if h := t.hooksSnapshot(); h.OnMessage != nil {
			h.OnMessage(data)
		}
	}
}

func (t *WebSocket) startPing(conn *websocket.Conn) {
	t.wmu.Lock()
	if t.closing.Load() {
		t.wmu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.pingStop = stop
	t.wmu.Unlock()

	go func() {
		tick := time.NewTicker(t.opts.PingInterval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				t.wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(t.opts.WriteTimeout))
				t.wmu.Unlock()
				if err != nil {
					t.log.Debug().Err(err).Msg("ping failed")
				}
			case <-stop:
				return
			}
		}
	}()
}

func (t *WebSocket) stopPing() {
	t.wmu.Lock()
	if t.pingStop != nil {
		close(t.pingStop)
		t.pingStop = nil
	}
	t.wmu.Unlock()
}

func (t *WebSocket) hooksSnapshot() Hooks {
	t.hmu.RLock()
	defer t.hmu.RUnlock()
	return t.hooks
}

func (t *WebSocket) emitError(err error) {
	t.log.Warn().Err(err).Msg("transport error")
	if h := t.hooksSnapshot(); h.OnError != nil {
		h.OnError(err)
	}
}

var _ Transport = (*WebSocket)(nil)
