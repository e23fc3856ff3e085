package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/arcorclient/internal/config"
	"github.com/EgorLis/arcorclient/internal/dispatch"
	"github.com/EgorLis/arcorclient/internal/entity"
	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/locking"
	"github.com/EgorLis/arcorclient/internal/model"
	"github.com/EgorLis/arcorclient/internal/observe"
	"github.com/EgorLis/arcorclient/internal/rpclient"
	"github.com/EgorLis/arcorclient/internal/transport"
	"github.com/EgorLis/arcorclient/internal/weakreg"
)

// Entity types mirrored by a session.
type (
	Scene      = locking.Lockable[model.SceneSummary]
	Project    = locking.Lockable[model.ProjectSummary]
	Package    = locking.Lockable[model.PackageSummary]
	ObjectType = entity.Manager[model.ObjectType]
)

// fetchLimit bounds concurrent GetActions calls during Initialize.
const fetchLimit = 8

type Session struct {
	cfg config.Config
	id  uuid.UUID
	log zerolog.Logger

	t      transport.Transport
	rpc    *rpclient.Client
	disp   *dispatch.Dispatcher
	policy *locking.Policy
	locks  *locking.Registry
	invoke observe.Invoker

	mu    sync.RWMutex
	state State
	nav   Navigation
	info  model.SystemInfo
	user  string

	Scenes      *entity.Collection[model.SceneSummary, *Scene]
	Projects    *entity.Collection[model.ProjectSummary, *Project]
	Packages    *entity.Collection[model.PackageSummary, *Package]
	ObjectTypes *entity.Collection[model.ObjectType, *ObjectType]

	StateChanged      observe.List[State]
	NavigationChanged observe.List[Navigation]
	Closed            observe.List[CloseInfo]
}

type options struct {
	log    zerolog.Logger
	invoke observe.Invoker
}

type Option func(*options)

// WithInvoker marshals event handling, and the notifications it raises, onto
// the goroutine chosen by inv.
func WithInvoker(inv observe.Invoker) Option {
	return func(o *options) { o.invoke = inv }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New wires a session over t. The transport must not be connected yet.
func New(cfg config.Config, t transport.Transport, opts ...Option) (*Session, error) {
	o := options{log: zerolog.Nop(), invoke: observe.Inline}
	for _, opt := range opts {
		opt(&o)
	}
	if o.invoke == nil {
		o.invoke = observe.Inline
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:   cfg,
		id:    uuid.New(),
		t:      t,
		locks:  weakreg.New[string, locking.State](),
		invoke: o.invoke,
	}
	s.log = o.log.With().Str("component", "session").Str("session", s.id.String()).Logger()

	s.rpc = rpclient.New(t,
		rpclient.WithTimeout(cfg.RPCTimeout.Std()),
		rpclient.WithResponseValidation(cfg.ValidateResponseNames),
		rpclient.WithLogger(o.log),
	)
	s.rpc.OnRequest = func(name string, id int64) {
		s.log.Trace().Str("request", name).Int64("id", id).Msg("sent")
	}
	s.disp = dispatch.New(s.rpc, dispatch.WithInvoker(o.invoke), dispatch.WithLogger(o.log))
	s.policy = locking.NewPolicy(s.rpc, mode)

	s.Scenes = entity.NewCollection(
		func(d model.SceneSummary) string { return d.ID },
		func(id string, d model.SceneSummary) *Scene { return locking.NewLockable(id, d, s.policy, s.locks) },
	)
	s.Projects = entity.NewCollection(
		func(d model.ProjectSummary) string { return d.ID },
		func(id string, d model.ProjectSummary) *Project { return locking.NewLockable(id, d, s.policy, s.locks) },
	)
	s.Packages = entity.NewCollection(
		func(d model.PackageSummary) string { return d.ID },
		func(id string, d model.PackageSummary) *Package { return locking.NewLockable(id, d, s.policy, s.locks) },
	)
	s.ObjectTypes = entity.NewCollection(
		func(d model.ObjectType) string { return d.Meta.Type },
		entity.NewManager[model.ObjectType],
	)

	onPanic := func(r any) { s.log.Error().Err(observe.PanicError(r)).Msg("subscriber panic") }
	s.StateChanged.OnPanic = onPanic
	s.NavigationChanged.OnPanic = onPanic
	s.Closed.OnPanic = onPanic

	s.registerHandlers()
	t.SetHooks(transport.Hooks{
		OnMessage: s.disp.Dispatch,
		OnError: func(err error) {
			s.log.Warn().Err(err).Msg("transport error")
		},
		OnClose: s.onClose,
	})
	return s, nil
}

// Dial builds a WebSocket transport from cfg, creates the session and connects it.
func Dial(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	ws := transport.NewWebSocket(transport.Options{
		Dialer:       websocket.DefaultDialer,
		WriteTimeout: cfg.WriteTimeout.Std(),
		ReadLimit:    cfg.ReadLimit,
		PingInterval: cfg.PingInterval.Std(),
		Logger:       o.log,
	})
	s, err := New(cfg, ws, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect opens the transport to the configured URL.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.require("connect", StateNone); err != nil {
		return err
	}
	s.log.Info().Str("url", s.cfg.URL).Msg("connecting")
	if err := s.t.Connect(ctx, s.cfg.URL); err != nil {
		s.log.Error().Err(err).Msg("connect failed")
		return err
	}
	if !s.advance(StateOpen) {
		return &errs.StateError{Op: "connect", State: s.State().String()}
	}
	s.log.Info().Msg("connected")
	return nil
}

// Initialize loads object types with their actions and the system info. Every
// request must succeed or the step fails as a whole.
//
// Listings are applied in inbound frame order, on the event invoker, so a
// change event that follows a response on the wire is never overwritten by it.
func (s *Session) Initialize() error {
	if err := s.require("initialize", StateOpen); err != nil {
		return err
	}

	var (
		types int
		info  model.SystemInfo
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		types, err = s.fetchObjectTypes()
		return err
	})
	g.Go(func() error {
		var err error
		info, err = rpclient.Fetch[model.SystemInfo](s.rpc, "SystemInfo", nil)
		return err
	})
	if err := g.Wait(); err != nil {
		s.invoke(s.ObjectTypes.Clear)
		return fmt.Errorf("initialize: %w", err)
	}

	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	s.checkVersion(info)

	if !s.advance(StateInitialized) {
		return &errs.StateError{Op: "initialize", State: s.State().String()}
	}
	s.log.Info().Int("object_types", types).Str("server", info.Version).Msg("initialized")
	return nil
}

// fetchObjectTypes reconciles the type list when its response arrives, then
// attaches actions to each enabled type that still exists at that point.
func (s *Session) fetchObjectTypes() (int, error) {
	metas, err := rpclient.FetchApply(s.rpc, "GetObjectTypes", nil, func(metas []model.ObjectTypeMeta) {
		s.invoke(func() { s.reconcileTypes(metas) })
	})
	if err != nil {
		return 0, err
	}
	var g errgroup.Group
	g.SetLimit(fetchLimit)
	for _, meta := range metas {
		if meta.Disabled {
			continue
		}
		g.Go(func() error {
			_, err := rpclient.FetchApply(s.rpc, "GetActions", model.TypeArgs{Type: meta.Type}, func(actions []model.ObjectAction) {
				s.invoke(func() { s.setActions(meta.Type, actions) })
			})
			if err != nil {
				return fmt.Errorf("actions of %s: %w", meta.Type, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(metas), nil
}

func (s *Session) reconcileTypes(metas []model.ObjectTypeMeta) {
	types := make([]model.ObjectType, len(metas))
	for i, meta := range metas {
		types[i].Meta = meta
		if cur, ok := s.ObjectTypes.Get(meta.Type); ok {
			types[i].Actions = cur.Data().Actions
		}
	}
	s.ObjectTypes.Reconcile(types)
}

func (s *Session) setActions(typ string, actions []model.ObjectAction) {
	cur, ok := s.ObjectTypes.Get(typ)
	if !ok {
		return
	}
	d := cur.Data()
	d.Actions = actions
	cur.Update(d)
}

// RegisterAndSubscribe registers user with the server and loads the scene,
// project and package listings. Change events keep them current from then on.
func (s *Session) RegisterAndSubscribe(user string) error {
	if err := s.require("register", StateInitialized); err != nil {
		return err
	}
	if user == "" {
		user = s.cfg.UserName
	}
	if err := s.rpc.Do("RegisterUser", model.RegisterUserArgs{UserName: user}); err != nil {
		return fmt.Errorf("register %q: %w", user, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := rpclient.FetchApply(s.rpc, "ListScenes", nil, func(v []model.SceneSummary) {
			s.invoke(func() { s.Scenes.Reconcile(v) })
		})
		return err
	})
	g.Go(func() error {
		_, err := rpclient.FetchApply(s.rpc, "ListProjects", nil, func(v []model.ProjectSummary) {
			s.invoke(func() { s.Projects.Reconcile(v) })
		})
		return err
	})
	g.Go(func() error {
		_, err := rpclient.FetchApply(s.rpc, "ListPackages", nil, func(v []model.PackageSummary) {
			s.invoke(func() { s.Packages.Reconcile(v) })
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	if !s.advance(StateRegistered) {
		return &errs.StateError{Op: "register", State: s.State().String()}
	}
	s.log.Info().Str("user", user).
		Int("scenes", s.Scenes.Len()).
		Int("projects", s.Projects.Len()).
		Int("packages", s.Packages.Len()).
		Msg("registered")
	return nil
}

// Close ends the connection. Closing a closed session is a no-op.
func (s *Session) Close() error {
	if s.State() == StateClosed {
		return nil
	}
	if s.t.State() == transport.StateNone {
		s.onClose(transport.CloseNormal, "closed before connect")
		return nil
	}
	return s.t.Close(transport.CloseNormal, "client closing")
}

func (s *Session) onClose(code int, reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	lost := &errs.ConnectionError{Op: "close", Err: fmt.Errorf("connection closed (%d) %s", code, reason)}
	if n := s.rpc.FailPending(lost); n > 0 {
		s.log.Warn().Int("pending", n).Msg("calls failed by close")
	}
	s.Scenes.Clear()
	s.Projects.Clear()
	s.Packages.Clear()
	s.ObjectTypes.Clear()

	s.log.Info().Int("code", code).Str("reason", reason).Msg("closed")
	s.StateChanged.Emit(StateClosed)
	s.Closed.Emit(CloseInfo{Code: code, Reason: reason})
}

// advance moves the state forward to next. It fails once closed or when next is
// not ahead of the current state.
func (s *Session) advance(next State) bool {
	s.mu.Lock()
	if s.state == StateClosed || next <= s.state {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()
	s.StateChanged.Emit(next)
	return true
}

func (s *Session) require(op string, want State) error {
	if st := s.State(); st != want {
		return &errs.StateError{Op: op, State: st.String()}
	}
	return nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Navigation() Navigation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nav
}

func (s *Session) SystemInfo() model.SystemInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// User is the name given to RegisterAndSubscribe.
func (s *Session) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// InstanceID identifies this session in logs.
func (s *Session) InstanceID() uuid.UUID { return s.id }

// Stats exposes dispatcher counters.
func (s *Session) Stats() dispatch.Stats { return s.disp.Stats() }

// Metrics is the prometheus registry behind Stats.
func (s *Session) Metrics() *prometheus.Registry { return s.disp.Registry() }

// Pending is the number of calls awaiting a response.
func (s *Session) Pending() int { return s.rpc.Pending() }
