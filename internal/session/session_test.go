package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/EgorLis/arcorclient/internal/config"
	"github.com/EgorLis/arcorclient/internal/errs"
	"github.com/EgorLis/arcorclient/internal/locking"
	"github.com/EgorLis/arcorclient/internal/logging"
	"github.com/EgorLis/arcorclient/internal/model"
	"github.com/EgorLis/arcorclient/internal/transport"
	"github.com/EgorLis/arcorclient/internal/transport/transporttest"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// server scripts replies to the requests a session makes.
type server struct {
	mu     sync.Mutex
	reject map[string]string
	silent map[string]bool
	// after holds frames pushed right behind the reply to a request.
	after  map[string][][]byte
	pushed sync.WaitGroup
}

func (srv *server) respond(f *transporttest.Fake, req wire.Request, _ []byte) {
	srv.mu.Lock()
	msg, rejected := srv.reject[req.Request]
	silent := srv.silent[req.Request]
	after := srv.after[req.Request]
	srv.mu.Unlock()
	if silent {
		return
	}
	if len(after) > 0 {
		srv.pushed.Add(1)
		defer srv.pushed.Done()
		defer func() {
			for _, frame := range after {
				f.Deliver(frame)
			}
		}()
	}
	if rejected {
		f.Reply(req, false, nil, msg)
		return
	}
	switch req.Request {
	case "GetObjectTypes":
		f.Reply(req, true, []model.ObjectTypeMeta{{Type: "Robot", HasPose: true}, {Type: "Camera"}})
	case "GetActions":
		var args model.TypeArgs
		_ = wire.Decode(req.Args, &args)
		f.Reply(req, true, []model.ObjectAction{{Name: args.Type + "_move"}})
	case "SystemInfo":
		f.Reply(req, true, model.SystemInfo{Version: "1.5.0", APIVersion: "1.0.2"})
	case "ListScenes":
		f.Reply(req, true, []model.SceneSummary{{ID: "s1", Name: "cell"}, {ID: "s2", Name: "bench"}})
	case "ListProjects":
		f.Reply(req, true, []model.ProjectSummary{{ID: "p1", Name: "pick", SceneID: "s1"}})
	case "ListPackages":
		f.Reply(req, true, []model.PackageSummary{{ID: "k1", Package: model.PackageMeta{Name: "run1"}}})
	case "Echo":
		f.Reply(req, true, map[string]any{"args": req.Args})
	default:
		f.Reply(req, true, nil)
	}
}

func (srv *server) setReject(name, msg string) {
	srv.mu.Lock()
	srv.reject[name] = msg
	srv.mu.Unlock()
}

func (srv *server) setAfter(name string, frames ...[]byte) {
	srv.mu.Lock()
	srv.after[name] = frames
	srv.mu.Unlock()
}

func newSession(t *testing.T, mutate ...func(*config.Config)) (*Session, *transporttest.Fake, *server) {
	t.Helper()
	cfg := config.Default()
	cfg.RPCTimeout = config.Duration(time.Second)
	for _, m := range mutate {
		m(&cfg)
	}
	srv := &server{reject: map[string]string{}, silent: map[string]bool{}, after: map[string][][]byte{}}
	f := transporttest.New()
	f.Responder = srv.respond
	s, err := New(cfg, f, WithLogger(logging.ForTest(t)))
	require.NoError(t, err)
	return s, f, srv
}

func registered(t *testing.T, mutate ...func(*config.Config)) (*Session, *transporttest.Fake, *server) {
	t.Helper()
	s, f, srv := newSession(t, mutate...)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Initialize())
	require.NoError(t, s.RegisterAndSubscribe("John"))
	return s, f, srv
}

func TestLifecycle(t *testing.T) {
	s, f, _ := newSession(t)
	var states []State
	s.StateChanged.Subscribe(func(st State) { states = append(states, st) })

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Initialize())
	require.NoError(t, s.RegisterAndSubscribe("John"))

	assert.Equal(t, []State{StateOpen, StateInitialized, StateRegistered}, states)
	assert.Equal(t, "John", s.User())
	assert.Equal(t, "1.5.0", s.SystemInfo().Version)

	robot, ok := s.ObjectTypes.Get("Robot")
	require.True(t, ok)
	require.Len(t, robot.Data().Actions, 1)
	assert.Equal(t, "Robot_move", robot.Data().Actions[0].Name)

	assert.Equal(t, []string{"s1", "s2"}, s.Scenes.IDs())
	assert.Equal(t, []string{"p1"}, s.Projects.IDs())
	assert.Equal(t, []string{"k1"}, s.Packages.IDs())

	reg := f.SentRequests()
	var user model.RegisterUserArgs
	for _, r := range reg {
		if r.Request == "RegisterUser" {
			require.NoError(t, wire.Decode(r.Args, &user))
		}
	}
	assert.Equal(t, "John", user.UserName)

	assert.NotZero(t, s.Stats().Responses)
	families, err := s.Metrics().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOperationsRequireState(t *testing.T) {
	s, _, _ := newSession(t)
	assert.True(t, errors.Is(s.Initialize(), errs.ErrState))
	assert.True(t, errors.Is(s.RegisterAndSubscribe("John"), errs.ErrState))
	assert.True(t, errors.Is(s.RenameScene("s1", "x"), errs.ErrState))

	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, errors.Is(s.Connect(context.Background()), errs.ErrState))
	_, err := s.RawCall("Echo", nil)
	assert.True(t, errors.Is(err, errs.ErrState))
}

func TestInitializeIsAllOrNothing(t *testing.T) {
	s, _, srv := newSession(t)
	srv.setReject("GetActions", "Object type broken.")
	require.NoError(t, s.Connect(context.Background()))

	err := s.Initialize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrRejected))
	assert.Equal(t, StateOpen, s.State())
	assert.Zero(t, s.ObjectTypes.Len())
}

func TestChangesRightAfterListingsAreKept(t *testing.T) {
	s, _, srv := newSession(t)
	srv.setAfter("ListScenes",
		transporttest.EventFrame("SceneChanged", wire.ChangeAdd, model.SceneSummary{ID: "s3", Name: "new"}),
		transporttest.EventFrame("SceneChanged", wire.ChangeUpdate, model.SceneSummary{ID: "s1", Name: "renamed"}),
	)
	srv.setAfter("ListProjects",
		transporttest.EventFrame("ProjectChanged", wire.ChangeRemove, model.ProjectSummary{ID: "p1"}),
	)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Initialize())
	require.NoError(t, s.RegisterAndSubscribe("John"))
	srv.pushed.Wait()

	assert.Equal(t, []string{"s1", "s2", "s3"}, s.Scenes.IDs())
	s1, ok := s.Scenes.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "renamed", s1.Data().Name)
	assert.Zero(t, s.Projects.Len())
}

func TestTypeChangeRightAfterListingIsKept(t *testing.T) {
	s, _, srv := newSession(t)
	srv.setAfter("GetObjectTypes",
		transporttest.EventFrame("ChangedObjectTypes", wire.ChangeAdd, []model.ObjectTypeMeta{{Type: "Gripper"}}),
		transporttest.EventFrame("ChangedObjectTypes", wire.ChangeRemove, []model.ObjectTypeMeta{{Type: "Camera"}}),
	)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Initialize())
	srv.pushed.Wait()

	_, ok := s.ObjectTypes.Get("Gripper")
	assert.True(t, ok)
	_, ok = s.ObjectTypes.Get("Camera")
	assert.False(t, ok)
	robot, ok := s.ObjectTypes.Get("Robot")
	require.True(t, ok)
	assert.Len(t, robot.Data().Actions, 1)
}

func TestRegisterRejected(t *testing.T) {
	s, _, srv := newSession(t)
	srv.setReject("RegisterUser", "Username already taken.")
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Initialize())

	err := s.RegisterAndSubscribe("John")
	var rej *errs.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, []string{"Username already taken."}, rej.Messages)
	assert.Equal(t, StateInitialized, s.State())
}

func TestNavigationFollowsEvents(t *testing.T) {
	s, f, _ := registered(t)
	var seen []Navigation
	s.NavigationChanged.Subscribe(func(n Navigation) { seen = append(seen, n) })

	f.Deliver(transporttest.EventFrame("ShowMainScreen", "", model.ShowMainScreen{What: model.MainScreenScenes, Highlight: "s2"}))
	f.Deliver(transporttest.EventFrame("OpenScene", "", model.OpenScene{Scene: model.Scene{ID: "s1"}}))
	f.Deliver(transporttest.EventFrame("SceneClosed", "", nil))
	f.Deliver(transporttest.EventFrame("ShowMainScreen", "", model.ShowMainScreen{What: model.MainScreenProjects}))
	f.Deliver(transporttest.EventFrame("OpenProject", "", model.OpenProject{Project: model.Project{ID: "p1", SceneID: "s1"}}))
	f.Deliver(transporttest.EventFrame("ProjectClosed", "", nil))
	f.Deliver(transporttest.EventFrame("OpenPackage", "", model.OpenPackage{PackageID: "k1"}))
	f.Deliver(transporttest.EventFrame("ShowMainScreen", "", model.ShowMainScreen{What: model.MainScreenPackages}))
	f.Deliver(transporttest.EventFrame("ShowMainScreen", "", model.ShowMainScreen{What: "Nowhere"}))

	assert.Equal(t, []Navigation{
		{State: NavMenuListOfScenes, ID: "s2"},
		{State: NavScene, ID: "s1"},
		{State: NavSceneClosed},
		{State: NavMenuListOfProjects},
		{State: NavProject, ID: "p1"},
		{State: NavProjectClosed},
		{State: NavPackage, ID: "k1"},
		{State: NavMenuListOfPackages},
	}, seen)
	assert.Equal(t, Navigation{State: NavMenuListOfPackages}, s.Navigation())
}

func TestChangeEventsKeepCollections(t *testing.T) {
	s, f, _ := registered(t)
	s1, _ := s.Scenes.Get("s1")
	removing := 0
	s1.Removing.Subscribe(func(string) { removing++ })

	f.Deliver(transporttest.EventFrame("SceneChanged", wire.ChangeUpdate, model.SceneSummary{ID: "s1", Name: "cell-2"}))
	same, _ := s.Scenes.Get("s1")
	assert.Same(t, s1, same)
	assert.Equal(t, "cell-2", s1.Data().Name)

	f.Deliver(transporttest.EventFrame("SceneChanged", wire.ChangeAdd, model.SceneSummary{ID: "s3", Name: "new"}))
	assert.Equal(t, []string{"s1", "s2", "s3"}, s.Scenes.IDs())

	f.Deliver(transporttest.EventFrame("SceneChanged", wire.ChangeRemove, model.SceneSummary{ID: "s1"}))
	assert.Equal(t, []string{"s2", "s3"}, s.Scenes.IDs())
	assert.Equal(t, 1, removing)
	assert.False(t, s.locks.ContainsKey("s1"))

	f.Deliver(transporttest.EventFrame("ChangedObjectTypes", wire.ChangeUpdate, []model.ObjectTypeMeta{{Type: "Robot", Description: "arm"}}))
	robot, _ := s.ObjectTypes.Get("Robot")
	assert.Equal(t, "arm", robot.Data().Meta.Description)
	assert.Len(t, robot.Data().Actions, 1)

	f.Deliver(transporttest.EventFrame("ChangedObjectTypes", wire.ChangeRemove, []model.ObjectTypeMeta{{Type: "Camera"}}))
	assert.Equal(t, []string{"Robot"}, s.ObjectTypes.IDs())
}

func TestRenameUnderAutoLock(t *testing.T) {
	s, f, _ := registered(t)
	before := len(f.SentRequests())

	require.NoError(t, s.RenameScene("s1", "welding"))

	reqs := f.SentRequests()[before:]
	require.Len(t, reqs, 2)
	assert.Equal(t, locking.RequestWriteLock, reqs[0].Request)
	assert.JSONEq(t, `{"object_ids":["s1"],"lock_tree":false}`, string(reqs[0].Args))
	assert.Equal(t, "RenameScene", reqs[1].Request)
	assert.Zero(t, f.CountSent(locking.RequestWriteUnlock))

	sc, _ := s.Scenes.Get("s1")
	assert.Equal(t, "welding", sc.Data().Name)
}

func TestRenameRejected(t *testing.T) {
	s, _, srv := registered(t)
	srv.setReject("RenameProject", "Name already used.")

	err := s.RenameProject("p1", "place")
	assert.True(t, errors.Is(err, errs.ErrRejected))
	p, _ := s.Projects.Get("p1")
	assert.Equal(t, "pick", p.Data().Name)

	assert.True(t, errors.Is(s.RenamePackage("ghost", "x"), ErrUnknownEntity))
}

func TestRenameWithoutAutoLock(t *testing.T) {
	s, f, _ := registered(t, func(c *config.Config) { c.LockMode = "none" })
	require.NoError(t, s.RenamePackage("k1", "run2"))
	assert.Zero(t, f.CountSent(locking.RequestWriteLock))
	k, _ := s.Packages.Get("k1")
	assert.Equal(t, "run2", k.Data().Package.Name)
}

func TestExplicitLocking(t *testing.T) {
	s, f, _ := registered(t)

	err := s.LockEntity("s1", false)
	assert.True(t, errors.Is(err, errs.ErrLockPolicy))
	assert.Zero(t, f.CountSent(locking.RequestWriteLock))

	require.NoError(t, s.SetPauseAutoLock("s1", true))
	require.NoError(t, s.LockEntity("s1", true))
	assert.Equal(t, 1, f.CountSent(locking.RequestWriteLock))

	s.SetLockMode(locking.NoLocks)
	require.NoError(t, s.UnlockEntity("p1"))
	assert.Equal(t, 1, f.CountSent(locking.RequestWriteUnlock))
}

func TestLockEventsTrackOwner(t *testing.T) {
	s, f, _ := registered(t)
	f.Deliver(transporttest.EventFrame("ObjectsLocked", "", model.ObjectsLocked{Owner: "Alice", ObjectIDs: []string{"s1", "p1"}}))

	l, ok := s.Lockable("p1")
	require.True(t, ok)
	owner, locked := l.Owner()
	assert.True(t, locked)
	assert.Equal(t, "Alice", owner)

	f.Deliver(transporttest.EventFrame("ObjectsUnlocked", "", model.ObjectsLocked{Owner: "Alice", ObjectIDs: []string{"p1"}}))
	_, locked = l.Owner()
	assert.False(t, locked)
}

func TestCloseFailsPendingAndDisposes(t *testing.T) {
	s, _, srv := registered(t)
	srv.mu.Lock()
	srv.silent["Hang"] = true
	srv.mu.Unlock()

	sc, _ := s.Scenes.Get("s1")
	closed := 0
	s.Closed.Subscribe(func(CloseInfo) { closed++ })

	done := make(chan error, 1)
	go func() {
		_, err := s.RawCall("Hang", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, errs.ErrConnection))
	case <-time.After(time.Second):
		t.Fatal("pending call not failed")
	}

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, sc.Disposed())
	assert.Zero(t, s.Scenes.Len())
	assert.Zero(t, s.ObjectTypes.Len())
	assert.True(t, errors.Is(s.RenameScene("s1", "x"), errs.ErrState))
	require.NoError(t, s.Close())
	assert.Equal(t, 1, closed)
}

func TestServerDropClosesSession(t *testing.T) {
	s, f, _ := registered(t)
	var info CloseInfo
	s.Closed.Subscribe(func(ci CloseInfo) { info = ci })

	f.Fail(errors.New("connection reset"))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, transport.CloseAbnormal, info.Code)
}

func TestHandshakeFailureClosesSession(t *testing.T) {
	s, f, _ := newSession(t)
	f.ConnectErr = errors.New("refused")
	err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, errs.ErrConnection))
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, errors.Is(s.Initialize(), errs.ErrState))
}

func TestRawCall(t *testing.T) {
	s, f, _ := registered(t)
	args, err := structpb.NewStruct(map[string]any{"id": "s1", "dry_run": true})
	require.NoError(t, err)

	v, err := s.RawCall("Echo", args)
	require.NoError(t, err)
	got := v.GetStructValue().GetFields()["args"].GetStructValue().AsMap()
	assert.Equal(t, map[string]any{"id": "s1", "dry_run": true}, got)
	assert.Equal(t, 1, f.CountSent("Echo"))
}

func TestCompatible(t *testing.T) {
	assert.True(t, Compatible("1.4.0"))
	assert.True(t, Compatible("v1.0.0"))
	assert.False(t, Compatible("2.0.0"))
	assert.True(t, Compatible("dev"))
	s, _, _ := newSession(t)
	assert.Equal(t, APIVersion, s.APIVersion())
}

func TestNewRejectsBadLockMode(t *testing.T) {
	cfg := config.Default()
	cfg.LockMode = "sometimes"
	_, err := New(cfg, transporttest.New())
	assert.Error(t, err)
}
