package session

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/EgorLis/arcorclient/internal/locking"
	"github.com/EgorLis/arcorclient/internal/model"
	"github.com/EgorLis/arcorclient/internal/rpclient"
	"github.com/EgorLis/arcorclient/internal/wire"
)

// ErrUnknownEntity is returned for ids not present in any collection.
var ErrUnknownEntity = errors.New("session: unknown entity")

// Lockable is the lock surface shared by scenes, projects and packages.
type Lockable interface {
	ID() string
	Lock(lockTree bool) error
	Unlock() error
	PauseAutoLock() bool
	SetPauseAutoLock(on bool)
	Owner() (string, bool)
}

var (
	_ Lockable = (*Scene)(nil)
	_ Lockable = (*Project)(nil)
	_ Lockable = (*Package)(nil)
)

// ========================= lock policy =========================

func (s *Session) LockMode() locking.Mode { return s.policy.Mode() }

func (s *Session) SetLockMode(m locking.Mode) {
	s.policy.SetMode(m)
	s.log.Info().Stringer("mode", m).Msg("lock mode")
}

// Lockable finds a scene, project or package by id.
func (s *Session) Lockable(id string) (Lockable, bool) {
	if v, ok := s.Scenes.Get(id); ok {
		return v, true
	}
	if v, ok := s.Projects.Get(id); ok {
		return v, true
	}
	if v, ok := s.Packages.Get(id); ok {
		return v, true
	}
	return nil, false
}

func (s *Session) lockable(op, id string) (Lockable, error) {
	if err := s.require(op, StateRegistered); err != nil {
		return nil, err
	}
	l, ok := s.Lockable(id)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrUnknownEntity)
	}
	return l, nil
}

// LockEntity sends WriteLock for id. It is refused under AutoLock unless the
// entity has auto-lock paused.
func (s *Session) LockEntity(id string, lockTree bool) error {
	l, err := s.lockable("lock", id)
	if err != nil {
		return err
	}
	return l.Lock(lockTree)
}

func (s *Session) UnlockEntity(id string) error {
	l, err := s.lockable("unlock", id)
	if err != nil {
		return err
	}
	return l.Unlock()
}

func (s *Session) SetPauseAutoLock(id string, on bool) error {
	l, err := s.lockable("pause", id)
	if err != nil {
		return err
	}
	l.SetPauseAutoLock(on)
	return nil
}

// ========================= mutations =========================

func (s *Session) RenameScene(id, name string) error {
	if err := s.require("rename scene", StateRegistered); err != nil {
		return err
	}
	sc, ok := s.Scenes.Get(id)
	if !ok {
		return fmt.Errorf("scene %s: %w", id, ErrUnknownEntity)
	}
	return rename(s, sc, "RenameScene", model.RenameSceneArgs{ID: id, NewName: name}, func(d *model.SceneSummary) {
		d.Name = name
	})
}

func (s *Session) RenameProject(id, name string) error {
	if err := s.require("rename project", StateRegistered); err != nil {
		return err
	}
	p, ok := s.Projects.Get(id)
	if !ok {
		return fmt.Errorf("project %s: %w", id, ErrUnknownEntity)
	}
	return rename(s, p, "RenameProject", model.RenameProjectArgs{ProjectID: id, NewName: name}, func(d *model.ProjectSummary) {
		d.Name = name
	})
}

func (s *Session) RenamePackage(id, name string) error {
	if err := s.require("rename package", StateRegistered); err != nil {
		return err
	}
	p, ok := s.Packages.Get(id)
	if !ok {
		return fmt.Errorf("package %s: %w", id, ErrUnknownEntity)
	}
	return rename(s, p, "RenamePackage", model.RenamePackageArgs{PackageID: id, NewName: name}, func(d *model.PackageSummary) {
		d.Package.Name = name
	})
}

// rename runs a mutating request under the lock policy and applies the change
// locally once the server accepted it.
func rename[T any](s *Session, l *locking.Lockable[T], request string, args any, apply func(*T)) error {
	return l.Mutate(func() error {
		if err := s.rpc.Do(request, args); err != nil {
			s.log.Warn().Err(err).Str("request", request).Str("id", l.ID()).Msg("mutation failed")
			return err
		}
		d := l.Data()
		apply(&d)
		l.Update(d)
		return nil
	})
}

// ========================= untyped =========================

// RawCall sends an arbitrary request. A rejection is returned as an
// errs.RejectedError; the response data comes back as a structpb value.
func (s *Session) RawCall(request string, args *structpb.Struct) (*structpb.Value, error) {
	if err := s.require("call "+request, StateRegistered); err != nil {
		return nil, err
	}
	var a any
	if args != nil {
		a = args
	}
	resp, err := s.rpc.Call(request, a, request)
	if err := rpclient.Expect(resp, err); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return structpb.NewNullValue(), nil
	}
	out := &structpb.Value{}
	if err := wire.Decode(resp.Data, out); err != nil {
		return nil, err
	}
	return out, nil
}
