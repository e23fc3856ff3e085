package session

import (
	"github.com/EgorLis/arcorclient/internal/dispatch"
	"github.com/EgorLis/arcorclient/internal/entity"
	"github.com/EgorLis/arcorclient/internal/locking"
	"github.com/EgorLis/arcorclient/internal/model"
	"github.com/EgorLis/arcorclient/internal/wire"
)

var (
	entityChanges = []wire.ChangeType{wire.ChangeAdd, wire.ChangeUpdate, wire.ChangeUpdateBase, wire.ChangeRemove}
	typeChanges   = []wire.ChangeType{wire.ChangeAdd, wire.ChangeUpdate, wire.ChangeRemove}
)

// registerHandlers fills the dispatch table. Handlers never issue calls.
func (s *Session) registerHandlers() {
	d := s.disp

	dispatch.OnChange(d, "SceneChanged", entityChanges, func(ct wire.ChangeType, v model.SceneSummary) {
		applyChange(s.Scenes, ct, v.ID, v)
	})
	dispatch.OnChange(d, "ProjectChanged", entityChanges, func(ct wire.ChangeType, v model.ProjectSummary) {
		applyChange(s.Projects, ct, v.ID, v)
	})
	dispatch.OnChange(d, "PackageChanged", entityChanges, func(ct wire.ChangeType, v model.PackageSummary) {
		applyChange(s.Packages, ct, v.ID, v)
	})
	dispatch.OnChange(d, "ChangedObjectTypes", typeChanges, func(ct wire.ChangeType, metas []model.ObjectTypeMeta) {
		for _, meta := range metas {
			t := model.ObjectType{Meta: meta}
			if cur, ok := s.ObjectTypes.Get(meta.Type); ok {
				t.Actions = cur.Data().Actions
			}
			applyChange(s.ObjectTypes, ct, meta.Type, t)
		}
	})

	dispatch.On(d, "OpenScene", func(v model.OpenScene) {
		s.navigate(Navigation{State: NavScene, ID: v.Scene.ID})
	})
	dispatch.On(d, "OpenProject", func(v model.OpenProject) {
		s.navigate(Navigation{State: NavProject, ID: v.Project.ID})
	})
	dispatch.On(d, "OpenPackage", func(v model.OpenPackage) {
		s.navigate(Navigation{State: NavPackage, ID: v.PackageID})
	})
	d.Handle("SceneClosed", func(wire.Event) {
		s.navigate(Navigation{State: NavSceneClosed})
	})
	d.Handle("ProjectClosed", func(wire.Event) {
		s.navigate(Navigation{State: NavProjectClosed})
	})
	dispatch.On(d, "ShowMainScreen", func(v model.ShowMainScreen) {
		var st NavState
		switch v.What {
		case model.MainScreenScenes:
			st = NavMenuListOfScenes
		case model.MainScreenProjects:
			st = NavMenuListOfProjects
		case model.MainScreenPackages:
			st = NavMenuListOfPackages
		default:
			s.log.Debug().Str("what", v.What).Msg("unknown main screen")
			return
		}
		s.navigate(Navigation{State: st, ID: v.Highlight})
	})

	dispatch.On(d, "ObjectsLocked", func(v model.ObjectsLocked) {
		n := locking.MarkLocked(s.locks, v.ObjectIDs, v.Owner)
		s.log.Debug().Str("owner", v.Owner).Strs("ids", v.ObjectIDs).Int("known", n).Msg("objects locked")
	})
	dispatch.On(d, "ObjectsUnlocked", func(v model.ObjectsLocked) {
		n := locking.MarkUnlocked(s.locks, v.ObjectIDs)
		s.log.Debug().Strs("ids", v.ObjectIDs).Int("known", n).Msg("objects unlocked")
	})
}

func applyChange[T any, E entity.Entity[T]](c *entity.Collection[T, E], ct wire.ChangeType, id string, v T) {
	if ct == wire.ChangeRemove {
		c.Remove(id)
		return
	}
	c.Upsert(v)
}

func (s *Session) navigate(n Navigation) {
	s.mu.Lock()
	if s.state == StateClosed || s.nav == n {
		s.mu.Unlock()
		return
	}
	prev := s.nav
	s.nav = n
	s.mu.Unlock()
	s.log.Info().Stringer("from", prev).Stringer("to", n).Msg("navigation")
	s.NavigationChanged.Emit(n)
}
