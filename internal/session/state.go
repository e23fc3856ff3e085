package session

import "fmt"

// State is the session lifecycle. It only moves forward; Closed is terminal.
type State int32

const (
	StateNone State = iota
	StateOpen
	StateInitialized
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateOpen:
		return "open"
	case StateInitialized:
		return "initialized"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// NavState is the server asserted current view.
type NavState int

const (
	NavNone NavState = iota
	NavMenuListOfScenes
	NavMenuListOfProjects
	NavMenuListOfPackages
	// NavSceneClosed and NavProjectClosed hold while the menu event that
	// follows a close is pending.
	NavSceneClosed
	NavProjectClosed
	NavScene
	NavProject
	NavPackage
)

var navNames = [...]string{
	NavNone:               "none",
	NavMenuListOfScenes:   "menu:scenes",
	NavMenuListOfProjects: "menu:projects",
	NavMenuListOfPackages: "menu:packages",
	NavSceneClosed:        "scene-closed",
	NavProjectClosed:      "project-closed",
	NavScene:              "scene",
	NavProject:            "project",
	NavPackage:            "package",
}

func (n NavState) String() string {
	if n >= 0 && int(n) < len(navNames) {
		return navNames[n]
	}
	return fmt.Sprintf("NavState(%d)", int(n))
}

// Navigation is the current view plus the id of the entity it shows, if any.
type Navigation struct {
	State NavState
	ID    string
}

func (n Navigation) String() string {
	if n.ID == "" {
		return n.State.String()
	}
	return n.State.String() + " " + n.ID
}

// CloseInfo describes how the connection ended.
type CloseInfo struct {
	Code   int
	Reason string
}
