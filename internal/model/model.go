// Package model holds the payload shapes exchanged with the workcell server.
// Types are data only.
package model

// ========================= listings =========================

type SceneSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Modified    string `json:"modified,omitempty"`
}

type ProjectSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SceneID     string   `json:"scene_id"`
	Modified    string   `json:"modified,omitempty"`
	HasLogic    bool     `json:"has_logic"`
	Problems    []string `json:"problems,omitempty"`
}

type PackageMeta struct {
	Name  string `json:"name"`
	Built string `json:"built,omitempty"`
}

type ProjectMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PackageSummary struct {
	ID      string      `json:"id"`
	Package PackageMeta `json:"package_meta"`
	Project ProjectMeta `json:"project_meta"`
}

// ========================= object types =========================

type ObjectTypeMeta struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	BuiltIn     bool   `json:"built_in"`
	Base        string `json:"base,omitempty"`
	Abstract    bool   `json:"abstract"`
	Disabled    bool   `json:"disabled"`
	Problem     string `json:"problem,omitempty"`
	HasPose     bool   `json:"has_pose"`
}

type ParameterMeta struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
}

type ObjectAction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []ParameterMeta `json:"parameters,omitempty"`
	Returns     []string        `json:"returns,omitempty"`
	Disabled    bool            `json:"disabled"`
	Problem     string          `json:"problem,omitempty"`
}

// ObjectType is an object type together with the actions it offers.
type ObjectType struct {
	Meta    ObjectTypeMeta
	Actions []ObjectAction
}

// ========================= system =========================

type SystemInfo struct {
	Version                 string   `json:"version"`
	APIVersion              string   `json:"api_version"`
	SupportedParameterTypes []string `json:"supported_parameter_types,omitempty"`
	SupportedRPCRequests    []string `json:"supported_rpc_requests,omitempty"`
}

// ========================= event payloads =========================

type Scene struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SceneID     string `json:"scene_id"`
	Description string `json:"description,omitempty"`
}

type OpenScene struct {
	Scene Scene `json:"scene"`
}

type OpenProject struct {
	Scene   Scene   `json:"scene"`
	Project Project `json:"project"`
}

type OpenPackage struct {
	PackageID string  `json:"package_id"`
	Scene     Scene   `json:"scene"`
	Project   Project `json:"project"`
}

// Main screen values carried by ShowMainScreen.
const (
	MainScreenScenes   = "ScenesList"
	MainScreenProjects = "ProjectsList"
	MainScreenPackages = "PackagesList"
)

type ShowMainScreen struct {
	What      string `json:"what"`
	Highlight string `json:"highlight,omitempty"`
}

type ObjectsLocked struct {
	Owner     string   `json:"owner"`
	ObjectIDs []string `json:"object_ids"`
}

// ========================= request arguments =========================

type RegisterUserArgs struct {
	UserName string `json:"user_name"`
}

type TypeArgs struct {
	Type string `json:"type"`
}

type RenameSceneArgs struct {
	ID      string `json:"id"`
	NewName string `json:"new_name"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

type RenameProjectArgs struct {
	ProjectID string `json:"project_id"`
	NewName   string `json:"new_name"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

type RenamePackageArgs struct {
	PackageID string `json:"package_id"`
	NewName   string `json:"new_name"`
}
