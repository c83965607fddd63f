// Package taskdef implements the Task Builder: merging
// global task templates with local project config into a fully
// expanded Task, applying merge strategies, inferring toolchain and
// platform, and deriving option defaults.
//
// Config arrives as already-parsed semantic structures; this package
// never touches configuration files itself.
package taskdef

import (
	"github.com/hashicorp/go-hclog"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

// RawTaskConfig is one task entry as it appears in either a global
// template file or a project's local config, before merging. Fields
// left nil/zero are "not specified at this layer" and do not
// participate in a merge at that layer.
type RawTaskConfig struct {
	ID ident.ID

	// Scope match fields, only meaningful on global templates.
	Toolchain   string
	Language    string
	Stack       string
	ProjectType string
	Tag         string

	Extends string

	Command interface{} // string or []string; nil = unspecified
	Args    interface{} // string or []string
	Env     map[string]string
	Script  string

	Inputs  []model.TaskValue
	Outputs []model.TaskValue
	Deps    []model.TaskDependency

	Options *PartialOptions

	Preset model.Preset
}

// PartialOptions mirrors model.TaskOptions but with pointer fields so
// "unspecified at this layer" is distinguishable from an explicit
// zero/false value.
type PartialOptions struct {
	Cache         *bool
	Persistent    *bool
	Interactive   *bool
	RunInCI       *bool
	OutputStyle   *model.OutputStyle
	RetryCount    *int
	Shell         *bool
	AffectedFiles *model.AffectedFilesMode
	EnvFiles      []string
	OS            []model.OS
	MergeArgs     *model.MergeStrategy
	MergeDeps     *model.MergeStrategy
	MergeEnv      *model.MergeStrategy
	MergeInputs   *model.MergeStrategy
	MergeOutputs  *model.MergeStrategy
	InferInputs   *bool
	MutexName     *string
	TimeoutMS     *int
}

// InheritedTasks is a project's `workspace.inheritedTasks` override
// block.
type InheritedTasks struct {
	Include *[]ident.ID // nil = keep all; non-nil (incl. empty) = keep only listed
	Exclude []ident.ID
	Rename  map[ident.ID]ident.ID
}

// ToolchainSettings maps a leading command binary to the runtime kind
// it implies.
type ToolchainSettings struct {
	BinaryToRuntime map[string]model.RuntimeKind
	Versions        map[model.RuntimeKind]string
}

// ProjectContext is the subset of a Project the builder needs that
// isn't itself a RawTaskConfig: identity, scope-match fields, and
// whether it's the workspace root project.
type ProjectContext struct {
	ID           ident.ID
	Language     string
	Stack        string
	Layer        model.Layer
	Tags         []ident.ID
	IsRoot       bool
	ToolchainKey string // project's own configured/inferred toolchain, for inheritance
}

// BuildInput bundles everything Build needs for one task id.
type BuildInput struct {
	Project          ProjectContext
	Globals          []RawTaskConfig // already filtered+ordered by scope precedence (most specific last)
	Local            *RawTaskConfig  // nil if the project declares no local override
	Inherited        InheritedTasks
	Toolchain        ToolchainSettings
	ImplicitInputs   []model.TaskValue
	ImplicitDeps     []model.TaskDependency
	SuppressImplicit bool
	Logger           hclog.Logger
}
