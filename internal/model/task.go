package model

import "github.com/mason-build/mason/internal/ident"

// TaskKind is the union tag for an input or output reference, before
// token expansion resolves it to concrete files/globs/env vars.
type TaskKind int

const (
	KindProjectFile TaskKind = iota
	KindProjectGlob
	KindWorkspaceFile
	KindWorkspaceGlob
	KindEnvVar
	KindEnvVarGlob
	KindTokenFunc
	KindTokenVar
)

// TaskValue is one entry of a task's (pre-expansion) inputs or outputs
// list: a union over the eight kinds above, carrying the raw string
// that produced it (a literal path, glob, env var name/pattern, or an
// unexpanded `@fn(...)`/`$var` token).
type TaskValue struct {
	Kind TaskKind
	Raw  string
}

// TaskType classifies what a task represents, independent of its
// command.
type TaskType int

const (
	TaskBuild TaskType = iota
	TaskRun
	TaskTest
)

// OutputStyle controls how a running task's stdio is surfaced.
type OutputStyle int

const (
	OutputBuffer OutputStyle = iota
	OutputStream
	OutputHash
	OutputNone
)

// AffectedFilesMode controls how touched-file information is passed
// through to the task process.
type AffectedFilesMode int

const (
	AffectedDisabled AffectedFilesMode = iota
	AffectedEnabled
	AffectedArgs
	AffectedEnv
)

// MergeStrategy controls how a field accumulates values across the
// global -> extended -> local merge chain.
type MergeStrategy int

const (
	MergeAppend MergeStrategy = iota
	MergePrepend
	MergeReplace
)

// OS is a platform a task is allowed to run on.
type OS int

const (
	OSLinux OS = iota
	OSMacos
	OSWindows
)

// TaskOptions are the enumerated flags controlling how a task executes.
type TaskOptions struct {
	Cache         bool
	Persistent    bool
	Interactive   bool
	RunInCI       bool
	OutputStyle   OutputStyle
	RetryCount    int
	Shell         bool
	AffectedFiles AffectedFilesMode
	EnvFiles      []string
	OS            []OS
	MergeArgs     MergeStrategy
	MergeDeps     MergeStrategy
	MergeEnv      MergeStrategy
	MergeInputs   MergeStrategy
	MergeOutputs  MergeStrategy
	InferInputs   bool
	MutexName     string
	TimeoutMS     int
}

// Preset is a named bundle of TaskOptions defaults, applied before
// local overrides.
type Preset int

const (
	PresetNone Preset = iota
	PresetServer
	PresetWatcher
)

// DefaultsFor returns the TaskOptions defaults a preset establishes.
// Every field it sets remains overridable by a more specific layer.
func DefaultsFor(p Preset) TaskOptions {
	opts := TaskOptions{
		Cache:       true,
		RunInCI:     true,
		OutputStyle: OutputBuffer,
		MergeArgs:   MergeAppend,
		MergeDeps:   MergeAppend,
		MergeEnv:    MergeAppend,
		MergeInputs: MergeAppend,
		MergeOutputs: MergeAppend,
		InferInputs: true,
	}
	switch p {
	case PresetServer:
		opts.Cache = false
		opts.Persistent = true
		opts.OutputStyle = OutputStream
		opts.RunInCI = false
	case PresetWatcher:
		opts.Cache = false
		opts.OutputStyle = OutputStream
		opts.RunInCI = false
	}
	return opts
}

// RuntimeKind is a toolchain kind attached to an action node or task.
type RuntimeKind int

const (
	RuntimeSystem RuntimeKind = iota
	RuntimeGlobal
	RuntimeNode
	RuntimeBun
	RuntimeDeno
	RuntimeRust
)

// Runtime is a concrete toolchain instance: a kind plus a version, or
// one of the two sentinel states (Global/System).
type Runtime struct {
	Kind    RuntimeKind
	Version string // empty for System/Global
}

// VersionOrMarker renders the version, or "Global"/"System" when the
// runtime has no pinned version. Used directly as a hash
// contribution.
func (r Runtime) VersionOrMarker() string {
	switch r.Kind {
	case RuntimeSystem:
		return "System"
	case RuntimeGlobal:
		return "Global"
	default:
		if r.Version == "" {
			return "Global"
		}
		return r.Version
	}
}

// TaskMetadata carries per-task bookkeeping flags recorded during
// task building.
type TaskMetadata struct {
	LocalOnly   bool
	EmptyInputs bool
	RootLevel   bool
}

// Task is a fully expanded task definition. After
// expansion it additionally carries the resolved sets
// InputFiles/InputGlobs/InputEnv/OutputFiles/OutputGlobs.
type Task struct {
	ID      ident.ID
	Target  string // rendered target.Target string, set once attached to a project
	Command []string
	Args    []string
	Env     map[string]string
	Script  string // empty unless the task is script-driven

	Inputs  []TaskValue
	Outputs []TaskValue

	Deps []TaskDependency

	Options  TaskOptions
	Runtime  Runtime
	Type     TaskType
	Metadata TaskMetadata

	// Populated by the token expander (internal/token) during
	// expansion; nil on a just-built, unexpanded Task.
	InputFiles  []string
	InputGlobs  []string
	InputEnv    []string
	OutputFiles []string
	OutputGlobs []string
}

// TaskDependency is one entry of Task.Deps: a reference to another
// task (by id, or a target-scope string like `^:build`), optionally
// carrying argument/env overrides that change the dependency's node
// identity.
type TaskDependency struct {
	Target string
	Args   []string
	Env    map[string]string
}
