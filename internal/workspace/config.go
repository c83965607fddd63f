// Package workspace is the on-disk entry point the CLI uses to turn a
// directory tree of `mason.yml` files into a fully built, expanded
// project graph: load, decode, discover, merge, and expand, wiring
// together projectgraph/taskdef/token. The YAML is decoded via
// viper+mapstructure into the typed DTOs taskdef/projectgraph already
// expect; no other package parses configuration files.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/mason-build/mason/internal/cacheengine"
	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/projectgraph"
	"github.com/mason-build/mason/internal/target"
	"github.com/mason-build/mason/internal/taskdef"
)

// fileName is the per-directory config file this package looks for,
// both at the workspace root and at every declared project path.
const fileName = "mason.yml"

// rawDependency is one `dependsOn` entry as written in YAML.
type rawDependency struct {
	ID    string `mapstructure:"id"`
	Scope string `mapstructure:"scope"`
}

// rawFileGroup is one `fileGroups` entry.
type rawFileGroup struct {
	Files []string `mapstructure:"files"`
	Globs []string `mapstructure:"globs"`
}

// rawTask mirrors taskdef.RawTaskConfig's YAML-facing shape. Options
// decodes into a nested *rawTaskOptions whose boolean and numeric
// fields are pointers, so "absent in this layer" survives the decode
// as a nil pointer rather than a zero value.
type rawTask struct {
	Toolchain string `mapstructure:"toolchain"`
	Language  string `mapstructure:"language"`
	Stack     string `mapstructure:"stack"`
	Tag       string `mapstructure:"tag"`
	Extends   string `mapstructure:"extends"`

	Command interface{}       `mapstructure:"command"`
	Args    interface{}       `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Script  string            `mapstructure:"script"`

	Inputs  []string `mapstructure:"inputs"`
	Outputs []string `mapstructure:"outputs"`
	Deps    []string `mapstructure:"deps"`

	Preset  string           `mapstructure:"preset"`
	Options *rawTaskOptions  `mapstructure:"options"`
}

type rawTaskOptions struct {
	Cache         *bool    `mapstructure:"cache"`
	Persistent    *bool    `mapstructure:"persistent"`
	Interactive   *bool    `mapstructure:"interactive"`
	RunInCI       *bool    `mapstructure:"runInCI"`
	OutputStyle   string   `mapstructure:"outputStyle"`
	RetryCount    *int     `mapstructure:"retryCount"`
	Shell         *bool    `mapstructure:"shell"`
	AffectedFiles string   `mapstructure:"affectedFiles"`
	EnvFiles      []string `mapstructure:"envFiles"`
	OS            []string `mapstructure:"os"`
	MutexName     *string  `mapstructure:"mutexName"`
	TimeoutMS     *int     `mapstructure:"timeoutMS"`
	InferInputs   *bool    `mapstructure:"inferInputs"`
}

// rawProject is the root-relative project descriptor: decoded either
// from the workspace root file's `projects[]` entries (inline form) or
// from a project's own mason.yml (file form, `id` required).
type rawProject struct {
	ID         string                  `mapstructure:"id"`
	Path       string                  `mapstructure:"path"`
	Language   string                  `mapstructure:"language"`
	Stack      string                  `mapstructure:"stack"`
	Layer      string                  `mapstructure:"layer"`
	Tags       []string                `mapstructure:"tags"`
	DependsOn  []rawDependency         `mapstructure:"dependsOn"`
	FileGroups map[string]rawFileGroup `mapstructure:"fileGroups"`
	Tasks      map[string]rawTask      `mapstructure:"tasks"`
}

// rawRunner is the root document's `runner` block.
type rawRunner struct {
	ArchivableTargets []string `mapstructure:"archivableTargets"`
}

// rawConstraints is the root document's `constraints` block.
type rawConstraints struct {
	EnforceLayers    bool                `mapstructure:"enforceLayers"`
	TagRelationships map[string][]string `mapstructure:"tagRelationships"`
}

// rawWorkspace is the root `mason.yml` document. Projects may be
// declared inline (`projects`), discovered by walking `projectGlobs`
// from the workspace root, or both.
type rawWorkspace struct {
	CacheMode    string             `mapstructure:"cacheMode"`
	Projects     []rawProject       `mapstructure:"projects"`
	ProjectGlobs []string           `mapstructure:"projectGlobs"`
	Constraints  rawConstraints     `mapstructure:"constraints"`
	Runner       rawRunner          `mapstructure:"runner"`
	Tasks        map[string]rawTask `mapstructure:"tasks"`
}

// Config is the decoded, not-yet-discovered form of a workspace: the
// root project list plus the global task catalog every project layers
// its own tasks on top of.
type Config struct {
	Root          string
	CacheMode     cacheengine.Mode
	Projects      []rawProject
	Globs         []string
	EnforceLayers bool
	TagRules      projectgraph.TagRules

	// ArchivableTargets force caching on for the tasks they address,
	// even when the task itself left `cache` off.
	ArchivableTargets []target.Target

	Globals map[string][]taskdef.RawTaskConfig // task id -> scope-ordered layer list
}

// Load reads root/mason.yml and returns the decoded workspace
// document. It does not walk project directories or build the project
// graph; callers drive that with Discover and Build.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, fileName))
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", fileName)
	}

	var raw rawWorkspace
	if err := v.Unmarshal(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding workspace config")
	}

	globals := make(map[string][]taskdef.RawTaskConfig, len(raw.Tasks))
	for id, t := range raw.Tasks {
		taskID, err := ident.ParseID(id)
		if err != nil {
			return nil, errors.Wrapf(err, "task %q", id)
		}
		globals[id] = []taskdef.RawTaskConfig{toRawTaskConfig(taskID, t)}
	}

	tagRules := make(projectgraph.TagRules, len(raw.Constraints.TagRelationships))
	for tag, allowed := range raw.Constraints.TagRelationships {
		tagID, err := ident.ParseID(tag)
		if err != nil {
			return nil, errors.Wrapf(err, "constraints.tagRelationships key %q", tag)
		}
		ids := make([]ident.ID, 0, len(allowed))
		for _, a := range allowed {
			id, err := ident.ParseID(a)
			if err != nil {
				return nil, errors.Wrapf(err, "constraints.tagRelationships[%s] entry %q", tag, a)
			}
			ids = append(ids, id)
		}
		tagRules[tagID] = ids
	}

	archivable := make([]target.Target, 0, len(raw.Runner.ArchivableTargets))
	for _, loc := range raw.Runner.ArchivableTargets {
		t, err := target.Parse(loc)
		if err != nil {
			return nil, errors.Wrapf(err, "runner.archivableTargets entry %q", loc)
		}
		archivable = append(archivable, t)
	}

	return &Config{
		Root:              root,
		CacheMode:         cacheengine.ModeFromString(raw.CacheMode),
		Projects:          raw.Projects,
		Globs:             raw.ProjectGlobs,
		EnforceLayers:     raw.Constraints.EnforceLayers,
		TagRules:          tagRules,
		ArchivableTargets: archivable,
		Globals:           globals,
	}, nil
}

// loadProjectFile reads one project's own mason.yml, if present, and
// returns nil when there is none. mergeProjectDecl overlays the result
// onto the root document's inline entry.
func loadProjectFile(dir string) (*rawProject, error) {
	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var p rawProject
	if err := v.Unmarshal(&p); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &p, nil
}

func toRawTaskConfig(id ident.ID, t rawTask) taskdef.RawTaskConfig {
	cfg := taskdef.RawTaskConfig{
		ID:        id,
		Toolchain: t.Toolchain,
		Language:  t.Language,
		Stack:     t.Stack,
		Tag:       t.Tag,
		Extends:   t.Extends,
		Command:   t.Command,
		Args:      t.Args,
		Env:       t.Env,
		Script:    t.Script,
		Preset:    presetFromString(t.Preset),
	}
	for _, raw := range t.Inputs {
		cfg.Inputs = append(cfg.Inputs, model.TaskValue{Kind: classifyValue(raw), Raw: raw})
	}
	for _, raw := range t.Outputs {
		cfg.Outputs = append(cfg.Outputs, model.TaskValue{Kind: classifyValue(raw), Raw: raw})
	}
	for _, raw := range t.Deps {
		cfg.Deps = append(cfg.Deps, model.TaskDependency{Target: normalizeDepTarget(raw)})
	}
	if t.Options != nil {
		cfg.Options = &taskdef.PartialOptions{
			Cache:       t.Options.Cache,
			Persistent:  t.Options.Persistent,
			Interactive: t.Options.Interactive,
			RunInCI:     t.Options.RunInCI,
			RetryCount:  t.Options.RetryCount,
			Shell:       t.Options.Shell,
			EnvFiles:    t.Options.EnvFiles,
			MutexName:   t.Options.MutexName,
			TimeoutMS:   t.Options.TimeoutMS,
			InferInputs: t.Options.InferInputs,
		}
		if s := outputStyleFromString(t.Options.OutputStyle); s != nil {
			cfg.Options.OutputStyle = s
		}
		if m := affectedModeFromString(t.Options.AffectedFiles); m != nil {
			cfg.Options.AffectedFiles = m
		}
		for _, osName := range t.Options.OS {
			if o, ok := osFromString(osName); ok {
				cfg.Options.OS = append(cfg.Options.OS, o)
			}
		}
	}
	return cfg
}

// normalizeDepTarget allows a bare task name in `deps` as shorthand
// for the same-project scope: "build" reads as "~:build".
func normalizeDepTarget(raw string) string {
	if !strings.ContainsRune(raw, ':') {
		return "~:" + raw
	}
	return raw
}

// classifyValue infers a TaskValue's kind from its raw string shape:
// a leading `@` is a token function, `$` a token variable, `$`-free
// strings containing glob metacharacters are globs, `env:`-prefixed
// strings name an environment variable, everything else is a literal
// file path. This is the one place mason infers which union member a
// plain string belongs to.
func classifyValue(raw string) model.TaskKind {
	switch {
	case len(raw) > 0 && raw[0] == '@':
		return model.KindTokenFunc
	case len(raw) > 0 && raw[0] == '$':
		return model.KindTokenVar
	case len(raw) > 4 && raw[:4] == "env:":
		return model.KindEnvVar
	case containsGlobMeta(raw):
		return model.KindProjectGlob
	default:
		return model.KindProjectFile
	}
}

func containsGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func presetFromString(s string) model.Preset {
	switch s {
	case "server":
		return model.PresetServer
	case "watcher":
		return model.PresetWatcher
	default:
		return model.PresetNone
	}
}

func outputStyleFromString(s string) *model.OutputStyle {
	var v model.OutputStyle
	switch s {
	case "stream":
		v = model.OutputStream
	case "hash":
		v = model.OutputHash
	case "none":
		v = model.OutputNone
	case "buffer":
		v = model.OutputBuffer
	default:
		return nil
	}
	return &v
}

func affectedModeFromString(s string) *model.AffectedFilesMode {
	var v model.AffectedFilesMode
	switch s {
	case "enabled":
		v = model.AffectedEnabled
	case "args":
		v = model.AffectedArgs
	case "env":
		v = model.AffectedEnv
	default:
		return nil
	}
	return &v
}

func osFromString(s string) (model.OS, bool) {
	switch s {
	case "linux":
		return model.OSLinux, true
	case "macos", "darwin":
		return model.OSMacos, true
	case "windows":
		return model.OSWindows, true
	default:
		return 0, false
	}
}

func layerFromString(s string) model.Layer {
	switch s {
	case "app", "application":
		return model.LayerApp
	case "library":
		return model.LayerLibrary
	case "tool":
		return model.LayerTool
	default:
		return model.LayerUnknown
	}
}

func scopeFromString(s string) model.DependencyScope {
	switch s {
	case "build":
		return model.ScopeBuild
	case "production":
		return model.ScopeProduction
	case "development":
		return model.ScopeDevelopment
	default:
		return model.ScopePeer
	}
}
