package taskdef

import (
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/hashicorp/go-hclog"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

// SelectTaskIDs applies a project's `workspace.inheritedTasks` override
// to the set of global template ids, returning the final
// original-id -> rendered-id map a project ends up with. `include=nil` keeps all; `include=&[]` keeps none.
func SelectTaskIDs(globalIDs []ident.ID, inherited InheritedTasks) map[ident.ID]ident.ID {
	excluded := make(map[ident.ID]bool, len(inherited.Exclude))
	for _, id := range inherited.Exclude {
		excluded[id] = true
	}

	var included map[ident.ID]bool
	if inherited.Include != nil {
		included = make(map[ident.ID]bool, len(*inherited.Include))
		for _, id := range *inherited.Include {
			included[id] = true
		}
	}

	out := make(map[ident.ID]ident.ID)
	for _, id := range globalIDs {
		if excluded[id] {
			continue
		}
		if included != nil && !included[id] {
			continue
		}
		rendered := id
		if r, ok := inherited.Rename[id]; ok {
			rendered = r
		}
		out[id] = rendered
	}
	return out
}

// Catalog is the full set of named task configs a workspace knows
// about, used to resolve `extends` chains. Keys
// are the config's own declared id, scoped to one project: a task can
// only extend another task declared on the same project or inherited
// from the same global template set.
type Catalog map[ident.ID]RawTaskConfig

// resolveExtendsChain walks cfg's `extends` links from root to leaf,
// returning the ordered chain (root first, cfg itself last). Detects
// cycles and unknown targets.
func resolveExtendsChain(id ident.ID, cfg RawTaskConfig, catalog Catalog) ([]RawTaskConfig, error) {
	chain := []RawTaskConfig{cfg}
	seen := map[ident.ID]bool{id: true}
	cur := cfg
	for cur.Extends != "" {
		extID, err := ident.ParseID(cur.Extends)
		if err != nil {
			return nil, newErr(ErrExtendsUnknown, string(id), "invalid extends id "+cur.Extends)
		}
		if seen[extID] {
			return nil, newErr(ErrExtendsCycle, string(id), "cycle through "+string(extID))
		}
		next, ok := catalog[extID]
		if !ok {
			return nil, newErr(ErrExtendsUnknown, string(id), "unknown extends target "+string(extID))
		}
		seen[extID] = true
		chain = append([]RawTaskConfig{next}, chain...)
		cur = next
	}
	return chain, nil
}

// Build constructs the final expanded Task for one task id, merging
// global templates, the extends chain, and the local override in
// that order. targetStr is the rendered
// `project:task` string stored on the resulting Task.
func Build(in BuildInput, targetStr string) (*model.Task, error) {
	logger := in.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	layers := append([]RawTaskConfig{}, in.Globals...)
	if in.Local != nil {
		if in.Local.Extends != "" {
			catalog := make(Catalog, len(in.Globals))
			for _, g := range in.Globals {
				catalog[g.ID] = g
			}
			chain, err := resolveExtendsChain(in.Local.ID, *in.Local, catalog)
			if err != nil {
				return nil, err
			}
			// chain's root..local-1 are the extends ancestry; local itself
			// is chain's last element and is appended after globals.
			layers = append(layers, chain...)
		} else {
			layers = append(layers, *in.Local)
		}
	}
	if len(layers) == 0 {
		return nil, newErr(ErrUnknownTask, targetStr, "no task configuration found")
	}

	t := &model.Task{
		ID:      layers[len(layers)-1].ID,
		Target:  targetStr,
		Env:     map[string]string{},
		Options: model.DefaultsFor(model.PresetNone),
	}

	for _, layer := range layers {
		applyLayer(t, layer)
	}

	t.Metadata.RootLevel = in.Project.IsRoot

	normalizeCommand(t)
	inferToolchain(t, in.Project, in.Toolchain)
	applyOptionDefaults(t, targetStr)

	if !in.SuppressImplicit {
		applyImplicit(t, in)
	}

	if err := validate(t, targetStr); err != nil {
		return nil, err
	}
	logger.Debug("built task", "target", targetStr, "toolchain", t.Runtime.Kind.String(), "layers", len(layers))
	return t, nil
}

func applyLayer(t *model.Task, layer RawTaskConfig) {
	if layer.Preset != model.PresetNone {
		preset := model.DefaultsFor(layer.Preset)
		t.Options = preset
	}
	if layer.Command != nil {
		t.Command = commandToList(layer.Command)
	}
	if layer.Args != nil {
		args := commandToList(layer.Args)
		t.Args = mergeStrings(t.Args, args, mergeStrategy(layer, t.Options.MergeArgs))
	}
	if layer.Script != "" {
		t.Script = layer.Script
		t.Options.Shell = true
		t.Args = nil
	}
	if layer.Env != nil {
		strategy := mergeStrategyEnv(layer, t.Options.MergeEnv)
		t.Env = mergeEnv(t.Env, layer.Env, strategy)
	}
	if layer.Inputs != nil {
		strategy := mergeStrategyValues(layer, t.Options.MergeInputs)
		t.Inputs, t.Metadata.EmptyInputs = mergeValues(t.Inputs, layer.Inputs, strategy)
	}
	if layer.Outputs != nil {
		strategy := mergeStrategyValuesOut(layer, t.Options.MergeOutputs)
		t.Outputs, _ = mergeValues(t.Outputs, layer.Outputs, strategy)
	}
	if layer.Deps != nil {
		strategy := mergeStrategyDeps(layer, t.Options.MergeDeps)
		t.Deps = mergeDeps(t.Deps, layer.Deps, strategy)
	}
	if layer.Options != nil {
		applyPartialOptions(&t.Options, layer.Options)
	}
}

// The five mergeStrategy* helpers read the layer's own options
// override for that field's strategy, falling back to the task's
// running default, applied in order global -> extended -> local.
func mergeStrategy(layer RawTaskConfig, cur model.MergeStrategy) model.MergeStrategy {
	if layer.Options != nil && layer.Options.MergeArgs != nil {
		return *layer.Options.MergeArgs
	}
	return cur
}
func mergeStrategyEnv(layer RawTaskConfig, cur model.MergeStrategy) model.MergeStrategy {
	if layer.Options != nil && layer.Options.MergeEnv != nil {
		return *layer.Options.MergeEnv
	}
	return cur
}
func mergeStrategyValues(layer RawTaskConfig, cur model.MergeStrategy) model.MergeStrategy {
	if layer.Options != nil && layer.Options.MergeInputs != nil {
		return *layer.Options.MergeInputs
	}
	return cur
}
func mergeStrategyValuesOut(layer RawTaskConfig, cur model.MergeStrategy) model.MergeStrategy {
	if layer.Options != nil && layer.Options.MergeOutputs != nil {
		return *layer.Options.MergeOutputs
	}
	return cur
}
func mergeStrategyDeps(layer RawTaskConfig, cur model.MergeStrategy) model.MergeStrategy {
	if layer.Options != nil && layer.Options.MergeDeps != nil {
		return *layer.Options.MergeDeps
	}
	return cur
}

func mergeStrings(cur, next []string, strategy model.MergeStrategy) []string {
	switch strategy {
	case model.MergeReplace:
		return append([]string{}, next...)
	case model.MergePrepend:
		return append(append([]string{}, next...), cur...)
	default: // Append
		return append(append([]string{}, cur...), next...)
	}
}

func mergeEnv(cur, next map[string]string, strategy model.MergeStrategy) map[string]string {
	if strategy == model.MergeReplace {
		out := make(map[string]string, len(next))
		for k, v := range next {
			out[k] = v
		}
		return out
	}
	// Append and Prepend are equivalent for a key/value map: later
	// layers win on key collision either way, since there is no
	// positional order to a map.
	out := make(map[string]string, len(cur)+len(next))
	for k, v := range cur {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// mergeValues applies a strategy to an inputs/outputs list, also
// reporting whether the result is a Replace with an empty collection
// (recorded as empty_inputs metadata).
func mergeValues(cur, next []model.TaskValue, strategy model.MergeStrategy) ([]model.TaskValue, bool) {
	switch strategy {
	case model.MergeReplace:
		out := append([]model.TaskValue{}, next...)
		return out, len(out) == 0
	case model.MergePrepend:
		return append(append([]model.TaskValue{}, next...), cur...), false
	default:
		return append(append([]model.TaskValue{}, cur...), next...), false
	}
}

func mergeDeps(cur, next []model.TaskDependency, strategy model.MergeStrategy) []model.TaskDependency {
	switch strategy {
	case model.MergeReplace:
		return append([]model.TaskDependency{}, next...)
	case model.MergePrepend:
		return append(append([]model.TaskDependency{}, next...), cur...)
	default:
		return append(append([]model.TaskDependency{}, cur...), next...)
	}
}

func applyPartialOptions(opts *model.TaskOptions, p *PartialOptions) {
	if p.Cache != nil {
		opts.Cache = *p.Cache
	}
	if p.Persistent != nil {
		opts.Persistent = *p.Persistent
	}
	if p.Interactive != nil {
		opts.Interactive = *p.Interactive
	}
	if p.RunInCI != nil {
		opts.RunInCI = *p.RunInCI
	}
	if p.OutputStyle != nil {
		opts.OutputStyle = *p.OutputStyle
	}
	if p.RetryCount != nil {
		opts.RetryCount = *p.RetryCount
	}
	if p.Shell != nil {
		opts.Shell = *p.Shell
	}
	if p.AffectedFiles != nil {
		opts.AffectedFiles = *p.AffectedFiles
	}
	if p.EnvFiles != nil {
		opts.EnvFiles = p.EnvFiles
	}
	if p.OS != nil {
		opts.OS = p.OS
	}
	if p.MergeArgs != nil {
		opts.MergeArgs = *p.MergeArgs
	}
	if p.MergeDeps != nil {
		opts.MergeDeps = *p.MergeDeps
	}
	if p.MergeEnv != nil {
		opts.MergeEnv = *p.MergeEnv
	}
	if p.MergeInputs != nil {
		opts.MergeInputs = *p.MergeInputs
	}
	if p.MergeOutputs != nil {
		opts.MergeOutputs = *p.MergeOutputs
	}
	if p.InferInputs != nil {
		opts.InferInputs = *p.InferInputs
	}
	if p.MutexName != nil {
		opts.MutexName = *p.MutexName
	}
	if p.TimeoutMS != nil {
		opts.TimeoutMS = *p.TimeoutMS
	}
}

// commandToList normalizes a command/args value (string or []string)
// into a token list, splitting shell-quoted strings the way a shell
// would, via shlex rather than a hand-rolled
// tokenizer so quoting/escaping matches real shell argv-splitting.
func commandToList(v interface{}) []string {
	switch c := v.(type) {
	case []string:
		return append([]string{}, c...)
	case string:
		tokens, err := shlex.Split(c)
		if err != nil {
			// Malformed quoting (e.g. an unterminated string): fall back
			// to whitespace splitting rather than dropping the command.
			return strings.Fields(c)
		}
		return tokens
	default:
		return nil
	}
}

func normalizeCommand(t *model.Task) {
	if len(t.Command) == 0 && t.Script == "" {
		t.Command = []string{"noop"}
	}
	if t.Script != "" {
		t.Command = []string{"noop"}
	}
}

// inferToolchain resolves the task's toolchain: explicit wins,
// otherwise detect from the command's leading binary, otherwise
// inherit from the project, otherwise System.
func inferToolchain(t *model.Task, proj ProjectContext, tc ToolchainSettings) {
	if t.Runtime.Kind != model.RuntimeSystem || t.Runtime.Version != "" {
		return // already set by an explicit layer
	}
	if len(t.Command) > 0 {
		if kind, ok := tc.BinaryToRuntime[t.Command[0]]; ok {
			t.Runtime = model.Runtime{Kind: kind, Version: tc.Versions[kind]}
			return
		}
	}
	if kind, ok := tc.BinaryToRuntime[proj.ToolchainKey]; ok {
		t.Runtime = model.Runtime{Kind: kind, Version: tc.Versions[kind]}
		return
	}
	t.Runtime = model.Runtime{Kind: model.RuntimeSystem}
}

var localOnlyHints = []string{"dev", "serve", "start", "watch"}

// applyOptionDefaults derives option defaults: presets already
// landed during applyLayer; here we infer local_only from the task id
// or command, and cascade the flags it implies.
func applyOptionDefaults(t *model.Task, targetStr string) {
	id := strings.ToLower(string(t.ID))
	cmd := ""
	if len(t.Command) > 0 {
		cmd = strings.ToLower(t.Command[0])
	}
	for _, hint := range localOnlyHints {
		if strings.Contains(id, hint) || strings.Contains(cmd, hint) {
			t.Metadata.LocalOnly = true
			break
		}
	}
	if t.Metadata.LocalOnly {
		// Each remains overridable: only apply if the layers above
		// didn't already set something more specific. We approximate
		// "already set" by checking against the PresetNone zero
		// defaults, since RawTaskConfig layers that care set Options
		// explicitly via PartialOptions and would have already won in
		// applyPartialOptions.
		t.Options.Cache = false
		t.Options.OutputStyle = model.OutputStream
		t.Options.Persistent = true
		t.Options.RunInCI = false
	}
}

// applyImplicit merges in workspace-level implicit inputs/deps unless
// suppressed, skipping the project-glob inference for root-level
// tasks.
func applyImplicit(t *model.Task, in BuildInput) {
	declared := len(t.Inputs) > 0
	if len(in.ImplicitInputs) > 0 {
		t.Inputs = append(append([]model.TaskValue{}, t.Inputs...), in.ImplicitInputs...)
	}
	if len(in.ImplicitDeps) > 0 {
		t.Deps = append(append([]model.TaskDependency{}, t.Deps...), in.ImplicitDeps...)
	}
	if !t.Metadata.RootLevel && !t.Metadata.EmptyInputs && !declared {
		t.Inputs = append(t.Inputs, model.TaskValue{Kind: model.KindProjectGlob, Raw: "**/*"})
	}
}

func validate(t *model.Task, targetStr string) error {
	for _, o := range t.Outputs {
		switch o.Kind {
		case model.KindProjectFile, model.KindProjectGlob:
			if strings.HasPrefix(o.Raw, "/") || strings.Contains(o.Raw, "..") {
				return newErr(ErrInvalidOutputPath, targetStr, "output "+o.Raw+" must be project-relative and non-traversing")
			}
		case model.KindWorkspaceFile, model.KindWorkspaceGlob, model.KindEnvVar, model.KindEnvVarGlob:
			return newErr(ErrInvalidOutputPath, targetStr, "output "+o.Raw+" must be project-relative")
		}
	}
	return nil
}

// sortedTaskIDs returns the keys of a SelectTaskIDs result in sorted
// order. Nothing in the module calls it.
func sortedTaskIDs(m map[ident.ID]ident.ID) []ident.ID {
	out := make([]ident.ID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
