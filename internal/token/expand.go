package token

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mason-build/mason/internal/env"
	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

// legalFuncs is the per-field table of which `@fn` token functions are
// legal. @in/@out are handled
// separately since their legality additionally depends on recursion
// depth.
var legalFuncs = map[Field]map[FuncName]bool{
	FieldCommand:  {FuncGroup: true, FuncDirs: true, FuncFiles: true, FuncGlobs: true, FuncRoot: true, FuncMeta: true},
	FieldArgs:     {FuncGroup: true, FuncDirs: true, FuncFiles: true, FuncGlobs: true, FuncRoot: true, FuncIn: true, FuncOut: true, FuncMeta: true},
	FieldScript:   {FuncGroup: true, FuncDirs: true, FuncFiles: true, FuncGlobs: true, FuncRoot: true, FuncIn: true, FuncOut: true, FuncMeta: true},
	FieldEnvValue: {FuncGroup: true, FuncDirs: true, FuncFiles: true, FuncGlobs: true, FuncRoot: true, FuncMeta: true},
	FieldInputs:   {FuncGroup: true, FuncDirs: true, FuncFiles: true, FuncGlobs: true, FuncRoot: true, FuncEnvs: true},
	FieldOutputs:  {FuncGroup: true, FuncDirs: true, FuncFiles: true, FuncGlobs: true, FuncRoot: true},
}

// Result is what expanding a single raw string yields: zero or more
// resolved string values (a @files(group) with three matches yields
// three), plus bookkeeping about what those values were derived from
// so taskdef/runner can fold them into input_files/input_globs/input_env.
type Result struct {
	Values     []string
	FileInputs []string // contributes to input_files (from command/args/script only when infer_inputs is set)
	GlobInputs []string // contributes to input_globs
	EnvInputs  []string // contributes to input_env
}

// Expander expands tokens in one task's fields against its owning
// project, the task's own already-parsed inputs/outputs (for @in/@out
// lookups), and the ambient Context.
type Expander struct {
	project *model.Project
	def     *model.Task
	ctx     Context
	proj    projectVars
	task    taskVars
}

// New builds an Expander for task (belonging to project), rendering
// project/task variable values once up front.
func New(project *model.Project, t *model.Task, target string, ctx Context) *Expander {
	return &Expander{
		project: project,
		def:     t,
		ctx:     ctx,
		proj: projectVars{
			language:      project.Language,
			project:       project.ID.String(),
			projectAlias:  project.Alias,
			projectSource: project.Source,
			projectRoot:   project.Root,
			projectStack:  project.Stack,
			projectType:   project.Layer.String(),
		},
		task: taskVars{
			task:          t.ID.String(),
			taskPlatform:  t.Runtime.Kind.String(),
			taskToolchain: t.Runtime.Kind.String(),
			taskType:      taskTypeString(t.Type),
			target:        target,
		},
	}
}

func taskTypeString(t model.TaskType) string {
	switch t {
	case model.TaskBuild:
		return "build"
	case model.TaskRun:
		return "run"
	case model.TaskTest:
		return "test"
	default:
		return "unknown"
	}
}

// ExpandString expands one raw string against field's legality table.
// Used for command entries, args entries, script lines, and env
// values.
func (e *Expander) ExpandString(field Field, raw string, inRecursion bool) (Result, error) {
	return e.expand(field, raw, inRecursion)
}

// ExpandValue expands one already-parsed TaskValue belonging to the
// inputs or outputs field. TokenFunc/TokenVar entries are resolved;
// all other kinds pass through as a single literal value.
func (e *Expander) ExpandValue(field Field, v model.TaskValue) (Result, error) {
	switch v.Kind {
	case model.KindTokenFunc, model.KindTokenVar:
		return e.expand(field, v.Raw, false)
	default:
		return Result{Values: []string{v.Raw}}, nil
	}
}

func (e *Expander) expand(field Field, raw string, inRecursion bool) (Result, error) {
	// Fast path: no tokens present at all.
	if !strings.ContainsAny(raw, "@$") {
		return Result{Values: []string{raw}}, nil
	}

	if loc := funcToken.FindStringSubmatchIndex(raw); loc != nil && loc[0] == 0 && loc[1] == len(raw) {
		name := raw[loc[2]:loc[3]]
		arg := raw[loc[4]:loc[5]]
		return e.expandFunc(field, FuncName(name), arg, raw, inRecursion)
	}

	// Otherwise this is a scalar string that may embed `$var`/`$ENV`
	// references (but not a whole-string @fn call — @fn is only legal
	// as the entire value of a field, not interpolated).
	if funcToken.MatchString(raw) {
		// An embedded (non-whole-string) @fn is still a function-token
		// use; validate its legality the same way.
		m := funcToken.FindStringSubmatch(raw)
		name := FuncName(m[1])
		if !legalFuncs[field][name] {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		return Result{}, newErr(ErrUnknownToken, field, raw, nil)
	}

	return e.expandVars(field, raw)
}

func (e *Expander) expandFunc(field Field, name FuncName, arg string, raw string, inRecursion bool) (Result, error) {
	switch name {
	case FuncIn, FuncOut:
		if inRecursion {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		if !legalFuncs[field][name] {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		return e.expandInOut(field, name, arg, raw)
	case FuncEnvs:
		if !legalFuncs[field][name] {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		return e.expandEnvs(arg)
	case FuncMeta:
		if !legalFuncs[field][name] {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		return e.expandMeta(arg)
	case FuncGroup, FuncDirs, FuncFiles, FuncGlobs:
		if !legalFuncs[field][name] {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		return e.expandGroup(field, name, arg)
	case FuncRoot:
		if !legalFuncs[field][name] {
			return Result{}, newErr(ErrTokenNotAllowedInField, field, raw, nil)
		}
		return Result{Values: []string{e.project.Root}}, nil
	default:
		return Result{}, newErr(ErrUnknownToken, field, raw, nil)
	}
}

func (e *Expander) expandGroup(field Field, name FuncName, arg string) (Result, error) {
	groupID, err := ident.ParseID(arg)
	if err != nil {
		return Result{}, newErr(ErrUnknownFileGroup, field, arg, err)
	}
	group, ok := e.project.FileGroups[groupID]
	if !ok {
		return Result{}, newErr(ErrUnknownFileGroup, field, arg, nil)
	}

	var values, files, globs []string
	switch name {
	case FuncFiles:
		values = append(values, group.Files...)
		files = append(files, group.Files...)
	case FuncGlobs:
		values = append(values, group.Globs...)
		globs = append(globs, group.Globs...)
	case FuncDirs:
		dirs := make(map[string]struct{})
		for _, f := range group.Files {
			dirs[parentDir(f)] = struct{}{}
		}
		for d := range dirs {
			values = append(values, d)
		}
		sort.Strings(values)
	case FuncGroup:
		values = append(values, group.Files...)
		values = append(values, group.Globs...)
		files = append(files, group.Files...)
		globs = append(globs, group.Globs...)
	}
	return Result{Values: values, FileInputs: files, GlobInputs: globs}, nil
}

func parentDir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "."
	}
	return p[:idx]
}

func (e *Expander) expandInOut(field Field, name FuncName, arg string, raw string) (Result, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 {
		return Result{}, newErr(ErrInvalidTokenIndex, field, raw, errBadIndex)
	}
	list := e.def.Inputs
	if name == FuncOut {
		list = e.def.Outputs
	}
	if idx >= len(list) {
		return Result{}, newErr(ErrInvalidTokenIndex, field, raw, errBadIndex)
	}
	v := list[idx]
	if v.Kind == model.KindTokenFunc || v.Kind == model.KindTokenVar {
		srcField := FieldInputs
		if name == FuncOut {
			srcField = FieldOutputs
		}
		return e.expand(srcField, v.Raw, true)
	}
	return Result{Values: []string{v.Raw}}, nil
}

func (e *Expander) expandEnvs(arg string) (Result, error) {
	groupID, err := ident.ParseID(arg)
	var names []string
	if err == nil {
		if group, ok := e.project.FileGroups[groupID]; ok {
			names = append(names, group.Files...)
		}
	}
	if len(names) == 0 {
		names = []string{arg}
	}
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if !env.Blacklisted(n) {
			clean = append(clean, n)
		}
	}
	return Result{Values: clean, EnvInputs: clean}, nil
}

func (e *Expander) expandMeta(arg string) (Result, error) {
	switch arg {
	case "id":
		return Result{Values: []string{e.project.ID.String()}}, nil
	case "layer":
		return Result{Values: []string{e.project.Layer.String()}}, nil
	case "language":
		return Result{Values: []string{e.project.Language}}, nil
	case "stack":
		return Result{Values: []string{e.project.Stack}}, nil
	default:
		return Result{}, newErr(ErrUnknownToken, FieldInputs, "@meta("+arg+")", nil)
	}
}

func (e *Expander) expandVars(field Field, raw string) (Result, error) {
	var envInputs []string
	out := varToken.ReplaceAllStringFunc(raw, func(m string) string {
		sub := varToken.FindStringSubmatch(m)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if _, known := knownVars[name]; known {
			if v, ok := e.varValue(name); ok {
				return v
			}
		}
		// Not a known $var: treat as an environment variable reference.
		// Output paths substitute from the task's own env, never the
		// ambient process environment.
		if field == FieldOutputs {
			return e.def.Env[name]
		}
		if env.Blacklisted(name) {
			return envLookup(name)
		}
		switch field {
		case FieldInputs:
			envInputs = append(envInputs, name)
		case FieldArgs, FieldCommand, FieldScript, FieldEnvValue:
			// Env references in exec-facing fields only become hash
			// inputs when the task opted into input inference.
			if e.def.Options.InferInputs {
				envInputs = append(envInputs, name)
			}
		}
		return envLookup(name)
	})
	return Result{Values: []string{out}, EnvInputs: envInputs}, nil
}
