package token

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/mason-build/mason/internal/model"
)

// ExpandTask drives the full per-task token expansion:
// every token-bearing field of t is expanded in place against project
// and ctx, and the resolved input_files/input_globs/input_env/
// output_files/output_globs sets are populated on t. Called once by
// the Task Builder pipeline after taskdef.Build assembles the
// unexpanded task, before the task is attached to an action node.
func ExpandTask(project *model.Project, t *model.Task, targetStr string, ctx Context) error {
	e := New(project, t, targetStr, ctx)

	if cmd, inferred, err := expandAll(e, FieldCommand, t.Command); err != nil {
		return err
	} else {
		t.Command = cmd
		classifyInferred(project, t, inferred)
	}

	if args, inferred, err := expandAll(e, FieldArgs, t.Args); err != nil {
		return err
	} else {
		t.Args = args
		classifyInferred(project, t, inferred)
	}

	if t.Script != "" {
		res, err := e.ExpandString(FieldScript, t.Script, false)
		if err != nil {
			return err
		}
		if len(res.Values) > 0 {
			t.Script = res.Values[0]
		}
		classifyInferred(project, t, res)
	}

	if t.Env != nil {
		expandedEnv := make(map[string]string, len(t.Env))
		for k, v := range t.Env {
			res, err := e.ExpandString(FieldEnvValue, v, false)
			if err != nil {
				return err
			}
			if len(res.Values) > 0 {
				expandedEnv[k] = res.Values[0]
			} else {
				expandedEnv[k] = ""
			}
		}
		t.Env = expandedEnv
	}

	for _, in := range t.Inputs {
		res, err := e.ExpandValue(FieldInputs, in)
		if err != nil {
			return err
		}
		classifyInput(project, t, in.Kind, res)
	}

	for _, out := range t.Outputs {
		res, err := e.ExpandValue(FieldOutputs, out)
		if err != nil {
			return err
		}
		classifyOutput(t, out.Kind, res)
	}

	return nil
}

// expandAll expands every element of a command/args list, flattening
// any multi-value results (a @files(group) matching N files expands
// to N argv elements) in order. The aggregated Result carries the
// file/glob/env references the expansions were derived from, for
// input inference.
func expandAll(e *Expander, field Field, raw []string) ([]string, Result, error) {
	var agg Result
	if raw == nil {
		return nil, agg, nil
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		res, err := e.ExpandString(field, s, false)
		if err != nil {
			return nil, agg, err
		}
		out = append(out, res.Values...)
		agg.FileInputs = append(agg.FileInputs, res.FileInputs...)
		agg.GlobInputs = append(agg.GlobInputs, res.GlobInputs...)
		agg.EnvInputs = append(agg.EnvInputs, res.EnvInputs...)
	}
	return out, agg, nil
}

// classifyInferred folds file/glob/env references derived from a
// command/args/script expansion into the task's resolved input sets.
// Only applies when the task opted into input inference.
func classifyInferred(project *model.Project, t *model.Task, res Result) {
	if !t.Options.InferInputs {
		return
	}
	for _, v := range res.FileInputs {
		t.InputFiles = append(t.InputFiles, anchorToWorkspace(project.Source, v))
	}
	for _, v := range res.GlobInputs {
		t.InputGlobs = append(t.InputGlobs, anchorToWorkspace(project.Source, v))
	}
	t.InputEnv = append(t.InputEnv, res.EnvInputs...)
}

// classifyInput folds one expanded input into the task's resolved
// input_files/input_globs/input_env sets. File and glob inputs are
// stored workspace-relative — project-relative values get the project
// source joined on — since both consumers (the affected filter and
// the hash engine's VCS lookups) work in workspace-relative paths.
func classifyInput(project *model.Project, t *model.Task, kind model.TaskKind, res Result) {
	anchor := func(values []string) []string {
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, anchorToWorkspace(project.Source, v))
		}
		return out
	}
	switch kind {
	case model.KindProjectFile:
		t.InputFiles = append(t.InputFiles, anchor(res.Values)...)
	case model.KindWorkspaceFile:
		t.InputFiles = append(t.InputFiles, res.Values...)
	case model.KindProjectGlob:
		t.InputGlobs = append(t.InputGlobs, anchor(res.Values)...)
	case model.KindWorkspaceGlob:
		t.InputGlobs = append(t.InputGlobs, res.Values...)
	case model.KindEnvVar, model.KindEnvVarGlob:
		t.InputEnv = append(t.InputEnv, res.Values...)
	default: // KindTokenFunc, KindTokenVar: trust the expander's own classification.
		// Declared inputs always expand — infer_inputs gates only the
		// contributions derived from command/args/script, which flow
		// through classifyInferred instead.
		t.InputFiles = append(t.InputFiles, anchor(res.FileInputs)...)
		t.InputGlobs = append(t.InputGlobs, anchor(res.GlobInputs)...)
		t.InputEnv = append(t.InputEnv, res.EnvInputs...)
		if len(res.FileInputs) == 0 && len(res.GlobInputs) == 0 && len(res.EnvInputs) == 0 {
			t.InputFiles = append(t.InputFiles, anchor(res.Values)...)
		}
	}
}

// anchorToWorkspace joins a project-relative path onto the project's
// workspace-relative source. Absolute values (a $projectRoot-expanded
// path, say) are left untouched.
func anchorToWorkspace(source, v string) string {
	if strings.HasPrefix(v, "/") || filepath.IsAbs(v) || source == "" || source == "." {
		return v
	}
	return path.Join(source, v)
}

// classifyOutput folds one expanded output into output_files/output_globs.
func classifyOutput(t *model.Task, kind model.TaskKind, res Result) {
	switch kind {
	case model.KindProjectGlob, model.KindWorkspaceGlob:
		t.OutputGlobs = append(t.OutputGlobs, res.Values...)
	default:
		if len(res.GlobInputs) > 0 {
			t.OutputGlobs = append(t.OutputGlobs, res.GlobInputs...)
			return
		}
		if len(res.FileInputs) > 0 {
			t.OutputFiles = append(t.OutputFiles, res.FileInputs...)
			return
		}
		t.OutputFiles = append(t.OutputFiles, res.Values...)
	}
}
