// Package runner implements the per-task state machine: hash inputs,
// consult the cache, execute the task process under a
// mutex/retry/timeout discipline, archive outputs, and write the
// final TargetState exactly once.
package runner

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/doublestar"

	"github.com/mason-build/mason/internal/actiongraph"
	"github.com/mason-build/mason/internal/archiver"
	"github.com/mason-build/mason/internal/cacheengine"
	"github.com/mason-build/mason/internal/hashengine"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/runner/keyedmutex"
	"github.com/mason-build/mason/internal/target"
	"github.com/mason-build/mason/internal/turbopath"
)

// Deps bundles the injected collaborators a Runner needs.
type Deps struct {
	Cache         *cacheengine.Engine
	VCS           hashengine.VCS
	States        *actiongraph.StateMap
	EnvVals       map[string]string
	TouchedFiles  []string
	CurrentOS     model.OS
	WorkspaceRoot turbopath.AbsoluteSystemPath
	Mutexes       *keyedmutex.Keyed
	Logger        hclog.Logger
}

// Runner runs one task to completion against a fixed set of Deps.
type Runner struct {
	deps Deps
}

// New returns a Runner over deps. deps.Mutexes and deps.Logger are
// created if nil.
func New(deps Deps) *Runner {
	if deps.Mutexes == nil {
		deps.Mutexes = keyedmutex.New()
	}
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	return &Runner{deps: deps}
}

// Result is what Run returns: the final state (also written into
// States exactly once) plus the ordered Operation log.
type Result struct {
	State      model.TargetState
	Operations []model.Operation
}

// Run drives one task through its full lifecycle.
// depTargets are t's direct task-dependency targets, already present
// in Deps.States by construction of the Topological Iterator.
func (r *Runner) Run(ctx context.Context, t target.Target, project *model.Project, task *model.Task, depTargets []target.Target) (Result, error) {
	var ops []model.Operation

	complete, err := actiongraph.DependenciesComplete(r.deps.States, depTargets)
	if err != nil {
		return Result{}, err
	}
	if !complete {
		state := model.TargetState{Kind: model.StateSkipped}
		r.deps.States.Set(t, state)
		ops = append(ops, model.Operation{Kind: model.OpNoOperation, Status: model.OpSkipped, Detail: "dependency failed or skipped"})
		return Result{State: state, Operations: ops}, nil
	}

	anchor := turbopath.AbsoluteSystemPath(project.Root)

	if !task.Options.Cache && len(task.OutputFiles) == 0 && len(task.OutputGlobs) == 0 {
		outcome, execOps := r.execute(ctx, anchor, task)
		ops = append(ops, execOps...)
		if outcome.err != nil {
			state := model.TargetState{Kind: model.StateFailed}
			r.deps.States.Set(t, state)
			return Result{State: state, Operations: ops}, outcome.err
		}
		if outcome.exitCode != 0 {
			state := model.TargetState{Kind: model.StateFailed}
			r.deps.States.Set(t, state)
			return Result{State: state, Operations: ops}, &TaskExecutionFailed{ExitCode: outcome.exitCode}
		}
		state := model.TargetState{Kind: model.StatePassthrough}
		r.deps.States.Set(t, state)
		return Result{State: state, Operations: ops}, nil
	}

	hash, manifest, err := r.generateHash(project, task)
	if err != nil {
		ops = append(ops, model.Operation{Kind: model.OpHashGeneration, Status: model.OpFailed, Detail: err.Error()})
		return Result{}, err
	}
	ops = append(ops, model.Operation{Kind: model.OpHashGeneration, Status: model.OpPassed, Detail: hash})
	r.deps.Logger.Debug("generated task hash", "target", t.String(), "hash", hash)
	_ = r.deps.Cache.WriteHashManifest(hash, manifest)

	resolvedOutputs := resolveOutputs(anchor, task)

	if hit, detail := r.previousOutputHit(project, task, hash, resolvedOutputs); hit {
		r.deps.Logger.Debug("cache hit", "target", t.String(), "tier", detail)
		ops = append(ops, model.Operation{Kind: model.OpOutputHydration, Status: model.OpCached, Detail: detail})
		state := model.TargetState{Kind: model.StatePassed, Hash: hash}
		r.deps.States.Set(t, state)
		return Result{State: state, Operations: ops}, nil
	}

	if r.deps.Cache.HasArchive(hash) {
		r.deps.Logger.Debug("cache hit", "target", t.String(), "tier", "archive")
		_, _, hydrateErr := archiver.Hydrate(r.deps.Cache.ArchivePath(hash), anchor)
		if hydrateErr != nil {
			ops = append(ops, model.Operation{Kind: model.OpOutputHydration, Status: model.OpFailed, Detail: hydrateErr.Error()})
			return Result{}, errors.Wrap(ErrCacheCorrupt, hydrateErr.Error())
		}
		ops = append(ops, model.Operation{Kind: model.OpOutputHydration, Status: model.OpCached, Detail: "archive"})
		state := model.TargetState{Kind: model.StatePassed, Hash: hash}
		r.deps.States.Set(t, state)
		_ = r.deps.Cache.WriteState(string(project.ID), string(task.ID), model.CacheState{
			Hash: hash, ExitCode: 0, LastRunTime: nowUnix(), OutputsList: outputPathStrings(resolvedOutputs),
		})
		return Result{State: state, Operations: ops}, nil
	}

	r.deps.Logger.Debug("executing task", "target", t.String())
	release := r.deps.Mutexes.Acquire(task.Options.MutexName)
	if task.Options.MutexName != "" {
		ops = append(ops, model.Operation{Kind: model.OpMutexAcquisition, Status: model.OpPassed, Detail: task.Options.MutexName})
	}
	outcome, execOps := r.execute(ctx, anchor, task)
	release()
	ops = append(ops, execOps...)

	if outcome.err != nil {
		state := model.TargetState{Kind: model.StateFailed}
		r.deps.States.Set(t, state)
		return Result{State: state, Operations: ops}, outcome.err
	}
	if outcome.exitCode != 0 {
		state := model.TargetState{Kind: model.StateFailed}
		r.deps.States.Set(t, state)
		return Result{State: state, Operations: ops}, &TaskExecutionFailed{ExitCode: outcome.exitCode}
	}

	resolvedOutputs = resolveOutputs(anchor, task)
	declared := len(task.OutputFiles) > 0 || len(task.OutputGlobs) > 0
	if declared && len(resolvedOutputs) == 0 {
		ops = append(ops, model.Operation{Kind: model.OpArchiveCreation, Status: model.OpFailed, Detail: ErrMissingDeclaredOutputs.Error()})
		return Result{}, ErrMissingDeclaredOutputs
	}

	if len(resolvedOutputs) > 0 {
		if err := r.archive(hash, anchor, resolvedOutputs, outcome); err != nil {
			ops = append(ops, model.Operation{Kind: model.OpArchiveCreation, Status: model.OpFailed, Detail: err.Error()})
			return Result{}, err
		}
		ops = append(ops, model.Operation{Kind: model.OpArchiveCreation, Status: model.OpPassed, Detail: hash})
	} else {
		ops = append(ops, model.Operation{Kind: model.OpArchiveCreation, Status: model.OpSkipped, Detail: "no outputs declared"})
	}

	_ = r.deps.Cache.WriteState(string(project.ID), string(task.ID), model.CacheState{
		Hash: hash, ExitCode: outcome.exitCode, LastRunTime: nowUnix(), OutputsList: outputPathStrings(resolvedOutputs),
	})

	state := model.TargetState{Kind: model.StatePassed, Hash: hash}
	r.deps.States.Set(t, state)
	return Result{State: state, Operations: ops}, nil
}

func (r *Runner) generateHash(project *model.Project, task *model.Task) (string, []byte, error) {
	h := hashengine.TaskManifest(hashengine.TaskHashInput{
		Project: project,
		Task:    task,
		EnvVals: r.deps.EnvVals,
		Logger:  r.deps.Logger,
	}, r.deps.VCS)
	hash, manifest, err := h.Digest()
	if err != nil {
		return "", nil, errors.Wrap(err, "generating task hash")
	}
	return hash, manifest, nil
}

// previousOutputHit reports the "previous-output" cache tier: same
// hash as last run, exit
// code 0, and every declared output still present on disk (vacuously
// true if none are declared).
func (r *Runner) previousOutputHit(project *model.Project, task *model.Task, hash string, resolvedOutputs []turbopath.AnchoredSystemPath) (bool, string) {
	prev, ok := r.deps.Cache.ReadState(string(project.ID), string(task.ID))
	if !ok || prev.Hash != hash || prev.ExitCode != 0 {
		return false, ""
	}
	declared := len(task.OutputFiles) > 0 || len(task.OutputGlobs) > 0
	if !declared {
		return true, "previous-output"
	}
	if len(resolvedOutputs) == 0 {
		return false, ""
	}
	anchor := turbopath.AbsoluteSystemPath(project.Root)
	for _, p := range resolvedOutputs {
		if !p.RestoreAnchor(anchor).Exists() {
			return false, ""
		}
	}
	return true, "previous-output"
}

func (r *Runner) execute(ctx context.Context, anchor turbopath.AbsoluteSystemPath, task *model.Task) (execOutcome, []model.Operation) {
	if !osMatches(task, r.deps.CurrentOS) {
		return execOutcome{exitCode: 0}, []model.Operation{{Kind: model.OpNoOperation, Status: model.OpSkipped, Detail: "os gated"}}
	}
	outcome := spawnWithRetry(ctx, task, anchor.ToString(), r.deps.TouchedFiles)
	status := model.OpPassed
	if outcome.err != nil || outcome.exitCode != 0 {
		status = model.OpFailed
	}
	return outcome, []model.Operation{{Kind: model.OpTaskExecution, Status: status, Detail: outcome.stderr}}
}

func (r *Runner) archive(hash string, anchor turbopath.AbsoluteSystemPath, outputs []turbopath.AnchoredSystemPath, outcome execOutcome) error {
	path := r.deps.Cache.ArchivePath(hash)
	if path.Exists() {
		return nil
	}
	// Same-hash writers in this process serialize on the keyed mutex
	// (the advisory file lock below is per-process, not per-goroutine);
	// writers in other processes serialize on the file lock.
	release := r.deps.Mutexes.Acquire("archive:" + hash)
	defer release()
	lock, lockErr := r.deps.Cache.AcquireArchiveLock(hash)
	if lockErr != nil {
		// Someone else is writing this hash concurrently; their output
		// becomes our cache hit.
		return nil
	}
	defer lock.Unlock()
	if path.Exists() {
		return nil
	}
	return archiver.Archive(path, anchor, outputs, archiver.Stdio{
		ExitCode: outcome.exitCode,
		Stdout:   outcome.stdout,
		Stderr:   outcome.stderr,
	})
}

// resolveOutputs expands a task's declared output files and globs
// into a deduplicated, sorted, anchor-relative path list.
func resolveOutputs(anchor turbopath.AbsoluteSystemPath, task *model.Task) []turbopath.AnchoredSystemPath {
	seen := make(map[string]bool)
	var out []turbopath.AnchoredSystemPath

	add := func(rel string) {
		if seen[rel] {
			return
		}
		seen[rel] = true
		out = append(out, turbopath.AnchoredSystemPath(rel))
	}

	for _, f := range task.OutputFiles {
		full := anchor.UntypedJoin(f)
		if full.Exists() {
			add(f)
		}
	}
	fsys := os.DirFS(anchor.ToString())
	for _, g := range task.OutputGlobs {
		matches, err := doublestar.Glob(fsys, g)
		if err != nil {
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ToString() < out[j].ToString() })
	return out
}

func outputPathStrings(paths []turbopath.AnchoredSystemPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.ToString()
	}
	return out
}

func nowUnix() int64 {
	return time.Now().Unix()
}
