package actiongraph

import (
	"path"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/doublestar"
	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/projectgraph"
	"github.com/mason-build/mason/internal/target"
)

// ErrScopeNotAllowedInRun re-exports target.ErrScopeNotAllowedInRun so
// callers only need to import this package for graph errors.
var ErrScopeNotAllowedInRun = target.ErrScopeNotAllowedInRun

// RunRequirements bundles one batch invocation's options.
type RunRequirements struct {
	TargetLocators []string
	TouchedFiles   map[string]bool // nil means "no filter": every task is affected
	CI             bool
	CICheck        bool
	Interactive    bool
	Dependents     bool

	// Query restricts `:task`/`#tag:task` expansion to projects the
	// project-graph query language matches; empty means no restriction.
	Query string
}

// Builder wires the project graph and a StateMap into the run_task
// family of entry points.
type Builder struct {
	Graph    *Graph
	Projects *projectgraph.Graph
	States   *StateMap

	// InsideWorkspace reports whether a project is inside a
	// package-manager workspace, for InstallDeps's choice of
	// workspace- vs project-level install.
	InsideWorkspace func(ident.ID) bool

	Logger hclog.Logger
}

// NewBuilder wires a fresh Graph to the given project graph.
func NewBuilder(projects *projectgraph.Graph) *Builder {
	return &Builder{
		Graph:    New(),
		Projects: projects,
		States:   NewStateMap(),
		Logger:   hclog.NewNullLogger(),
	}
}

func (b *Builder) depsOf(id ident.ID) []ident.ID {
	p, ok := b.Projects.Projects[id]
	if !ok {
		return nil
	}
	out := make([]ident.ID, 0, len(p.Dependencies))
	for _, d := range p.Dependencies {
		out = append(out, d.ID)
	}
	return out
}

func (b *Builder) insideWorkspace(id ident.ID) bool {
	if b.InsideWorkspace == nil {
		return false
	}
	return b.InsideWorkspace(id)
}

// taskAffected reports whether any of task's resolved input files,
// input globs, or declared env files intersects touchedFiles. A nil
// touchedFiles means no filter is active. Env files participate
// because they shape the process environment and the task hash.
func taskAffected(project *model.Project, t *model.Task, touched map[string]bool) bool {
	if touched == nil {
		return true
	}
	for _, f := range t.InputFiles {
		if touched[f] {
			return true
		}
	}
	for _, f := range t.Options.EnvFiles {
		if touched[path.Join(project.Source, f)] {
			return true
		}
	}
	for _, g := range t.InputGlobs {
		for f := range touched {
			if matchGlob(g, f) {
				return true
			}
		}
	}
	return false
}

// matchGlob reports whether path matches the doublestar pattern g. A
// malformed pattern matches nothing.
func matchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// RunTaskCall is one invocation signature passed to RunTask: the
// identity key is (target, args, env).
type RunTaskCall struct {
	Project     *model.Project
	Task        *model.Task
	Target      target.Target
	Args        []string
	Env         map[string]string
	Interactive bool
	Persistent  bool
	Req         RunRequirements
}

// RunTask builds the run node for one (target, args, env) identity,
// wiring its sync/install/task-dep edges. It returns the
// node index, or (-1, nil) when no node was created (not affected, or
// CI-skipped).
func (b *Builder) RunTask(call RunTaskCall) (int, error) {
	node := model.ActionNode{
		Kind:        model.ActionRunTask,
		Project:     call.Project.ID,
		Target:      call.Target.String(),
		Args:        call.Args,
		Env:         call.Env,
		Interactive: call.Interactive,
		Persistent:  call.Persistent,
	}

	// Step 1: identity-key dedup happens for free via Graph.insert's
	// Key(), which is exactly (target, args, env).
	if idx, ok := b.Graph.byKey[node.Key()]; ok {
		return idx, nil
	}

	// Step 2: affected-files filter.
	if !taskAffected(call.Project, call.Task, call.Req.TouchedFiles) {
		b.Logger.Debug("task not affected, skipping", "target", call.Target.String())
		return -1, nil
	}

	// Step 3: CI policy.
	if call.Req.CI && call.Req.CICheck && !call.Task.Options.RunInCI {
		if s, ok := b.States.Get(call.Target); ok && s.Kind == model.StatePassthrough {
			// Already walked through here; no node to dedup on, so the
			// state is the revisit guard.
			return -1, nil
		}
		b.Logger.Debug("task not run in CI, marking passthrough", "target", call.Target.String())
		b.States.Set(call.Target, model.TargetState{Kind: model.StatePassthrough})
		if call.Req.Dependents {
			if err := b.walkDependents(call); err != nil {
				return -1, err
			}
		}
		return -1, nil
	}

	runtime := call.Task.Runtime
	idx := b.Graph.RunTaskNode(node)
	b.Logger.Trace("added run task node", "target", call.Target.String(), "index", idx)

	// Step 4: edges to sync_project, install_deps, and task deps.
	b.Graph.connect(idx, b.Graph.SyncProject(call.Project, runtime, b.depsOf))
	if depIdx, ok := b.Graph.InstallDeps(call.Project.ID, runtime, runtime.Kind, b.insideWorkspace(call.Project.ID)); ok {
		b.Graph.connect(idx, depIdx)
	}

	for _, dep := range call.Task.Deps {
		depTarget, err := target.Parse(dep.Target)
		if err != nil {
			return -1, errors.Wrapf(err, "task dep of %s", call.Target)
		}
		if err := b.connectTaskDep(idx, call, depTarget, dep); err != nil {
			return -1, err
		}
	}

	// Step 5: dependents walk.
	if call.Req.Dependents {
		if err := b.walkDependents(call); err != nil {
			return -1, err
		}
	}

	return idx, nil
}

// connectTaskDep resolves one TaskDependency (which may itself carry
// args/env overrides changing its node identity) into the projects
// its scope addresses, and recursively builds each resolved task.
// `^:task` fans out to the declaring project's dependencies (skipping
// those without the task), `~:task` stays on the declaring project,
// and `project:task`/`#tag:task` resolve through the project graph.
func (b *Builder) connectTaskDep(fromIdx int, call RunTaskCall, depTarget target.Target, dep model.TaskDependency) error {
	var depProjects []*model.Project
	switch depTarget.Scope {
	case target.ScopeProject:
		p, ok := b.Projects.Projects[depTarget.Project]
		if !ok {
			return errors.Errorf("unknown project %q in task dependency of %s", depTarget.Project, call.Target)
		}
		if _, ok := p.Tasks[depTarget.Task]; !ok {
			return errors.Errorf("unknown task %q on project %q in task dependency of %s", depTarget.Task, p.ID, call.Target)
		}
		depProjects = []*model.Project{p}
	case target.ScopeSelf:
		if _, ok := call.Project.Tasks[depTarget.Task]; !ok {
			return errors.Errorf("unknown task %q on project %q in task dependency of %s", depTarget.Task, call.Project.ID, call.Target)
		}
		depProjects = []*model.Project{call.Project}
	case target.ScopeDeps:
		for _, id := range b.depsOf(call.Project.ID) {
			p, ok := b.Projects.Projects[id]
			if !ok {
				continue
			}
			if _, ok := p.Tasks[depTarget.Task]; ok {
				depProjects = append(depProjects, p)
			}
		}
	case target.ScopeTag:
		for _, p := range b.Projects.Sorted() {
			if !p.Tags.Has(depTarget.Tag) {
				continue
			}
			if _, ok := p.Tasks[depTarget.Task]; ok {
				depProjects = append(depProjects, p)
			}
		}
	default:
		return errors.Errorf("scope %q not allowed in task dependency of %s", depTarget.Scope, call.Target)
	}

	// The affected filter applies to requested tasks, not to the
	// dependencies an affected task needs built underneath it; those
	// still hit the cache when nothing of theirs changed.
	depReq := call.Req
	depReq.TouchedFiles = nil

	for _, depProject := range depProjects {
		depTask := depProject.Tasks[depTarget.Task]
		// A persistent task never completes, so nothing may wait on it.
		if depTask.Options.Persistent {
			return errors.Errorf("task %s cannot depend on persistent task %s", call.Target, depTarget.WithProject(depProject.ID))
		}
		childIdx, err := b.RunTask(RunTaskCall{
			Project:     depProject,
			Task:        depTask,
			Target:      depTarget.WithProject(depProject.ID),
			Args:        dep.Args,
			Env:         dep.Env,
			Interactive: depTask.Options.Interactive,
			Persistent:  depTask.Options.Persistent,
			Req:         depReq,
		})
		if err != nil {
			return err
		}
		if childIdx >= 0 {
			b.Graph.connect(fromIdx, childIdx)
		}
	}
	return nil
}

// walkDependents handles the dependents requirement: for every project
// that depends on call.Project, if it has a task with the same id or
// declares this task as a dep, create that task's run node too.
func (b *Builder) walkDependents(call RunTaskCall) error {
	for _, dependent := range b.Projects.Dependents(call.Project.ID) {
		var depTasks []*model.Task
		if same, ok := dependent.Tasks[call.Task.ID]; ok {
			depTasks = append(depTasks, same)
		} else {
			ids := make([]ident.ID, 0, len(dependent.Tasks))
			for id := range dependent.Tasks {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				t := dependent.Tasks[id]
				for _, d := range t.Deps {
					dt, err := target.Parse(d.Target)
					if err == nil && depTargetsCaller(dt, call, dependent) {
						depTasks = append(depTasks, t)
						break
					}
				}
			}
		}
		for _, depTask := range depTasks {
			// CI policy is RunTask's to apply: it records Passthrough and
			// still walks the skipped dependent's own dependents.
			depTarget := target.Target{Scope: target.ScopeProject, Project: dependent.ID, Task: depTask.ID}
			if _, err := b.RunTask(RunTaskCall{
				Project:     dependent,
				Task:        depTask,
				Target:      depTarget,
				Interactive: depTask.Options.Interactive,
				Persistent:  depTask.Options.Persistent,
				Req:         call.Req,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// depTargetsCaller reports whether a dependent's dep declaration dt
// actually addresses the task being walked: same task id, and a scope
// that resolves to the walked project from the dependent's point of
// view (`^:` reaches it through the dependency edge, `project:` names
// it, `#tag:` covers it; `~:` stays on the dependent itself).
func depTargetsCaller(dt target.Target, call RunTaskCall, dependent *model.Project) bool {
	if dt.Task != call.Task.ID {
		return false
	}
	switch dt.Scope {
	case target.ScopeDeps:
		return true // dependent depends on call.Project by construction of the walk
	case target.ScopeProject:
		return dt.Project == call.Project.ID
	case target.ScopeTag:
		return call.Project.Tags.Has(dt.Tag)
	default:
		return false
	}
}

// RunTaskByTarget expands a target's scope against the project graph
// and builds a run node per matching project.
func (b *Builder) RunTaskByTarget(t target.Target, req RunRequirements) ([]int, error) {
	if err := t.CheckRunScope(); err != nil {
		return nil, err
	}

	var projects []*model.Project
	switch t.Scope {
	case target.ScopeAll:
		if req.Query != "" {
			matched, err := b.Projects.Evaluate(req.Query)
			if err != nil {
				return nil, err
			}
			projects = matched
		} else {
			projects = b.Projects.Sorted()
		}
	case target.ScopeTag:
		for _, p := range b.Projects.Sorted() {
			if p.Tags.Has(t.Tag) {
				projects = append(projects, p)
			}
		}
	case target.ScopeProject:
		p, ok := b.Projects.Resolve(string(t.Project))
		if !ok {
			return nil, errors.Errorf("unknown project %q", t.Project)
		}
		projects = []*model.Project{p}
	}

	var indices []int
	for _, p := range projects {
		task, ok := p.Tasks[t.Task]
		if !ok {
			continue
		}
		idx, err := b.RunTask(RunTaskCall{
			Project:     p,
			Task:        task,
			Target:      t.WithProject(p.ID),
			Interactive: req.Interactive || task.Options.Interactive,
			Persistent:  task.Options.Persistent,
			Req:         req,
		})
		if err != nil {
			return nil, err
		}
		if idx >= 0 {
			indices = append(indices, idx)
		}
	}
	return indices, nil
}

// RunFromRequirements is the entry point for a batch invocation: it
// parses each target locator
// and builds its nodes, returning the primary (directly requested)
// node indices.
func (b *Builder) RunFromRequirements(req RunRequirements) ([]int, error) {
	var primary []int
	for _, locator := range req.TargetLocators {
		t, err := target.Parse(locator)
		if err != nil {
			return nil, err
		}
		indices, err := b.RunTaskByTarget(t, req)
		if err != nil {
			return nil, err
		}
		primary = append(primary, indices...)
	}
	return primary, nil
}
