package actiongraph

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/projectgraph"
	"github.com/mason-build/mason/internal/target"
)

func buildSingleProjectGraph(t *testing.T) (*Builder, *model.Project) {
	t.Helper()
	candidates := []projectgraph.Discovered{
		{ID: ident.ID("app"), Source: ".", Root: "/app"},
	}
	pg, err := projectgraph.Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	app := pg.Projects[ident.ID("app")]
	app.Tasks = map[ident.ID]*model.Task{
		"build": {ID: ident.ID("build"), Command: []string{"true"}},
	}
	return NewBuilder(pg), app
}

func mustTarget(project, task ident.ID) target.Target {
	return target.Target{Scope: target.ScopeProject, Project: project, Task: task}
}

func TestRunTaskDedupesIdenticalInvocations(t *testing.T) {
	b, app := buildSingleProjectGraph(t)
	task := app.Tasks["build"]

	call := RunTaskCall{
		Project: app,
		Task:    task,
		Target:  mustTarget(app.ID, task.ID),
	}

	idx1, err := b.RunTask(call)
	assert.NilError(t, err)
	idx2, err := b.RunTask(call)
	assert.NilError(t, err)
	assert.Equal(t, idx1, idx2)
}

func TestRunFromRequirementsSkipsUnaffectedTask(t *testing.T) {
	b, app := buildSingleProjectGraph(t)
	app.Tasks["build"].InputFiles = []string{"main.go"}

	indices, err := b.RunFromRequirements(RunRequirements{
		TargetLocators: []string{":build"},
		TouchedFiles:   map[string]bool{"unrelated.go": true},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(indices), 0)
}

func TestRunFromRequirementsIncludesAffectedTask(t *testing.T) {
	b, app := buildSingleProjectGraph(t)
	app.Tasks["build"].InputFiles = []string{"main.go"}

	indices, err := b.RunFromRequirements(RunRequirements{
		TargetLocators: []string{":build"},
		TouchedFiles:   map[string]bool{"main.go": true},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(indices), 1)
}

func TestRunFromRequirementsCIPolicySetsPassthrough(t *testing.T) {
	b, app := buildSingleProjectGraph(t)
	app.Tasks["build"].Options.RunInCI = false

	indices, err := b.RunFromRequirements(RunRequirements{
		TargetLocators: []string{":build"},
		CI:             true,
		CICheck:        true,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(indices), 0)

	state, ok := b.States.Get(mustTarget(app.ID, app.Tasks["build"].ID))
	assert.Assert(t, ok)
	assert.Equal(t, state.Kind, model.StatePassthrough)
}

func TestRunTaskArgVariantsAreDistinctNodes(t *testing.T) {
	b, app := buildSingleProjectGraph(t)
	task := app.Tasks["build"]
	tgt := mustTarget(app.ID, task.ID)

	plain, err := b.RunTask(RunTaskCall{Project: app, Task: task, Target: tgt})
	assert.NilError(t, err)
	abc, err := b.RunTask(RunTaskCall{Project: app, Task: task, Target: tgt, Args: []string{"a", "b", "c"}})
	assert.NilError(t, err)
	xyz, err := b.RunTask(RunTaskCall{Project: app, Task: task, Target: tgt, Args: []string{"x", "y", "z"}})
	assert.NilError(t, err)

	assert.Assert(t, plain != abc)
	assert.Assert(t, plain != xyz)
	assert.Assert(t, abc != xyz)

	// An identical arg vector collapses onto the existing node.
	again, err := b.RunTask(RunTaskCall{Project: app, Task: task, Target: tgt, Args: []string{"a", "b", "c"}})
	assert.NilError(t, err)
	assert.Equal(t, abc, again)
}

func TestRunTaskDependencyCycleDetected(t *testing.T) {
	candidates := []projectgraph.Discovered{
		{ID: ident.ID("deps"), Source: ".", Root: "/deps"},
	}
	pg, err := projectgraph.Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	proj := pg.Projects[ident.ID("deps")]
	proj.Tasks = map[ident.ID]*model.Task{
		"cycle1": {ID: ident.ID("cycle1"), Command: []string{"true"}, Deps: []model.TaskDependency{{Target: "deps:cycle2"}}},
		"cycle2": {ID: ident.ID("cycle2"), Command: []string{"true"}, Deps: []model.TaskDependency{{Target: "deps:cycle1"}}},
	}

	b := NewBuilder(pg)
	_, err = b.RunTask(RunTaskCall{
		Project: proj,
		Task:    proj.Tasks["cycle1"],
		Target:  mustTarget(proj.ID, ident.ID("cycle1")),
	})
	assert.NilError(t, err)

	_, err = b.Graph.Sort()
	assert.ErrorIs(t, err, ErrCycleDetected)
	assert.ErrorContains(t, err, "RunTask")
}

func TestRunTaskRejectsDependencyOnPersistentTask(t *testing.T) {
	b, app := buildSingleProjectGraph(t)
	app.Tasks["serve"] = &model.Task{
		ID:      ident.ID("serve"),
		Command: []string{"true"},
		Options: model.TaskOptions{Persistent: true},
	}
	app.Tasks["build"].Deps = []model.TaskDependency{{Target: "app:serve"}}

	_, err := b.RunTask(RunTaskCall{
		Project: app,
		Task:    app.Tasks["build"],
		Target:  mustTarget(app.ID, ident.ID("build")),
	})
	assert.ErrorContains(t, err, "persistent")
}

func TestRunTaskDepsScopeFansOutToDependencies(t *testing.T) {
	candidates := []projectgraph.Discovered{
		{ID: ident.ID("lib"), Source: "lib", Root: "/lib"},
		{
			ID: ident.ID("app"), Source: "app", Root: "/app",
			Dependencies: []model.DependencyConfig{{ID: ident.ID("lib"), Scope: model.ScopeProduction}},
		},
	}
	pg, err := projectgraph.Build(candidates, nil, nil, nil)
	assert.NilError(t, err)
	pg.Projects[ident.ID("lib")].Tasks = map[ident.ID]*model.Task{
		"build": {ID: ident.ID("build"), Command: []string{"true"}},
	}
	pg.Projects[ident.ID("app")].Tasks = map[ident.ID]*model.Task{
		"build": {
			ID:      ident.ID("build"),
			Command: []string{"true"},
			Deps:    []model.TaskDependency{{Target: "^:build"}},
		},
	}

	b := NewBuilder(pg)
	appIdx, err := b.RunTask(RunTaskCall{
		Project: pg.Projects[ident.ID("app")],
		Task:    pg.Projects[ident.ID("app")].Tasks["build"],
		Target:  mustTarget(ident.ID("app"), ident.ID("build")),
	})
	assert.NilError(t, err)

	var libIdx = -1
	for i := 0; i < b.Graph.Len(); i++ {
		node := b.Graph.Node(i)
		if node.Kind == model.ActionRunTask && node.Target == "lib:build" {
			libIdx = i
		}
	}
	assert.Assert(t, libIdx >= 0, "expected a RunTask node for lib:build")

	found := false
	for _, d := range b.Graph.DependencyIndices(appIdx) {
		if d == libIdx {
			found = true
		}
	}
	assert.Assert(t, found, "app:build should depend on lib:build")

	_, err = b.Graph.Sort()
	assert.NilError(t, err)
}
