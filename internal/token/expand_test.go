package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

func testProject() *model.Project {
	return &model.Project{
		ID:       ident.MustID("project"),
		Alias:    "proj-alias",
		Source:   "project",
		Root:     "/workspace/project",
		Layer:    model.LayerLibrary,
		Language: "go",
		Stack:    "backend",
		FileGroups: map[ident.ID]model.FileGroup{
			ident.MustID("sources"): {
				Name:  ident.MustID("sources"),
				Files: []string{"project/src/main.go"},
				Globs: []string{"project/src/**/*.go"},
			},
		},
	}
}

func testTask() *model.Task {
	return &model.Task{
		ID:     ident.MustID("build"),
		Target: "project:build",
		Inputs: []model.TaskValue{
			{Kind: model.KindTokenFunc, Raw: "@globs(sources)"},
		},
		Outputs: []model.TaskValue{
			{Kind: model.KindProjectFile, Raw: "project/dist"},
		},
		Type: model.TaskBuild,
	}
}

func testContext() Context {
	return Context{
		WorkspaceRoot: "/workspace",
		WorkingDir:    "/workspace/project",
		Arch:          "amd64",
		OS:            "linux",
	}
}

func TestExpandString_PassesThroughPlainLiterals(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldArgs, "--release", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"--release"}, res.Values)
}

func TestExpandString_VariableSubstitution(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldArgs, "$project-$task", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"project-build"}, res.Values)
}

func TestExpandString_BracedVariable(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldCommand, "${projectRoot}/bin", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/workspace/project/bin"}, res.Values)
}

func TestExpandString_UnknownTokenFunc(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	_, err := e.ExpandString(FieldArgs, "@unknown(id)", false)
	require.Error(t, err)
	var tokenErr *Error
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrUnknownToken, tokenErr.Kind)
}

func TestExpandString_UnknownFileGroup(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	_, err := e.ExpandString(FieldInputs, "@files(unknown)", false)
	require.Error(t, err)
	var tokenErr *Error
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrUnknownFileGroup, tokenErr.Kind)
}

func TestExpandString_FuncNotAllowedInField(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	// @envs is legal in inputs but not in outputs.
	_, err := e.ExpandString(FieldOutputs, "@envs(FOO)", false)
	require.Error(t, err)
	var tokenErr *Error
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrTokenNotAllowedInField, tokenErr.Kind)
}

func TestExpandGroup_Files(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldInputs, "@files(sources)", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"project/src/main.go"}, res.Values)
	assert.Equal(t, []string{"project/src/main.go"}, res.FileInputs)
}

func TestExpandGroup_Globs(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldInputs, "@globs(sources)", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"project/src/**/*.go"}, res.Values)
	assert.Equal(t, []string{"project/src/**/*.go"}, res.GlobInputs)
}

func TestExpandInOut_RefsAnotherTokenFunc(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldArgs, "@in(0)", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"project/src/**/*.go"}, res.Values)
}

func TestExpandInOut_InvalidIndex(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	_, err := e.ExpandString(FieldArgs, "@in(10)", false)
	require.Error(t, err)
	var tokenErr *Error
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrInvalidTokenIndex, tokenErr.Kind)
}

func TestExpandInOut_InvalidIndexType(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	_, err := e.ExpandString(FieldArgs, "@in(str)", false)
	require.Error(t, err)
	var tokenErr *Error
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrInvalidTokenIndex, tokenErr.Kind)
}

func TestExpandInOut_NoNestedRecursion(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())
	task := testTask()
	task.Inputs = append(task.Inputs, model.TaskValue{Kind: model.KindTokenFunc, Raw: "@in(0)"})
	e.def = task

	_, err := e.ExpandString(FieldArgs, "@in(1)", false)
	require.Error(t, err)
	var tokenErr *Error
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, ErrTokenNotAllowedInField, tokenErr.Kind)
}

func TestExpandEnvs_ExcludesBlacklistedNames(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldInputs, "@envs(CI)", false)
	require.NoError(t, err)
	assert.Empty(t, res.Values)
	assert.Empty(t, res.EnvInputs)
}

func TestExpandEnvs_PassesThroughRegularNames(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldInputs, "@envs(NODE_ENV)", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"NODE_ENV"}, res.Values)
	assert.Equal(t, []string{"NODE_ENV"}, res.EnvInputs)
}

func TestExpandMeta(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldCommand, "@meta(layer)", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"library"}, res.Values)
}

func TestExpandRoot(t *testing.T) {
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldCommand, "@root(self)", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/workspace/project"}, res.Values)
}

func TestExpandVars_OutputsSubstituteFromTaskEnv(t *testing.T) {
	task := testTask()
	task.Env = map[string]string{"DIST_DIR": "dist"}
	e := New(testProject(), task, "project:build", testContext())

	res, err := e.ExpandString(FieldOutputs, "${DIST_DIR}/index.js", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/index.js"}, res.Values)
	assert.Empty(t, res.EnvInputs)
}

func TestExpandVars_OutputsIgnoreAmbientEnv(t *testing.T) {
	t.Setenv("AMBIENT_ONLY", "from-process")
	e := New(testProject(), testTask(), "project:build", testContext())

	res, err := e.ExpandString(FieldOutputs, "${AMBIENT_ONLY}/out", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/out"}, res.Values)
}

func TestExpandVars_ArgsEnvCaptureRequiresInferInputs(t *testing.T) {
	task := testTask()
	e := New(testProject(), task, "project:build", testContext())

	res, err := e.ExpandString(FieldArgs, "$NODE_ENV", false)
	require.NoError(t, err)
	assert.Empty(t, res.EnvInputs)

	task.Options.InferInputs = true
	res, err = e.ExpandString(FieldArgs, "$NODE_ENV", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"NODE_ENV"}, res.EnvInputs)
}
