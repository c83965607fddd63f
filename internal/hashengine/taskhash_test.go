package hashengine

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

type stubVCS struct {
	hashes map[string]string
	rev    string
}

func (s stubVCS) FileHash(path string) (string, bool) {
	h, ok := s.hashes[path]
	return h, ok
}

func (s stubVCS) Revision() string { return s.rev }

func newTask() *model.Task {
	return &model.Task{
		ID:          ident.ID("build"),
		Command:     []string{"go"},
		Args:        []string{"build", "./..."},
		Env:         map[string]string{"NODE_ENV": "production"},
		InputFiles:  []string{"main.go"},
		InputGlobs:  []string{"**/*.go"},
		InputEnv:    []string{"NODE_ENV"},
	}
}

func newProject() *model.Project {
	return &model.Project{
		ID:       ident.ID("app"),
		Layer:    model.Layer(0),
		Language: "go",
	}
}

func TestTaskManifestDeterministicForSameInput(t *testing.T) {
	vcs := stubVCS{hashes: map[string]string{"main.go": "abc123"}}
	in := TaskHashInput{Project: newProject(), Task: newTask(), EnvVals: map[string]string{"NODE_ENV": "production"}}

	hash1, _, err := TaskManifest(in, vcs).Digest()
	assert.NilError(t, err)
	hash2, _, err := TaskManifest(in, vcs).Digest()
	assert.NilError(t, err)
	assert.Equal(t, hash1, hash2)
}

func TestTaskManifestChangesWithInputFileHash(t *testing.T) {
	task := newTask()
	project := newProject()
	in := TaskHashInput{Project: project, Task: task, EnvVals: map[string]string{"NODE_ENV": "production"}}

	hashA, _, err := TaskManifest(in, stubVCS{hashes: map[string]string{"main.go": "aaa"}}).Digest()
	assert.NilError(t, err)
	hashB, _, err := TaskManifest(in, stubVCS{hashes: map[string]string{"main.go": "bbb"}}).Digest()
	assert.NilError(t, err)
	assert.Assert(t, hashA != hashB)
}

func TestTaskManifestMissingFileContributesEmptyString(t *testing.T) {
	task := newTask()
	project := newProject()
	in := TaskHashInput{Project: project, Task: task, EnvVals: map[string]string{"NODE_ENV": "production"}}

	_, manifest, err := TaskManifest(in, stubVCS{hashes: map[string]string{}}).Digest()
	assert.NilError(t, err)
	assert.Assert(t, manifest != nil)
	assert.Assert(t, strings.Contains(string(manifest), `{"name":"main.go","value":""}`))
}

func TestTaskManifestChangesWithEnvValue(t *testing.T) {
	task := newTask()
	project := newProject()

	hashA, _, err := TaskManifest(TaskHashInput{Project: project, Task: task, EnvVals: map[string]string{"NODE_ENV": "production"}}, stubVCS{}).Digest()
	assert.NilError(t, err)
	hashB, _, err := TaskManifest(TaskHashInput{Project: project, Task: task, EnvVals: map[string]string{"NODE_ENV": "development"}}, stubVCS{}).Digest()
	assert.NilError(t, err)
	assert.Assert(t, hashA != hashB)
}

func TestStableReportsEmptyInputsMetadata(t *testing.T) {
	task := newTask()
	task.InputFiles = nil
	task.Metadata.EmptyInputs = true
	assert.Assert(t, Stable(task))

	task.InputFiles = []string{"main.go"}
	assert.Assert(t, !Stable(task))
}
