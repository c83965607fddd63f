package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/token"
)

func writeFileHelper(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	assert.NilError(t, os.MkdirAll(filepath.Dir(full), 0755))
	assert.NilError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestDiscoverProducesCandidatesWithDependencies(t *testing.T) {
	dir := writeRoot(t, rootYAML)
	cfg, err := Load(dir)
	assert.NilError(t, err)

	candidates, raw, err := Discover(cfg)
	assert.NilError(t, err)
	assert.Equal(t, len(candidates), 2)
	assert.Equal(t, len(raw), 2)

	found := false
	for _, c := range candidates {
		if c.ID == ident.MustID("app") {
			found = true
			assert.Equal(t, len(c.Dependencies), 1)
			assert.Equal(t, c.Dependencies[0].ID, ident.MustID("lib"))
		}
	}
	assert.Assert(t, found)
}

func TestBuildExpandsTasksAcrossProjects(t *testing.T) {
	dir := writeRoot(t, rootYAML)
	cfg, err := Load(dir)
	assert.NilError(t, err)

	pg, err := Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.NilError(t, err)

	app, ok := pg.Resolve("app")
	assert.Assert(t, ok)
	build, ok := app.Tasks[ident.MustID("build")]
	assert.Assert(t, ok)
	assert.DeepEqual(t, build.Command, []string{"go", "build", "./..."})
	assert.Equal(t, build.Target, "app:build")
	assert.Equal(t, len(build.OutputGlobs), 1)
	assert.Equal(t, build.OutputGlobs[0], "dist/**")

	lib, ok := pg.Resolve("lib")
	assert.Assert(t, ok)
	_, ok = lib.Tasks[ident.MustID("build")]
	assert.Assert(t, ok)
}

const localOverrideYAML = `
cacheMode: off
projects:
  - id: app
    path: apps/app
tasks:
  build:
    command: "echo default"
`

const appLocalYAML = `
id: app
tasks:
  build:
    command: "go build ./cmd/app"
`

func TestBuildLocalTaskOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, localOverrideYAML)
	writeFileHelper(t, dir, "apps/app/"+fileName, appLocalYAML)

	cfg, err := Load(dir)
	assert.NilError(t, err)

	pg, err := Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.NilError(t, err)

	app, ok := pg.Resolve("app")
	assert.Assert(t, ok)
	build, ok := app.Tasks[ident.MustID("build")]
	assert.Assert(t, ok)
	assert.DeepEqual(t, build.Command, []string{"go", "build", "./cmd/app"})
}

const globRootYAML = `
projectGlobs:
  - "apps/*"
tasks:
  build:
    command: "echo build"
`

const globAppYAML = `
id: web
tasks: {}
`

func TestDiscoverFromGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, globRootYAML)
	writeFileHelper(t, dir, "apps/web/"+fileName, globAppYAML)
	writeFileHelper(t, dir, "apps/not-a-project/readme.txt", "no config here")
	writeFileHelper(t, dir, "packages/lib/"+fileName, "id: lib")

	cfg, err := Load(dir)
	assert.NilError(t, err)

	candidates, _, err := Discover(cfg)
	assert.NilError(t, err)
	// apps/web matches the glob and carries a config; apps/not-a-project
	// has no config; packages/lib is outside the glob.
	assert.Equal(t, len(candidates), 1)
	assert.Equal(t, candidates[0].ID, ident.MustID("web"))
	assert.Equal(t, candidates[0].Source, "apps/web")
}

func TestDiscoverGlobLeafDirectoryNamesProject(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, globRootYAML)
	writeFileHelper(t, dir, "apps/anon/"+fileName, "tasks: {}")

	cfg, err := Load(dir)
	assert.NilError(t, err)

	candidates, _, err := Discover(cfg)
	assert.NilError(t, err)
	assert.Equal(t, len(candidates), 1)
	assert.Equal(t, candidates[0].ID, ident.MustID("anon"))
}

const layeredRootYAML = `
constraints:
  enforceLayers: true
projects:
  - id: app
    path: apps/app
    layer: application
    dependsOn:
      - id: app-other
  - id: app-other
    path: apps/app-other
    layer: application
`

func TestBuildRejectsLayeringViolation(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, layeredRootYAML)

	cfg, err := Load(dir)
	assert.NilError(t, err)

	_, err = Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.ErrorContains(t, err, "cannot depend on")
}

const tagRootYAML = `
constraints:
  tagRelationships:
    frontend:
      - shared
projects:
  - id: ui
    path: apps/ui
    tags: [frontend]
    dependsOn:
      - id: backend
  - id: backend
    path: apps/backend
    tags: [server]
`

func TestBuildRejectsTagViolation(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, tagRootYAML)

	cfg, err := Load(dir)
	assert.NilError(t, err)

	_, err = Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.ErrorContains(t, err, "shares neither tag")
}

const archivableRootYAML = `
runner:
  archivableTargets:
    - ":release"
projects:
  - id: app
    path: apps/app
tasks:
  release:
    command: "echo release"
    options:
      cache: false
`

func TestBuildForcesCacheOnArchivableTargets(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, archivableRootYAML)

	cfg, err := Load(dir)
	assert.NilError(t, err)

	pg, err := Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.NilError(t, err)

	app, ok := pg.Resolve("app")
	assert.Assert(t, ok)
	release, ok := app.Tasks[ident.MustID("release")]
	assert.Assert(t, ok)
	assert.Assert(t, release.Options.Cache)
}

const inputsRootYAML = `
projects:
  - id: app
    path: apps/app
tasks:
  build:
    command: "go build ./..."
    inputs:
      - "src/**/*"
      - "go.mod"
`

func TestBuildAnchorsProjectInputsAtWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, inputsRootYAML)
	writeFileHelper(t, dir, "apps/app/.keep", "")

	cfg, err := Load(dir)
	assert.NilError(t, err)

	pg, err := Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.NilError(t, err)

	app, ok := pg.Resolve("app")
	assert.Assert(t, ok)
	build := app.Tasks[ident.MustID("build")]
	assert.Assert(t, build != nil)
	assert.DeepEqual(t, build.InputFiles, []string{"apps/app/go.mod", fileName})
	assert.DeepEqual(t, build.InputGlobs, []string{"apps/app/src/**/*"})
}

func TestDiscoverFromGlobsRespectsGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, globRootYAML)
	writeFileHelper(t, dir, ".gitignore", "apps/generated/\n")
	writeFileHelper(t, dir, "apps/web/"+fileName, globAppYAML)
	writeFileHelper(t, dir, "apps/generated/"+fileName, "id: generated")

	cfg, err := Load(dir)
	assert.NilError(t, err)

	candidates, _, err := Discover(cfg)
	assert.NilError(t, err)
	assert.Equal(t, len(candidates), 1)
	assert.Equal(t, candidates[0].ID, ident.MustID("web"))
}

func TestBuildReportsEveryConstraintViolation(t *testing.T) {
	dir := t.TempDir()
	writeFileHelper(t, dir, fileName, `
constraints:
  enforceLayers: true
projects:
  - id: app
    path: apps/app
    layer: application
    dependsOn:
      - id: app-two
      - id: app-three
  - id: app-two
    path: apps/app-two
    layer: application
  - id: app-three
    path: apps/app-three
    layer: application
`)

	cfg, err := Load(dir)
	assert.NilError(t, err)

	_, err = Build(cfg, token.Context{WorkspaceRoot: dir}, nil)
	assert.ErrorContains(t, err, "app-two")
	assert.ErrorContains(t, err, "app-three")
}
