package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/cacheengine"
	"github.com/mason-build/mason/internal/model"
)

const rootYAML = `
cacheMode: off
projects:
  - id: lib
    path: libs/lib
  - id: app
    path: apps/app
    dependsOn:
      - id: lib
        scope: production
tasks:
  build:
    command: "go build ./..."
    outputs:
      - "dist/**"
`

func writeRoot(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "libs", "lib"), 0755))
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "apps", "app"), 0755))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0644))
	return dir
}

func TestLoadDecodesRootDocument(t *testing.T) {
	dir := writeRoot(t, rootYAML)
	cfg, err := Load(dir)
	assert.NilError(t, err)
	assert.Equal(t, cfg.CacheMode, cacheengine.Off)
	assert.Equal(t, len(cfg.Projects), 2)
	assert.Equal(t, len(cfg.Globals), 1)

	build, ok := cfg.Globals["build"]
	assert.Assert(t, ok)
	assert.Equal(t, len(build), 1)
	assert.Equal(t, build[0].Command, "go build ./...")
}

func TestLoadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Assert(t, err != nil)
}

func TestClassifyValue(t *testing.T) {
	assert.Equal(t, classifyValue("@files(src)"), model.KindTokenFunc)
	assert.Equal(t, classifyValue("$workspaceRoot"), model.KindTokenVar)
	assert.Equal(t, classifyValue("env:API_KEY"), model.KindEnvVar)
	assert.Equal(t, classifyValue("src/**/*.ts"), model.KindProjectGlob)
	assert.Equal(t, classifyValue("src/index.ts"), model.KindProjectFile)
}

func TestLayerFromString(t *testing.T) {
	assert.Equal(t, layerFromString("application"), model.LayerApp)
	assert.Equal(t, layerFromString("library"), model.LayerLibrary)
	assert.Equal(t, layerFromString("tool"), model.LayerTool)
	assert.Equal(t, layerFromString("bogus"), model.LayerUnknown)
}

func TestScopeFromString(t *testing.T) {
	assert.Equal(t, scopeFromString("build"), model.ScopeBuild)
	assert.Equal(t, scopeFromString("production"), model.ScopeProduction)
	assert.Equal(t, scopeFromString("development"), model.ScopeDevelopment)
	assert.Equal(t, scopeFromString("peer"), model.ScopePeer)
}
