package model

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mason-build/mason/internal/ident"
)

func TestLayerString(t *testing.T) {
	assert.Equal(t, LayerApp.String(), "application")
	assert.Equal(t, LayerLibrary.String(), "library")
	assert.Equal(t, LayerTool.String(), "tool")
	assert.Equal(t, LayerUnknown.String(), "unknown")
}

func TestDependencyScopeStronger(t *testing.T) {
	assert.Assert(t, ScopeBuild.Stronger(ScopeProduction))
	assert.Assert(t, ScopeProduction.Stronger(ScopeDevelopment))
	assert.Assert(t, ScopeDevelopment.Stronger(ScopeRoot))
	assert.Assert(t, ScopeRoot.Stronger(ScopePeer))
	assert.Assert(t, !ScopePeer.Stronger(ScopeBuild))
	assert.Assert(t, !ScopeBuild.Stronger(ScopeBuild))
}

func TestProjectSortedTags(t *testing.T) {
	p := &Project{Tags: ident.NewSet(ident.MustID("web"), ident.MustID("api"), ident.MustID("core"))}
	assert.DeepEqual(t, p.SortedTags(), []string{"api", "core", "web"})
}

func TestProjectSortedDependencies(t *testing.T) {
	p := &Project{Dependencies: []DependencyConfig{
		{ID: ident.MustID("zeta")},
		{ID: ident.MustID("alpha")},
		{ID: ident.MustID("mid")},
	}}
	sorted := p.SortedDependencies()
	assert.Equal(t, sorted[0].ID, ident.MustID("alpha"))
	assert.Equal(t, sorted[1].ID, ident.MustID("mid"))
	assert.Equal(t, sorted[2].ID, ident.MustID("zeta"))

	assert.Equal(t, len(p.Dependencies), 3)
	assert.Equal(t, p.Dependencies[0].ID, ident.MustID("zeta"))
}

func TestProjectIsRoot(t *testing.T) {
	assert.Assert(t, (&Project{Source: "."}).IsRoot())
	assert.Assert(t, !(&Project{Source: "apps/web"}).IsRoot())
}

func TestDefaultsForPresetNone(t *testing.T) {
	opts := DefaultsFor(PresetNone)
	assert.Assert(t, opts.Cache)
	assert.Assert(t, opts.RunInCI)
	assert.Equal(t, opts.OutputStyle, OutputBuffer)
	assert.Assert(t, !opts.Persistent)
}

func TestDefaultsForPresetServer(t *testing.T) {
	opts := DefaultsFor(PresetServer)
	assert.Assert(t, !opts.Cache)
	assert.Assert(t, opts.Persistent)
	assert.Equal(t, opts.OutputStyle, OutputStream)
	assert.Assert(t, !opts.RunInCI)
}

func TestDefaultsForPresetWatcher(t *testing.T) {
	opts := DefaultsFor(PresetWatcher)
	assert.Assert(t, !opts.Cache)
	assert.Assert(t, !opts.Persistent)
	assert.Equal(t, opts.OutputStyle, OutputStream)
	assert.Assert(t, !opts.RunInCI)
}

func TestRuntimeVersionOrMarker(t *testing.T) {
	assert.Equal(t, Runtime{Kind: RuntimeSystem}.VersionOrMarker(), "System")
	assert.Equal(t, Runtime{Kind: RuntimeGlobal}.VersionOrMarker(), "Global")
	assert.Equal(t, Runtime{Kind: RuntimeNode}.VersionOrMarker(), "Global")
	assert.Equal(t, Runtime{Kind: RuntimeNode, Version: "18.16.0"}.VersionOrMarker(), "18.16.0")
}
