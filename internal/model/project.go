// Package model defines the shared data model: projects, tasks,
// dependency configs, and the union types tasks are built from.
// It has no behavior of its own — construction lives in taskdef and
// projectgraph, expansion in token, execution in runner — so that
// those packages can share one vocabulary without import cycles.
package model

import (
	"sort"

	"github.com/mason-build/mason/internal/ident"
)

// Layer is the coarse classification used by the constraint checker.
type Layer int

const (
	LayerUnknown Layer = iota
	LayerApp
	LayerLibrary
	LayerTool
)

// String renders the layer's lowercase name, matching the vocabulary
// constraint-violation error messages use.
func (l Layer) String() string {
	switch l {
	case LayerApp:
		return "application"
	case LayerLibrary:
		return "library"
	case LayerTool:
		return "tool"
	default:
		return "unknown"
	}
}

// DependencyScope ranks how strongly a project depends on another.
// When two edges to the same id collide, the strongest scope wins:
// Build > Production > Development > Peer.
type DependencyScope int

const (
	ScopePeer DependencyScope = iota
	ScopeDevelopment
	ScopeProduction
	ScopeBuild
	ScopeRoot
)

// Stronger reports whether s outranks other in the collision-resolution
// order above.
func (s DependencyScope) Stronger(other DependencyScope) bool {
	rank := func(sc DependencyScope) int {
		switch sc {
		case ScopeBuild:
			return 4
		case ScopeProduction:
			return 3
		case ScopeDevelopment:
			return 2
		case ScopeRoot:
			return 1
		default:
			return 0
		}
	}
	return rank(s) > rank(other)
}

// DependencySource records whether a dependency edge was declared by
// the project itself or contributed by an extension hook.
type DependencySource int

const (
	SourceExplicit DependencySource = iota
	SourceImplicit
)

// DependencyConfig is one edge from a project to another project it
// depends on.
type DependencyConfig struct {
	ID     ident.ID
	Scope  DependencyScope
	Source DependencySource
}

// FileGroup is a named set of file/glob inputs declared on a project
// and referenced by the token expander's @group function.
type FileGroup struct {
	Name  ident.ID
	Files []string // workspace-relative literal files
	Globs []string // workspace-relative glob patterns
}

// Project is a fully-discovered, immutable project in the workspace.
// A project is created once per discovery pass and never mutated
// after expansion.
type Project struct {
	ID           ident.ID
	Alias        string
	Source       string // workspace-relative path, forward slashes, "." for the root project
	Root         string // absolute filesystem path
	Layer        Layer
	Language     string
	Stack        string
	Tags         ident.Set
	Dependencies []DependencyConfig
	FileGroups   map[ident.ID]FileGroup
	Tasks        map[ident.ID]*Task
	Config       map[string]interface{} // opaque project-local config, decoded by taskdef
}

// SortedTags returns the project's tags in deterministic order, for
// error messages and hash manifests.
func (p *Project) SortedTags() []string {
	out := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags.UnsafeList() {
		out = append(out, t.String())
	}
	sort.Strings(out)
	return out
}

// SortedDependencies returns Dependencies ordered by id, for stable
// hash manifest and error-message rendering.
func (p *Project) SortedDependencies() []DependencyConfig {
	out := append([]DependencyConfig(nil), p.Dependencies...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsRoot reports whether this project is the workspace root project
// (source == ".").
func (p *Project) IsRoot() bool {
	return p.Source == "."
}
