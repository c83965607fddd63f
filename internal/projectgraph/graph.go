// Package projectgraph implements the Project Graph:
// discovering projects from globs/explicit sources, assigning
// aliases, resolving dependencies, validating layer/tag constraints,
// and caching the result by content hash.
//
// Edges are held in a dag.AcyclicGraph keyed by project id; projects
// reference their dependencies by id, never by pointer, so the graph
// stays serializable.
package projectgraph

import (
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/pyr-sh/dag"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

// Discovered is one project candidate surfaced by discovery, before
// alias/dependency resolution: everything the (out-of-scope) config
// loader already parsed for us.
type Discovered struct {
	ID           ident.ID // from config `id:`, or derived from leaf dir if empty on input
	IDFromConfig bool
	Source       string // workspace-relative, "." for root
	Root         string // absolute path
	Layer        model.Layer
	Language     string
	Stack        string
	Tags         []ident.ID
	Dependencies []model.DependencyConfig
	FileGroups   map[ident.ID]model.FileGroup
	Config       map[string]interface{}
}

// Configuration errors raised while building the graph.
var (
	ErrDuplicateProjectID = errors.New("duplicate project id")
	ErrUnknownProject     = errors.New("unknown project")
	ErrDuplicateAlias     = errors.New("duplicate alias")
	ErrNoProjectFromPath  = errors.New("no project at path")
)

// Graph is the discovered, dependency-resolved, constraint-validated
// set of projects.
type Graph struct {
	Projects map[ident.ID]*model.Project
	aliases  map[string]ident.ID
	deps     dag.AcyclicGraph // edges point from dependent -> dependency, by ID string
	logger   hclog.Logger
}

// AliasHook supplies (id, alias) pairs from an extension point.
type AliasHook func(id ident.ID) (alias string, ok bool)

// ImplicitDepsHook contributes additional dependency edges for a
// project, tagged Implicit.
type ImplicitDepsHook func(id ident.ID) []model.DependencyConfig

// Build discovers, aliases, and resolves dependencies for a set of
// candidates, without yet validating constraints (call
// ValidateLayering and ValidateTags separately so callers can choose whether
// constraint errors are fatal).
func Build(candidates []Discovered, aliasHook AliasHook, implicitHook ImplicitDepsHook, logger hclog.Logger) (*Graph, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	g := &Graph{
		Projects: make(map[ident.ID]*model.Project),
		aliases:  make(map[string]ident.ID),
		logger:   logger,
	}
	logger.Debug("building project graph", "candidates", len(candidates))

	seenIDs := make(map[ident.ID]string) // id -> source, to report duplicates
	for _, c := range candidates {
		if existing, ok := seenIDs[c.ID]; ok && existing != c.Source {
			return nil, errors.Wrapf(ErrDuplicateProjectID, "%q declared at both %q and %q", c.ID, existing, c.Source)
		}
		seenIDs[c.ID] = c.Source

		p := &model.Project{
			ID:           c.ID,
			Source:       c.Source,
			Root:         c.Root,
			Layer:        c.Layer,
			Language:     c.Language,
			Stack:        c.Stack,
			Tags:         ident.NewSet(c.Tags...),
			Dependencies: append([]model.DependencyConfig{}, c.Dependencies...),
			FileGroups:   c.FileGroups,
			Tasks:        make(map[ident.ID]*model.Task),
			Config:       c.Config,
		}
		g.Projects[c.ID] = p
		g.deps.Add(string(c.ID))
	}

	if aliasHook != nil {
		for id := range g.Projects {
			alias, ok := aliasHook(id)
			if !ok || alias == string(id) {
				continue
			}
			if existing, ok := g.aliases[alias]; ok && existing != id {
				return nil, errors.Wrapf(ErrDuplicateAlias, "%q already used by %q, cannot assign to %q", alias, existing, id)
			}
			g.aliases[alias] = id
			g.Projects[id].Alias = alias
		}
	}

	if implicitHook != nil {
		for id, p := range g.Projects {
			for _, dep := range implicitHook(id) {
				dep.Source = model.SourceImplicit
				p.Dependencies = append(p.Dependencies, dep)
			}
		}
	}

	if err := g.resolveEdges(); err != nil {
		return nil, err
	}
	return g, nil
}

// Resolve looks an id up either by id or by alias.
func (g *Graph) Resolve(idOrAlias string) (*model.Project, bool) {
	if p, ok := g.Projects[ident.ID(idOrAlias)]; ok {
		return p, true
	}
	if id, ok := g.aliases[idOrAlias]; ok {
		return g.Projects[id], true
	}
	return nil, false
}

// resolveEdges collapses duplicate edges (strongest scope wins) and
// drops dangling implicit edges; dangling explicit edges are a hard
// error.
func (g *Graph) resolveEdges() error {
	for id, p := range g.Projects {
		byTarget := make(map[ident.ID]model.DependencyConfig)
		for _, dep := range p.Dependencies {
			target, ok := g.Resolve(string(dep.ID))
			if !ok {
				if dep.Source == model.SourceImplicit {
					g.logger.Debug("dropping dangling implicit dependency", "project", id, "dep", dep.ID)
					continue
				}
				return errors.Wrapf(ErrUnknownProject, "project %q depends on unknown %q", id, dep.ID)
			}
			key := target.ID
			if existing, ok := byTarget[key]; !ok || dep.Scope.Stronger(existing.Scope) {
				dep.ID = key
				byTarget[key] = dep
			}
		}
		resolved := make([]model.DependencyConfig, 0, len(byTarget))
		for _, dep := range byTarget {
			resolved = append(resolved, dep)
			g.deps.Connect(dag.BasicEdge(string(id), string(dep.ID)))
		}
		sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID < resolved[j].ID })
		p.Dependencies = resolved
	}
	if cycles := g.deps.Cycles(); len(cycles) > 0 {
		return errors.Errorf("dependency cycle detected involving %d project(s)", len(cycles[0]))
	}
	return nil
}

// Dependents returns every project that directly depends on id, used
// by the action-graph builder's dependents walk.
func (g *Graph) Dependents(id ident.ID) []*model.Project {
	var out []*model.Project
	for _, p := range g.Projects {
		for _, dep := range p.Dependencies {
			if dep.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sorted returns all projects ordered by id, for deterministic
// iteration in discovery/hash-manifest/error-reporting contexts.
func (g *Graph) Sorted() []*model.Project {
	out := make([]*model.Project, 0, len(g.Projects))
	for _, p := range g.Projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
