// Package actiongraph implements the Action Graph Builder: translating requested targets into a DAG of typed action
// nodes, deduplicating equivalent nodes, and detecting cycles.
//
// The graph is backed by a dag.AcyclicGraph; nodes are addressed by
// stable insertion indices, and equivalent nodes (same structural
// content) collapse to one index.
package actiongraph

import (
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/pyr-sh/dag"

	"github.com/mason-build/mason/internal/ident"
	"github.com/mason-build/mason/internal/model"
)

// ErrCycleDetected is returned by Sort when the graph has a cycle.
var ErrCycleDetected = errors.New("cycle detected")

// Graph is a DAG over ActionNode: edges
// point from dependents to dependencies; SyncWorkspace has no
// in-graph dependencies and every other node transitively depends on
// it.
type Graph struct {
	mu    sync.Mutex
	dag   dag.AcyclicGraph
	byKey map[string]int
	nodes []model.ActionNode
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{byKey: make(map[string]int)}
}

// indexName renders a stable dag vertex name for node index i.
func indexName(i int) string {
	return strconv.Itoa(i)
}

// insert deduplicates on node.Key() and returns its stable index,
// inserting it if new.
func (g *Graph) insert(node model.ActionNode) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := node.Key()
	if i, ok := g.byKey[key]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.byKey[key] = i
	g.dag.Add(indexName(i))
	return i
}

// connect adds a dependent -> dependency edge.
func (g *Graph) connect(from, to int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dag.Connect(dag.BasicEdge(indexName(from), indexName(to)))
}

// Node returns the ActionNode at index i.
func (g *Graph) Node(i int) model.ActionNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[i]
}

// Len returns the number of distinct nodes in the graph.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Dag exposes the underlying dag.AcyclicGraph for callers that render
// it rather than walk it (internal/graphvisualizer's `mason graph`
// rendering); the graph is otherwise built and walked only through
// this package's own exported methods.
func (g *Graph) Dag() *dag.AcyclicGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &g.dag
}

// DependencyIndices returns the direct dependency indices of node i
// (the nodes i's edges point to).
func (g *Graph) DependencyIndices(i int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	downs := g.dag.DownEdges(indexName(i))
	out := make([]int, 0, downs.Len())
	for _, v := range downs.List() {
		idx, err := strconv.Atoi(v.(string))
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// SyncWorkspace inserts the singleton sync_workspace node and returns its index.
func (g *Graph) SyncWorkspace() int {
	return g.insert(model.ActionNode{Kind: model.ActionSyncWorkspace})
}

// SetupToolchain inserts a setup_toolchain node with an edge to
// sync_workspace.
func (g *Graph) SetupToolchain(runtime model.Runtime) int {
	i := g.insert(model.ActionNode{Kind: model.ActionSetupToolchain, Runtime: runtime})
	g.connect(i, g.SyncWorkspace())
	return i
}

// InstallSuppressed reports whether install_deps should be suppressed
// because the task's runtime doesn't match the project's configured
// toolchain.
func InstallSuppressed(projectRuntime, taskRuntime model.RuntimeKind) bool {
	if taskRuntime == model.RuntimeSystem || taskRuntime == model.RuntimeGlobal {
		return false
	}
	return projectRuntime != taskRuntime
}

// InstallWorkspaceDeps inserts a workspace-level dependency install.
func (g *Graph) InstallWorkspaceDeps(runtime model.Runtime) int {
	i := g.insert(model.ActionNode{Kind: model.ActionInstallWorkspaceDeps, Runtime: runtime})
	g.connect(i, g.SetupToolchain(runtime))
	return i
}

// InstallProjectDeps inserts a project-level dependency install.
func (g *Graph) InstallProjectDeps(project ident.ID, runtime model.Runtime) int {
	i := g.insert(model.ActionNode{Kind: model.ActionInstallProjectDeps, Project: project, Runtime: runtime})
	g.connect(i, g.SetupToolchain(runtime))
	return i
}

// InstallDeps chooses between workspace-level and project-level
// install based on whether the project sits inside a package-manager
// workspace, and is a no-op
// when the toolchain is suppressed.
func (g *Graph) InstallDeps(project ident.ID, runtime model.Runtime, projectRuntime model.RuntimeKind, insideWorkspace bool) (int, bool) {
	if InstallSuppressed(projectRuntime, runtime.Kind) {
		return 0, false
	}
	if insideWorkspace {
		return g.InstallWorkspaceDeps(runtime), true
	}
	return g.InstallProjectDeps(project, runtime), true
}

// SyncProject inserts a sync_project node with edges to each
// dependency's sync_project and to setup_toolchain(project.runtime).
func (g *Graph) SyncProject(project *model.Project, runtime model.Runtime, deps func(ident.ID) []ident.ID) int {
	i := g.insert(model.ActionNode{Kind: model.ActionSyncProject, Project: project.ID, Runtime: runtime})
	g.connect(i, g.SetupToolchain(runtime))
	for _, depID := range deps(project.ID) {
		g.connect(i, g.syncProjectByID(depID, runtime, deps))
	}
	return i
}

func (g *Graph) syncProjectByID(id ident.ID, runtime model.Runtime, deps func(ident.ID) []ident.ID) int {
	i := g.insert(model.ActionNode{Kind: model.ActionSyncProject, Project: id, Runtime: runtime})
	g.connect(i, g.SetupToolchain(runtime))
	for _, depID := range deps(id) {
		if depID == id {
			continue
		}
		g.connect(i, g.syncProjectByID(depID, runtime, deps))
	}
	return i
}

// RunTaskNode inserts (or finds, via dedup) the RunTask node for one
// concrete invocation signature.
func (g *Graph) RunTaskNode(node model.ActionNode) int {
	node.Kind = model.ActionRunTask
	return g.insert(node)
}

// Sort returns node indices in dependency-first topological order
// (every node after all of its dependencies), or ErrCycleDetected
// naming the first offending node in the cycle.
//
// Implemented as a plain Kahn's-algorithm walk over DependencyIndices
// rather than delegating to dag.AcyclicGraph.Walk, since Walk executes
// concurrently and gives no ordering guarantee — exactly what the
// pull-based Topological Iterator (component G) needs to not rely on.
func (g *Graph) Sort() ([]int, error) {
	if cycle := g.firstCycle(); cycle != nil {
		return nil, errors.Wrapf(ErrCycleDetected, "%s", g.describeCycle(cycle))
	}

	n := g.Len()
	depCount := make([]int, n)
	dependents := make([][]int, n)
	for i := 0; i < n; i++ {
		deps := g.DependencyIndices(i)
		depCount[i] = len(deps)
		for _, d := range deps {
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready []int
	for i := 0; i < n; i++ {
		if depCount[i] == 0 {
			ready = append(ready, i)
		}
	}
	sort.Ints(ready)

	var order []int
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		var newlyReady []int
		for _, dep := range dependents[next] {
			depCount[dep]--
			if depCount[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sort.Ints(newlyReady)
		ready = append(ready, newlyReady...)
	}
	return order, nil
}

// firstCycle returns the node indices of one cycle, or nil if the
// graph is acyclic, via a simple DFS (three-color marking).
func (g *Graph) firstCycle() []int {
	n := g.Len()
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, n)
	var stack []int
	var cycle []int

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, d := range g.DependencyIndices(i) {
			if color[d] == gray {
				// found the back-edge; extract the cycle portion of stack
				for j := len(stack) - 1; j >= 0; j-- {
					cycle = append(cycle, stack[j])
					if stack[j] == d {
						break
					}
				}
				return true
			}
			if color[d] == white && visit(d) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for i := 0; i < n; i++ {
		if color[i] == white && visit(i) {
			return cycle
		}
	}
	return nil
}

func (g *Graph) describeCycle(indices []int) string {
	s := ""
	for i, idx := range indices {
		if i > 0 {
			s += " -> "
		}
		node := g.Node(idx)
		if node.Kind == model.ActionRunTask {
			s += node.Kind.String() + "(" + node.Target + ")"
		} else {
			s += node.Kind.String() + "(" + string(node.Project) + ")"
		}
	}
	return s
}
