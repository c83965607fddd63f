// Package topo implements a pull-based topological walk over an
// action graph: Next/MarkCompleted/HasPending let a single producer
// drive many parallel consumers, each consumer handed a node at most
// once and only once every dependency has reached a terminal state.
//
// The in-degree tracking is hand-rolled Kahn's-algorithm bookkeeping
// because dag.Walk is
// push-based and cannot be paused and resumed from outside its own
// callback.
package topo

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/mason-build/mason/internal/actiongraph"
	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/target"
)

// Iterator hands out action-graph node indices in dependency order,
// never before every dependency of a node has reached a terminal
// state (actiongraph.Terminal), and never the same index twice.
type Iterator struct {
	mu sync.Mutex

	graph  *actiongraph.Graph
	states *actiongraph.StateMap
	logger hclog.Logger

	depCount   []int
	dependents [][]int
	targets    []string // index -> rendered target string, for state lookups

	ready     []int // indices currently eligible, not yet handed out
	handedOut map[int]bool
	completed map[int]bool

	// budget optionally bounds how many nodes may be in-flight
	// (handed out but not yet MarkCompleted) at once; nil means
	// unbounded (the caller's own worker pool provides the limit).
	budget *semaphore.Weighted
}

// New builds an Iterator over every node currently in g. Each node's
// rendered Target field keys its StateMap lookup; non-task nodes carry
// "" and have no TargetState entry, so they count as terminal once
// MarkCompleted has been called for them. A concurrency above zero
// bounds how many nodes may be in flight at once.
func New(g *actiongraph.Graph, states *actiongraph.StateMap, concurrency int, logger hclog.Logger) *Iterator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	n := g.Len()
	it := &Iterator{
		graph:      g,
		states:     states,
		logger:     logger,
		depCount:   make([]int, n),
		dependents: make([][]int, n),
		targets:    make([]string, n),
		handedOut:  make(map[int]bool, n),
		completed:  make(map[int]bool, n),
	}
	if concurrency > 0 {
		it.budget = semaphore.NewWeighted(int64(concurrency))
	}
	for i := 0; i < n; i++ {
		it.targets[i] = g.Node(i).Target
		deps := g.DependencyIndices(i)
		it.depCount[i] = len(deps)
		for _, d := range deps {
			it.dependents[d] = append(it.dependents[d], i)
		}
	}
	for i := 0; i < n; i++ {
		if it.depCount[i] == 0 {
			it.ready = append(it.ready, i)
		}
	}
	it.sortReady()
	return it
}

// sortReady orders the ready set with persistent nodes sorted last
// within the batch, and otherwise by index for
// determinism.
func (it *Iterator) sortReady() {
	sort.SliceStable(it.ready, func(a, b int) bool {
		ia, ib := it.ready[a], it.ready[b]
		pa, pb := it.graph.Node(ia).Persistent, it.graph.Node(ib).Persistent
		if pa != pb {
			return !pa // non-persistent first
		}
		return ia < ib
	})
}

// dependenciesTerminal reports whether every dependency of i has
// reached a terminal TargetState (or has no target, i.e. is a
// non-task node, which is always considered terminal once its own
// depCount reaches zero via MarkCompleted bookkeeping).
func (it *Iterator) dependenciesTerminal(i int) bool {
	for _, d := range it.graph.DependencyIndices(i) {
		if it.targets[d] == "" {
			if !it.completed[d] {
				return false
			}
			continue
		}
		s, ok := it.states.Get(mustParseTarget(it.targets[d]))
		if !ok || !actiongraph.Terminal(s) {
			return false
		}
	}
	return true
}

// Next returns the next eligible node not yet handed out with its
// index, or (ActionNode{}, 0, false) if none is currently available (either the
// walk is complete, or remaining nodes are blocked on in-flight
// dependencies). ctx bounds the wait on the concurrency budget, if
// one was configured.
func (it *Iterator) Next(ctx context.Context) (model.ActionNode, int, bool) {
	it.mu.Lock()
	var chosen = -1
	for idx, i := range it.ready {
		if it.handedOut[i] {
			continue
		}
		if !it.dependenciesTerminal(i) {
			continue
		}
		chosen = i
		it.ready = append(it.ready[:idx], it.ready[idx+1:]...)
		break
	}
	it.mu.Unlock()

	if chosen < 0 {
		return model.ActionNode{}, 0, false
	}

	if it.budget != nil {
		if err := it.budget.Acquire(ctx, 1); err != nil {
			it.mu.Lock()
			it.ready = append(it.ready, chosen)
			it.sortReady()
			it.mu.Unlock()
			return model.ActionNode{}, 0, false
		}
	}

	it.mu.Lock()
	it.handedOut[chosen] = true
	it.mu.Unlock()
	it.logger.Trace("handing out node", "index", chosen)
	return it.graph.Node(chosen), chosen, true
}

// MarkCompleted records that node i finished (regardless of pass/fail
// outcome — the caller is responsible for writing i's TargetState
// before calling this), releasing the concurrency budget slot and
// promoting any newly-ready dependents into the ready set.
func (it *Iterator) MarkCompleted(i int) {
	if it.budget != nil {
		it.budget.Release(1)
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	it.completed[i] = true
	var newlyReady []int
	for _, dep := range it.dependents[i] {
		it.depCount[dep]--
		if it.depCount[dep] == 0 {
			newlyReady = append(newlyReady, dep)
		}
	}
	it.ready = append(it.ready, newlyReady...)
	it.sortReady()
}

// HasPending reports whether any node remains that hasn't yet been
// completed (whether currently ready, in flight, or still blocked).
func (it *Iterator) HasPending() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.completed) < len(it.depCount)
}

// mustParseTarget re-parses an ActionNode's rendered target string for
// a StateMap lookup. Any such string was produced by
// target.Target.String() at action-graph insertion time and is always
// well-formed, so a parse failure here indicates a defect in the
// action-graph builder rather than recoverable bad input.
func mustParseTarget(s string) target.Target {
	t, err := target.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}
