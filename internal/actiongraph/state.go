package actiongraph

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/target"
)

// StateMap is the process-wide concurrent TargetState map: insert-or-
// get semantics, exactly one writer per key, shared across workers for
// the lifetime of one invocation.
type StateMap struct {
	mu     sync.RWMutex
	states map[string]model.TargetState
}

// NewStateMap returns an empty StateMap.
func NewStateMap() *StateMap {
	return &StateMap{states: make(map[string]model.TargetState)}
}

// Get returns the state for t, and whether it has been set at all
// (the zero value is indistinguishable from StatePending otherwise).
func (m *StateMap) Get(t target.Target) (model.TargetState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[t.String()]
	return s, ok
}

// Set writes t's state. Spec.md §5 requires exactly one writer per
// key; callers are responsible for that discipline (the runner writes
// its own target's state exactly once, at the end of its run).
func (m *StateMap) Set(t target.Target, s model.TargetState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[t.String()] = s
}

// Terminal reports whether s is one of the four terminal states a
// dependency must reach before a dependent may start.
func Terminal(s model.TargetState) bool {
	switch s.Kind {
	case model.StatePassed, model.StateSkipped, model.StatePassthrough, model.StateFailed:
		return true
	default:
		return false
	}
}

// ErrMissingDependencyState is a programming error: a dependency
// target has no recorded state at all by
// the time its dependent is run, meaning the caller violated the
// topological ordering the Topological Iterator is supposed to
// guarantee.
var ErrMissingDependencyState = errors.New("dependency has no recorded state")

// DependenciesComplete reports
// whether every one of deps (target strings, as stored on
// model.ActionNode) reached a non-Skipped, non-Failed terminal state.
// ok is false when any dependency is Skipped or Failed (the caller
// should record the dependent as Skipped too); err is
// ErrMissingDependencyState when a dependency has no state at all.
func DependenciesComplete(states *StateMap, deps []target.Target) (ok bool, err error) {
	for _, d := range deps {
		s, present := states.Get(d)
		if !present {
			return false, errors.Wrapf(ErrMissingDependencyState, "%s", d.String())
		}
		if s.Kind == model.StateFailed || s.Kind == model.StateSkipped {
			return false, nil
		}
	}
	return true, nil
}
