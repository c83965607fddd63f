package ident

import (
	"sort"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/doublestar"
)

// Matcher is a precompiled single-pattern glob matcher. Built on
// gobwas/glob, which compiles to a small matching automaton instead of
// re-parsing the pattern per call. Nothing outside this package's tests
// uses it; the project-graph query language's `~` operator is a plain
// substring test.
type Matcher struct {
	g       glob.Glob
	pattern string
}

// NewMatcher compiles pattern. An empty pattern matches everything.
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		return &Matcher{pattern: pattern}, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling glob %q", pattern)
	}
	return &Matcher{g: g, pattern: pattern}, nil
}

// Match reports whether s matches the compiled pattern.
func (m *Matcher) Match(s string) bool {
	if m.g == nil {
		return true
	}
	return m.g.Match(s)
}

// GlobSet expands one or more doublestar patterns, rooted at base,
// into a sorted, de-duplicated list of workspace-relative matches.
// Nothing outside this package's tests uses it.
type GlobSet struct {
	Include []string
	Exclude []string
}

// Match walks base (an absolute filesystem path) and returns the
// workspace-relative (forward-slash) matches for Include, with any
// match also satisfying an Exclude pattern removed.
func (g GlobSet) Match(base string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, inc := range g.Include {
		matches, err := doublestar.Glob(newOSFS(base), inc)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding glob %q", inc)
		}
		for _, m := range matches {
			seen[m] = struct{}{}
		}
	}
	for _, exc := range g.Exclude {
		matches, err := doublestar.Glob(newOSFS(base), exc)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding exclude glob %q", exc)
		}
		for _, m := range matches {
			delete(seen, m)
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
