package ident

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewMatcherEmptyPatternMatchesEverything(t *testing.T) {
	m, err := NewMatcher("")
	assert.NilError(t, err)
	assert.Assert(t, m.Match("anything"))
	assert.Assert(t, m.Match(""))
}

func TestNewMatcherCompilesAndMatches(t *testing.T) {
	m, err := NewMatcher("frontend-*")
	assert.NilError(t, err)
	assert.Assert(t, m.Match("frontend-web"))
	assert.Assert(t, !m.Match("backend-api"))
}

func TestNewMatcherRejectsInvalidPattern(t *testing.T) {
	_, err := NewMatcher("[")
	assert.Assert(t, err != nil)
}

func writeFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		assert.NilError(t, os.MkdirAll(filepath.Dir(full), 0755))
		assert.NilError(t, os.WriteFile(full, []byte("x"), 0644))
	}
}

func TestGlobSetMatchIncludeOnly(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/a.ts", "src/b.ts", "src/nested/c.ts", "README.md")

	g := GlobSet{Include: []string{"src/**/*.ts"}}
	matches, err := g.Match(root)
	assert.NilError(t, err)
	assert.DeepEqual(t, matches, []string{"src/a.ts", "src/b.ts", "src/nested/c.ts"})
}

func TestGlobSetMatchAppliesExclude(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/a.ts", "src/a.test.ts", "src/b.ts")

	g := GlobSet{
		Include: []string{"src/*.ts"},
		Exclude: []string{"src/*.test.ts"},
	}
	matches, err := g.Match(root)
	assert.NilError(t, err)
	assert.DeepEqual(t, matches, []string{"src/a.ts", "src/b.ts"})
}

func TestGlobSetMatchDeduplicatesOverlappingIncludes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "src/a.ts")

	g := GlobSet{Include: []string{"src/*.ts", "src/a.ts"}}
	matches, err := g.Match(root)
	assert.NilError(t, err)
	assert.DeepEqual(t, matches, []string{"src/a.ts"})
}

func TestGlobSetMatchInvalidPatternErrors(t *testing.T) {
	root := t.TempDir()
	g := GlobSet{Include: []string{"["}}
	_, err := g.Match(root)
	assert.Assert(t, err != nil)
}
