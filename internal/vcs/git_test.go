package vcs

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestFileHashMissingFileReturnsFalse(t *testing.T) {
	g := New(t.TempDir())
	_, ok := g.FileHash("does-not-exist.go")
	assert.Assert(t, !ok)
}

func TestFileHashFallsBackWithoutGitRepo(t *testing.T) {
	root := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))

	g := New(root)
	hash, ok := g.FileHash("main.go")
	assert.Assert(t, ok)
	assert.Assert(t, hash != "")
}

func TestFileHashIsContentAddressed(t *testing.T) {
	root := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("same"), 0644))
	assert.NilError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("same"), 0644))
	assert.NilError(t, os.WriteFile(filepath.Join(root, "c.go"), []byte("different"), 0644))

	g := New(root)
	hashA, _ := g.FileHash("a.go")
	hashB, _ := g.FileHash("b.go")
	hashC, _ := g.FileHash("c.go")
	assert.Equal(t, hashA, hashB)
	assert.Assert(t, hashA != hashC)
}

func TestRevisionEmptyWithoutGitRepo(t *testing.T) {
	g := New(t.TempDir())
	assert.Equal(t, g.Revision(), "")
}

func TestTouchedEmptyWithoutGitRepo(t *testing.T) {
	g := New(t.TempDir())
	paths, err := g.Touched("")
	assert.NilError(t, err)
	assert.Equal(t, len(paths), 0)
}
