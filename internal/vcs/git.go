// Package vcs supplies the concrete VCS collaborator behind
// internal/hashengine.VCS: content hashes for workspace-relative
// paths and the current repo revision. Git is detected via a `.git`
// directory probe and queried by shelling out to the `git` binary;
// without a repo, files are hashed directly so a hash is still
// produced.
package vcs

import (
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/fs"
)

// Git implements hashengine.VCS against a real git checkout, falling
// back to content hashing without git when repoRoot has no `.git`
// directory (mirroring scm.NewFallback's stub behavior, but still
// producing real per-file hashes rather than an empty stub).
type Git struct {
	repoRoot string

	mu        sync.Mutex
	hasGit    bool
	hasGitSet bool
	revision  string
}

// New returns a VCS collaborator rooted at repoRoot.
func New(repoRoot string) *Git {
	return &Git{repoRoot: repoRoot}
}

func (g *Git) usesGit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasGitSet {
		g.hasGit = fs.PathExists(filepath.Join(g.repoRoot, ".git"))
		g.hasGitSet = true
	}
	return g.hasGit
}

// FileHash returns the VCS content hash of path (workspace-relative),
// and false if path doesn't exist.
func (g *Git) FileHash(path string) (string, bool) {
	abs := filepath.Join(g.repoRoot, path)
	if !fs.PathExists(abs) {
		return "", false
	}
	if g.usesGit() {
		if h, err := gitHashObject(abs); err == nil {
			return h, true
		}
	}
	h, err := fs.GitLikeHashFile(abs)
	if err != nil {
		return "", false
	}
	return h, true
}

// Revision returns the current repo revision (empty string if none,
// e.g. no git repo present — VCS-derived hashes then carry no
// revision contribution, which is a valid, if weaker, hash input).
func (g *Git) Revision() string {
	if !g.usesGit() {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.revision != "" {
		return g.revision
	}
	out, err := runGit(g.repoRoot, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	g.revision = strings.TrimSpace(out)
	return g.revision
}

// HasRepo reports whether a repository is present at all. Callers
// that filter by change set use this to tell "no repo" (no filter
// possible, run everything) apart from "repo with no changes".
func (g *Git) HasRepo() bool {
	return g.usesGit()
}

// Touched returns the workspace-relative paths changed since base
// (a revision or range). An empty base compares the working tree
// against HEAD, picking up uncommitted edits too; untracked files
// count as touched either way.
func (g *Git) Touched(base string) ([]string, error) {
	if !g.usesGit() {
		return nil, nil
	}
	args := []string{"diff", "--name-only"}
	if base != "" {
		args = append(args, base)
	} else {
		args = append(args, "HEAD")
	}
	diffOut, err := runGit(g.repoRoot, args...)
	if err != nil {
		return nil, err
	}
	untrackedOut, err := runGit(g.repoRoot, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, out := range []string{diffOut, untrackedOut} {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				paths = append(paths, filepath.ToSlash(line))
			}
		}
	}
	return paths, nil
}

func gitHashObject(absPath string) (string, error) {
	out, err := exec.Command("git", "hash-object", absPath).Output()
	if err != nil {
		return "", errors.Wrapf(err, "git hash-object %s", absPath)
	}
	return strings.TrimSpace(string(out)), nil
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "git %s", strings.Join(args, " "))
	}
	return string(out), nil
}
