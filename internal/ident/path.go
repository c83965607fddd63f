package ident

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrPathTraversal is returned when a workspace-relative path attempts
// to escape the workspace root via `..` segments after normalization.
var ErrPathTraversal = errors.New("path escapes workspace root")

// ErrAbsolutePath is returned when a workspace-relative path is given
// as an absolute path.
var ErrAbsolutePath = errors.New("expected a relative path")

// WorkspacePath is a forward-slash path rooted at the workspace. It is
// never absolute and never traverses above the workspace root after
// normalization, and is validated at construction instead of trusted
// by convention.
type WorkspacePath string

// NewWorkspacePath validates and normalizes s into a WorkspacePath.
// Backslashes are converted to forward slashes before validation so
// callers decoding Windows-style config values behave the same as
// Unix ones.
func NewWorkspacePath(s string) (WorkspacePath, error) {
	clean := path.Clean(strings.ReplaceAll(s, `\`, "/"))
	if path.IsAbs(clean) {
		return "", errors.Wrapf(ErrAbsolutePath, "%q", s)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Wrapf(ErrPathTraversal, "%q", s)
	}
	if clean == "." {
		clean = ""
	}
	return WorkspacePath(clean), nil
}

// String implements fmt.Stringer.
func (p WorkspacePath) String() string { return string(p) }

// Join appends additional forward-slash segments.
func (p WorkspacePath) Join(segments ...string) WorkspacePath {
	all := append([]string{string(p)}, segments...)
	return WorkspacePath(path.Clean(path.Join(all...)))
}

// RestoreAnchor resolves this workspace-relative path against an
// absolute workspace root, producing an AbsolutePath.
func (p WorkspacePath) RestoreAnchor(root AbsolutePath) AbsolutePath {
	return AbsolutePath(filepath.Join(string(root), filepath.FromSlash(string(p))))
}

// ToSystemPath converts the forward-slash path into one using the
// host's path separators, for use with os/filepath APIs.
func (p WorkspacePath) ToSystemPath() string {
	return filepath.FromSlash(string(p))
}

// AbsolutePath is an absolute, system-separator path. It is a thin
// typed wrapper so path kinds can't be accidentally interchanged.
type AbsolutePath string

// NewAbsolutePath validates that s is an absolute path.
func NewAbsolutePath(s string) (AbsolutePath, error) {
	if !filepath.IsAbs(s) {
		return "", errors.Errorf("not an absolute path: %q", s)
	}
	return AbsolutePath(filepath.Clean(s)), nil
}

// String implements fmt.Stringer.
func (p AbsolutePath) String() string { return string(p) }

// UntypedJoin appends system-separator segments without validation,
// for building paths whose segments are not user-controlled.
func (p AbsolutePath) UntypedJoin(segments ...string) AbsolutePath {
	all := append([]string{string(p)}, segments...)
	return AbsolutePath(filepath.Join(all...))
}

// RelativeTo computes the WorkspacePath of p relative to root.
func (p AbsolutePath) RelativeTo(root AbsolutePath) (WorkspacePath, error) {
	rel, err := filepath.Rel(string(root), string(p))
	if err != nil {
		return "", err
	}
	return NewWorkspacePath(filepath.ToSlash(rel))
}

// Exists reports whether a file or directory exists at p.
func (p AbsolutePath) Exists() bool {
	_, err := os.Stat(string(p))
	return err == nil
}

// MkdirAll creates p and any missing parents.
func (p AbsolutePath) MkdirAll(perm os.FileMode) error {
	return os.MkdirAll(string(p), perm)
}

// ReadFile reads the full contents of the file at p.
func (p AbsolutePath) ReadFile() ([]byte, error) {
	return os.ReadFile(string(p))
}

// WriteFile writes data to p, creating or truncating it.
func (p AbsolutePath) WriteFile(data []byte, perm os.FileMode) error {
	return os.WriteFile(string(p), data, perm)
}
