package turbopath

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// AbsoluteSystemPath is a root-relative path using system separators.
type AbsoluteSystemPath string

// For interface reasons, we need a way to distinguish between
// Absolute/Anchored/Relative/System/Unix/File paths so we stamp them.
func (AbsoluteSystemPath) absolutePathStamp() {}
func (AbsoluteSystemPath) systemPathStamp()   {}
func (AbsoluteSystemPath) filePathStamp()     {}

// ToString returns a string represenation of this Path.
// Used for interfacing with APIs that require a string.
func (p AbsoluteSystemPath) ToString() string {
	return string(p)
}

// RelativeTo calculates the relative path between two `AbsoluteSystemPath`s.
func (p AbsoluteSystemPath) RelativeTo(basePath AbsoluteSystemPath) (AnchoredSystemPath, error) {
	processed, err := filepath.Rel(basePath.ToString(), p.ToString())
	return AnchoredSystemPath(processed), err
}

// Join appends relative path segments to this AbsoluteSystemPath.
func (p AbsoluteSystemPath) Join(additional ...RelativeSystemPath) AbsoluteSystemPath {
	cast := RelativeSystemPathArray(additional)
	return AbsoluteSystemPath(filepath.Join(p.ToString(), filepath.Join(cast.ToStringArray()...)))
}

// MkdirAll implements os.MkdirAll(p, mode).
func (p AbsoluteSystemPath) MkdirAll(mode os.FileMode) error {
	return os.MkdirAll(p.ToString(), mode)
}

// OpenFile implements os.OpenFile for this path.
func (p AbsoluteSystemPath) OpenFile(flags int, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(p.ToString(), flags, mode)
}

// Lstat implements os.Lstat for this path.
func (p AbsoluteSystemPath) Lstat() (os.FileInfo, error) {
	return os.Lstat(p.ToString())
}

// Readlink implements os.Readlink for this path.
func (p AbsoluteSystemPath) Readlink() (string, error) {
	return os.Readlink(p.ToString())
}

// Symlink implements os.Symlink(target, p).
func (p AbsoluteSystemPath) Symlink(target string) error {
	return os.Symlink(target, p.ToString())
}

// ReadFile reads the contents of the file at this path.
func (p AbsoluteSystemPath) ReadFile() ([]byte, error) {
	return ioutil.ReadFile(p.ToString())
}

// WriteFile writes contents to the file at this path.
func (p AbsoluteSystemPath) WriteFile(contents []byte, mode os.FileMode) error {
	return ioutil.WriteFile(p.ToString(), contents, mode)
}

// Remove removes the file or empty directory at this path.
func (p AbsoluteSystemPath) Remove() error {
	return os.Remove(p.ToString())
}

// Exists reports whether this path currently exists.
func (p AbsoluteSystemPath) Exists() bool {
	_, err := os.Lstat(p.ToString())
	return err == nil
}

// UntypedJoin appends plain string path segments to this
// AbsoluteSystemPath, for callers that don't have typed
// RelativeSystemPath segments on hand.
func (p AbsoluteSystemPath) UntypedJoin(additional ...string) AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Join(append([]string{p.ToString()}, additional...)...))
}

// Dir returns the directory portion of the path.
func (p AbsoluteSystemPath) Dir() AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Dir(p.ToString()))
}

// MkdirAllMode creates the directory and any missing parents with the
// given mode. A file already occupying the path is replaced, and an
// existing directory is chmod'd into compliance (MkdirAll alone is
// umask-subject and a no-op for an existing dir).
func (p AbsoluteSystemPath) MkdirAllMode(mode os.FileMode) error {
	info, err := p.Lstat()
	if err == nil && !info.IsDir() {
		if err := p.Remove(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(p.ToString(), mode.Perm()); err != nil {
		return err
	}
	return os.Chmod(p.ToString(), mode.Perm())
}

// Findup searches for fileName in p and each of its ancestors,
// returning the first match or the empty path when nothing carries it.
func (p AbsoluteSystemPath) Findup(fileName RelativeSystemPath) (AbsoluteSystemPath, error) {
	found, err := FindupFrom(fileName.ToString(), p.ToString())
	if err != nil {
		return "", err
	}
	return AbsoluteSystemPath(found), nil
}

// Ext returns the file name extension of the path.
func (p AbsoluteSystemPath) Ext() string {
	return filepath.Ext(p.ToString())
}

// Create creates or truncates the named file.
func (p AbsoluteSystemPath) Create() (*os.File, error) {
	return os.Create(p.ToString())
}
