// Package cacheengine implements the Cache Engine: the
// on-disk `.mason/cache/` layout, mode control, and staleness cleanup
// that the Output Archiver/Hydrater (internal/archiver) and Task
// Runner (internal/runner) consult.
//
// The on-disk layout is three-tier: `states/<project>/<task>/` for
// per-task run state and stdio, `hashes/<hash>.json` for hash
// manifests, and `outputs/<hash>.tar.zst` for archived outputs.
// Concurrent writers of the same archive in different processes
// serialize on an advisory lock (github.com/nightlyone/lockfile); the
// loser of the race finds the winner's archive and treats it as a
// hit. Writers within one process serialize on the runner's keyed
// mutex, since the advisory lock is per-process.
package cacheengine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/model"
	"github.com/mason-build/mason/internal/turbopath"
)

// Mode controls which cache operations are permitted.
type Mode int

const (
	ReadWrite Mode = iota
	Off
	Read
	Write
)

// ModeEnvVar is the environment variable that forces a cache mode.
const ModeEnvVar = "MASON_CACHE"

// ModeFromString parses the MASON_CACHE values `off`, `read`, `write`,
// `read-write`. An unrecognized or empty value yields ReadWrite.
func ModeFromString(s string) Mode {
	switch s {
	case "off":
		return Off
	case "read":
		return Read
	case "write":
		return Write
	case "read-write":
		return ReadWrite
	default:
		return ReadWrite
	}
}

// ModeFromEnv reads MASON_CACHE from the process environment.
func ModeFromEnv() Mode {
	return ModeFromString(os.Getenv(ModeEnvVar))
}

// CanRead reports whether this mode permits cache reads.
func (m Mode) CanRead() bool { return m == ReadWrite || m == Read }

// CanWrite reports whether this mode permits cache writes.
func (m Mode) CanWrite() bool { return m == ReadWrite || m == Write }

// Engine roots the on-disk cache layout:
//
//	<dir>/states/<project>/<task>/lastRun.json   CacheState
//	<dir>/hashes/<hash>.json                     hash manifest
//	<dir>/outputs/<hash>.tar.zst                 archive
type Engine struct {
	Dir    turbopath.AbsoluteSystemPath
	Mode   Mode
	Logger hclog.Logger
}

// New roots an Engine at workspaceRoot/.mason/cache, creating the
// three subdirectories if absent.
func New(workspaceRoot turbopath.AbsoluteSystemPath, mode Mode) (*Engine, error) {
	dir := workspaceRoot.UntypedJoin(".mason", "cache")
	for _, sub := range []string{"states", "hashes", "outputs"} {
		if err := dir.UntypedJoin(sub).MkdirAll(0775); err != nil {
			return nil, errors.Wrapf(err, "creating cache dir %s", sub)
		}
	}
	return &Engine{Dir: dir, Mode: mode, Logger: hclog.NewNullLogger()}, nil
}

// StatePath returns the lastRun.json path for a project/task pair.
func (e *Engine) StatePath(project, task string) turbopath.AbsoluteSystemPath {
	return e.Dir.UntypedJoin("states", project, task, "lastRun.json")
}

// HashManifestPath returns `<cache>/hashes/<hash>.json`.
func (e *Engine) HashManifestPath(hash string) turbopath.AbsoluteSystemPath {
	return e.Dir.UntypedJoin("hashes", hash+".json")
}

// ArchivePath returns `<cache>/outputs/<hash>.tar.zst`.
func (e *Engine) ArchivePath(hash string) turbopath.AbsoluteSystemPath {
	return e.Dir.UntypedJoin("outputs", hash+".tar.zst")
}

// ReadState loads the persisted CacheState for project/task, if any.
func (e *Engine) ReadState(project, task string) (*model.CacheState, bool) {
	path := e.StatePath(project, task)
	if !path.Exists() {
		return nil, false
	}
	body, err := path.ReadFile()
	if err != nil {
		return nil, false
	}
	var s model.CacheState
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// WriteState persists the given CacheState, always (states are kept
// even when the run wasn't cacheable, and are retained across
// staleness cleanup).
func (e *Engine) WriteState(project, task string, s model.CacheState) error {
	path := e.StatePath(project, task)
	if err := path.Dir().MkdirAll(0775); err != nil {
		return errors.Wrap(err, "creating state dir")
	}
	body, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding cache state")
	}
	return atomicWrite(path, body)
}

// WriteHashManifest persists the raw hash manifest bytes (produced by
// internal/hashengine) for hash, if the cache mode permits writes.
func (e *Engine) WriteHashManifest(hash string, manifest []byte) error {
	if !e.Mode.CanWrite() {
		return nil
	}
	return atomicWrite(e.HashManifestPath(hash), manifest)
}

// HasArchive reports whether a local archive exists for hash and
// reads are permitted by the cache mode.
func (e *Engine) HasArchive(hash string) bool {
	return e.Mode.CanRead() && e.ArchivePath(hash).Exists()
}

// AcquireArchiveLock takes the advisory file lock guarding concurrent
// writes of the archive for hash. Call
// Release when done; if the lock is already held, err wraps
// lockfile.ErrBusy/ErrLocked (the caller should re-check HasArchive
// and treat the archive as a hit instead of writing again).
func (e *Engine) AcquireArchiveLock(hash string) (lockfile.Lockfile, error) {
	lockPath := e.ArchivePath(hash).ToString() + ".lock"
	lock, err := lockfile.New(lockPath)
	if err != nil {
		return "", errors.Wrapf(err, "constructing lock for %s", hash)
	}
	if err := lock.TryLock(); err != nil {
		return lock, err
	}
	return lock, nil
}

// atomicWrite writes data to a temp file beside path and renames it
// into place, the usual tmp-write-then-rename
// pattern (internal/projectgraph/cache.go's Store).
func atomicWrite(path turbopath.AbsoluteSystemPath, data []byte) error {
	dir := filepath.Dir(path.ToString())
	tmp, err := os.CreateTemp(dir, ".cacheengine-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpPath, path.ToString()); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "renaming into place")
	}
	return nil
}

// CleanStale removes hash manifests and archives older than
// lifetime, leaving state files untouched. When dryRun is true, no files
// are removed but the counts reflect what would be.
func (e *Engine) CleanStale(lifetime time.Duration, dryRun bool) (filesDeleted int, bytesSaved int64, err error) {
	defer func() {
		e.Logger.Debug("cleaned stale cache", "deleted", filesDeleted, "bytes", bytesSaved, "dryRun", dryRun)
	}()
	cutoff := time.Now().Add(-lifetime)
	for _, sub := range []string{"hashes", "outputs"} {
		root := e.Dir.UntypedJoin(sub).ToString()
		entries, readErr := os.ReadDir(root)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return filesDeleted, bytesSaved, errors.Wrapf(readErr, "reading %s", root)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, statErr := entry.Info()
			if statErr != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			filesDeleted++
			bytesSaved += info.Size()
			if dryRun {
				continue
			}
			full := filepath.Join(root, entry.Name())
			if rmErr := os.Remove(full); rmErr != nil && !os.IsNotExist(rmErr) {
				return filesDeleted, bytesSaved, errors.Wrapf(rmErr, "removing %s", full)
			}
			_ = os.Remove(full + ".lock")
		}
	}
	return filesDeleted, bytesSaved, nil
}
