// Package archiver packs a task's declared outputs plus a stdio
// manifest into one content-addressed tar+zstd unit, and restores it
// back onto disk. It builds on internal/cacheitem, whose
// Create/AddFile/Restore give stable file ordering, zeroed mtimes,
// and safe symlink/directory restoration, so archiving the same
// (hash, outputs) twice produces byte-identical archives;
// cacheitem.AddBytes covers the stdio manifest, which has no on-disk
// source file.
package archiver

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/cacheitem"
	"github.com/mason-build/mason/internal/turbopath"
)

// manifestName is the archive-internal path for the stdio capture.
const manifestName = "stdio.json"

// Stdio is the `{exit_code, stdout, stderr}` manifest packed alongside
// declared outputs.
type Stdio struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Archive writes a new archive at path containing every path in
// outputs (workspace-anchored, already resolved from the declared
// output files/globs and de-duplicated by the caller) plus the stdio
// manifest. Outputs are sorted before writing so that archiving the
// same (hash, outputs) twice produces byte-identical archives.
func Archive(path turbopath.AbsoluteSystemPath, anchor turbopath.AbsoluteSystemPath, outputs []turbopath.AnchoredSystemPath, stdio Stdio) error {
	// Build at a temp sibling (same suffix, so the codec choice holds)
	// and rename into place, so an archive that exists at its final
	// path is always complete — a crashed writer leaves only the tmp.
	tmp := turbopath.AbsoluteSystemPath(path.ToString() + ".tmp" + path.Ext())
	ci, err := cacheitem.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating archive")
	}

	sorted := dedupSortPaths(outputs)
	for _, out := range sorted {
		if err := ci.AddFile(anchor, out); err != nil {
			_ = ci.Close()
			return errors.Wrapf(err, "archiving %s", out)
		}
	}

	body, err := json.Marshal(stdio)
	if err != nil {
		_ = ci.Close()
		return errors.Wrap(err, "encoding stdio manifest")
	}
	if err := ci.AddBytes(manifestName, body); err != nil {
		_ = ci.Close()
		return errors.Wrap(err, "archiving stdio manifest")
	}

	if err := ci.Close(); err != nil {
		return errors.Wrap(err, "closing archive")
	}
	return errors.Wrap(os.Rename(tmp.ToString(), path.ToString()), "publishing archive")
}

// Hydrate unpacks path's archive into anchor (overwriting files at the
// same paths, leaving extra project files untouched),
// and returns the stdio manifest and the set of declared output paths
// restored (the manifest entry itself is excluded and removed from
// disk — it is metadata about the run, not a declared output).
func Hydrate(path turbopath.AbsoluteSystemPath, anchor turbopath.AbsoluteSystemPath) (Stdio, []turbopath.AnchoredSystemPath, error) {
	ci, err := cacheitem.Open(path)
	if err != nil {
		return Stdio{}, nil, errors.Wrap(err, "opening archive")
	}
	defer ci.Close()

	restored, err := ci.Restore(anchor)
	if err != nil {
		return Stdio{}, nil, errors.Wrap(err, "restoring archive")
	}

	var stdio Stdio
	outputs := make([]turbopath.AnchoredSystemPath, 0, len(restored))
	for _, p := range restored {
		if p.ToUnixPath().ToString() == manifestName {
			manifestPath := p.RestoreAnchor(anchor)
			body, readErr := manifestPath.ReadFile()
			if readErr == nil {
				_ = json.Unmarshal(body, &stdio)
			}
			_ = manifestPath.Remove()
			continue
		}
		outputs = append(outputs, p)
	}
	return stdio, outputs, nil
}

func dedupSortPaths(in []turbopath.AnchoredSystemPath) []turbopath.AnchoredSystemPath {
	seen := make(map[string]bool, len(in))
	out := make([]turbopath.AnchoredSystemPath, 0, len(in))
	for _, p := range in {
		key := p.ToUnixPath().ToString()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ToUnixPath().ToString() < out[j].ToUnixPath().ToString()
	})
	return out
}
