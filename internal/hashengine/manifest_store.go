package hashengine

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ManifestStore persists hash manifests to
// `<cache>/hashes/<hash>.json`.
type ManifestStore struct {
	Dir string
}

// Write computes h's digest, persists its manifest if not already
// present, and returns the digest.
func (s ManifestStore) Write(h *Hasher) (string, error) {
	digest, body, err := h.Digest()
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, digest+".json")
	if _, err := os.Stat(path); err == nil {
		return digest, nil // identical manifest already on disk
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating hashes directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", errors.Wrap(err, "writing hash manifest")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrap(err, "renaming hash manifest into place")
	}
	return digest, nil
}

// Read loads a previously written manifest by digest, for debugging
// and cache-inspection tooling.
func (s ManifestStore) Read(digest string) (json.RawMessage, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, digest+".json"))
	if err != nil {
		return nil, errors.Wrapf(err, "reading hash manifest %s", digest)
	}
	return json.RawMessage(b), nil
}

// HashStrings is a small helper for computing the workspace-graph
// cache key: an ordered digest over a set of
// named config blobs (workspace config, toolchain config, global task
// templates, each project config).
func HashStrings(named map[string]string) (string, error) {
	h := New()
	for _, c := range SortedMap(named) {
		h.Add(c.Name, c.Value)
	}
	digest, _, err := h.Digest()
	return digest, err
}
