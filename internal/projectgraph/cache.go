package projectgraph

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mason-build/mason/internal/hashengine"
	"github.com/mason-build/mason/internal/ident"
)

// snapshot is the persisted workspace-graph state written to
// `states/projectsBuildData.json` under the cache directory.
type snapshot struct {
	Projects map[ident.ID]projectEntry `json:"projects"`
	LastHash string                    `json:"lastHash"`
}

type projectEntry struct {
	NodeIndex int    `json:"nodeIndex"`
	Source    string `json:"source"`
}

// Cache persists/loads a Graph keyed by a content hash of the
// workspace's relevant configs.
type Cache struct {
	Dir string // e.g. <cache>/states
}

func (c Cache) path() string {
	return filepath.Join(c.Dir, "projectsBuildData.json")
}

// Load reports whether the stored snapshot's hash matches
// currentHash; false on any miss (no file, stale hash).
func (c Cache) Load(currentHash string) (bool, error) {
	b, err := os.ReadFile(c.path())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "reading workspace graph cache")
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return false, errors.Wrap(err, "decoding workspace graph cache")
	}
	if snap.LastHash != currentHash {
		return false, nil
	}
	return true, nil
}

// Store writes the graph's snapshot atomically.
func (c Cache) Store(currentHash string, g *Graph) error {
	snap := snapshot{Projects: make(map[ident.ID]projectEntry), LastHash: currentHash}
	for i, p := range g.Sorted() {
		snap.Projects[p.ID] = projectEntry{NodeIndex: i, Source: p.Source}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding workspace graph cache")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errors.Wrap(err, "creating cache states directory")
	}
	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "writing workspace graph cache")
	}
	return os.Rename(tmp, c.path())
}

// ConfigHash computes the cache key from named config blobs
// (workspace config, toolchain config, global task template files,
// each project config), delegating the actual digest to the shared
// Hash Engine (component H) rather than re-implementing hashing here.
func ConfigHash(named map[string]string) (string, error) {
	return hashengine.HashStrings(named)
}
