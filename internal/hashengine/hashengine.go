// Package hashengine serializes an ordered collection of named
// contributions as canonical JSON and digests it to a lowercase hex
// 256-bit hash, with manifest persistence. encoding/json sorts map
// keys at every level, which gives the canonical form directly.
package hashengine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// SchemaVersion is the hasher schema tag; bump
// to invalidate every prior hash.
const SchemaVersion = 2

// Contribution is one named, ordered entry in a Hasher.
type Contribution struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Hasher accumulates ordered contributions and renders a canonical
// manifest + digest.
type Hasher struct {
	contributions []Contribution
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Add appends a named contribution. Call order is significant: it is
// part of the canonical manifest.
func (h *Hasher) Add(name string, value interface{}) *Hasher {
	h.contributions = append(h.contributions, Contribution{Name: name, Value: value})
	return h
}

// manifest is the canonical JSON document written to
// <cache>/hashes/<hash>.json.
type manifest struct {
	Version       int            `json:"version"`
	Contributions []Contribution `json:"contributions"`
}

// Manifest renders the canonical JSON bytes for the accumulated
// contributions. encoding/json sorts map[string]T keys at every
// nesting level by construction, satisfying "canonical JSON ...
// sorted keys at every object" without extra work.
func (h *Hasher) Manifest() ([]byte, error) {
	m := manifest{Version: SchemaVersion, Contributions: h.contributions}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling hash manifest")
	}
	return b, nil
}

// Digest renders the manifest and returns its lowercase hex SHA-256
// digest.
func (h *Hasher) Digest() (string, []byte, error) {
	b, err := h.Manifest()
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// SortedStrings is a convenience for contributions that need a
// deterministically ordered string slice (e.g. sorted env keys,
// sorted input globs) before being added.
func SortedStrings(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

// SortedMap renders a string map as an ordered slice of {key, value}
// pairs — used where a contribution needs to assert its own key order
// independent of json's alphabetic map-key sort (e.g. to include keys
// that happen to collide after normalization). In the common case a
// plain map[string]string contribution is sufficient, since
// encoding/json already sorts its keys.
func SortedMap(m map[string]string) []Contribution {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Contribution, 0, len(keys))
	for _, k := range keys {
		out = append(out, Contribution{Name: k, Value: m[k]})
	}
	return out
}
