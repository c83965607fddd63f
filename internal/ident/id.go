// Package ident implements the validated identifier, path, and glob
// matching primitives shared by every other mason package: project and
// task ids, workspace-relative paths, and tag/file-group glob matchers.
package ident

import (
	"regexp"

	"github.com/pkg/errors"
)

// ErrInvalidIdentifier is returned when a candidate identifier does not
// match the grammar `[A-Za-z][A-Za-z0-9_-]*`.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var idPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ID is a validated, non-empty identifier used for project ids, task
// ids, tags, and file-group names. Comparison is exact; there is no
// normalization.
type ID string

// ParseID validates s against the identifier grammar and returns an ID.
func ParseID(s string) (ID, error) {
	if !idPattern.MatchString(s) {
		return "", errors.Wrapf(ErrInvalidIdentifier, "%q", s)
	}
	return ID(s), nil
}

// MustID panics if s is not a valid identifier. Intended for literals
// known to be valid at compile time (constants, test fixtures).
func MustID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String implements fmt.Stringer.
func (i ID) String() string {
	return string(i)
}

// Hashcode satisfies util.Hashable so an ID can key a dag.Set or a
// plain map without an extra conversion at every call site.
func (i ID) Hashcode() interface{} {
	return string(i)
}

// Valid reports whether i matches the identifier grammar. Useful when
// an ID has been constructed via a zero value or decoded without going
// through ParseID (e.g. JSON unmarshaling of a config struct).
func (i ID) Valid() bool {
	return idPattern.MatchString(string(i))
}

// Set is a small set of IDs. Iteration order is unspecified; callers
// that need deterministic output must sort Set.UnsafeList() themselves.
type Set map[ID]struct{}

// NewSet builds a Set from a slice of IDs.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s Set) Add(id ID) { s[id] = struct{}{} }

// Has reports whether id is a member.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// UnsafeList returns the set's members in unspecified order.
func (s Set) UnsafeList() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Intersects reports whether s and other share at least one member.
func (s Set) Intersects(other Set) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for id := range small {
		if big.Has(id) {
			return true
		}
	}
	return false
}
