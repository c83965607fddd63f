package hashengine

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDigestStableAndDeterministic(t *testing.T) {
	build := func() (string, []byte, error) {
		h := New().
			Add("task.identity", map[string]interface{}{"project": "app", "task": "build"}).
			Add("task.env", SortedMap(map[string]string{"B": "2", "A": "1"}))
		return h.Digest()
	}

	hash1, manifest1, err := build()
	assert.NilError(t, err)
	hash2, manifest2, err := build()
	assert.NilError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.DeepEqual(t, manifest1, manifest2)
	assert.Equal(t, len(hash1), 64)
}

func TestDigestChangesWithContributionValue(t *testing.T) {
	h1 := New().Add("task.env", SortedMap(map[string]string{"A": "1"}))
	h2 := New().Add("task.env", SortedMap(map[string]string{"A": "2"}))

	hash1, _, err := h1.Digest()
	assert.NilError(t, err)
	hash2, _, err := h2.Digest()
	assert.NilError(t, err)
	assert.Assert(t, hash1 != hash2)
}

func TestDigestChangesWithContributionOrder(t *testing.T) {
	h1 := New().Add("a", 1).Add("b", 2)
	h2 := New().Add("b", 2).Add("a", 1)

	hash1, _, err := h1.Digest()
	assert.NilError(t, err)
	hash2, _, err := h2.Digest()
	assert.NilError(t, err)
	assert.Assert(t, hash1 != hash2, "contribution order is part of the canonical manifest")
}

func TestSortedStringsDoesNotMutateInput(t *testing.T) {
	in := []string{"c", "a", "b"}
	out := SortedStrings(in)
	assert.DeepEqual(t, out, []string{"a", "b", "c"})
	assert.DeepEqual(t, in, []string{"c", "a", "b"})
}

func TestSortedMapOrdersByKey(t *testing.T) {
	out := SortedMap(map[string]string{"z": "1", "a": "2"})
	assert.Equal(t, len(out), 2)
	assert.Equal(t, out[0].Name, "a")
	assert.Equal(t, out[1].Name, "z")
}
