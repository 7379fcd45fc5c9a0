package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(ids ...string) []NodeID {
	out := make([]NodeID, len(ids))
	for i, id := range ids {
		out[i] = NodeID(id)
	}
	return out
}

func TestPreferenceListDistinctAndBounded(t *testing.T) {
	r := New(nodes("a:1", "b:1", "c:1", "d:1"), 64)

	pl := r.PreferenceList("some-key", 3)
	require.Len(t, pl, 3)

	seen := map[NodeID]bool{}
	for _, n := range pl {
		assert.False(t, seen[n], "preference list must not repeat a node")
		seen[n] = true
	}
}

func TestPreferenceListCapsAtNodeCount(t *testing.T) {
	r := New(nodes("a:1", "b:1"), 16)
	pl := r.PreferenceList("x", 5)
	assert.Len(t, pl, 2)
}

func TestPreferenceListDeterministic(t *testing.T) {
	n := nodes("a:1", "b:1", "c:1")
	r1 := New(n, 100)
	r2 := New(n, 100)

	for _, key := range []string{"k1", "k2", "user-42", ""} {
		if key == "" {
			continue // keys are defined non-empty; skip
		}
		assert.Equal(t, r1.PreferenceList(key, 2), r2.PreferenceList(key, 2))
	}
}

func TestPreferenceListStableAcrossNodeOrder(t *testing.T) {
	r1 := New(nodes("a:1", "b:1", "c:1"), 128)
	r2 := New(nodes("c:1", "a:1", "b:1"), 128)

	for _, key := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, r1.PreferenceList(key, 3), r2.PreferenceList(key, 3))
	}
}

func TestPreferenceListHandlesDuplicateNodes(t *testing.T) {
	r := New(nodes("a:1", "a:1", "b:1"), 32)
	assert.Equal(t, 2, r.NodeCount())
}

func TestEmptyRing(t *testing.T) {
	r := New(nil, 8)
	assert.Nil(t, r.PreferenceList("k", 3))
	assert.Equal(t, 0, r.NodeCount())
}
