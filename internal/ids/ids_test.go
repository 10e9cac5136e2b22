package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProducesUniqueSortedIDs(t *testing.T) {
	gen := NewULID()
	seen := make(map[string]bool)
	var prev string
	for i := 0; i < 1000; i++ {
		id := gen.New()
		require.Len(t, id, 26)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		if prev != "" {
			require.Less(t, prev, id, "monotonic entropy must keep ids sorted")
		}
		prev = id
	}
}

func TestPackageLevelNew(t *testing.T) {
	a, b := New(), New()
	require.NotEqual(t, a, b)
}
