package actionsync

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequiredKeysSize(t *testing.T) {
	for n := 0; n <= 6; n++ {
		var others []string
		for i := 0; i < n; i++ {
			others = append(others, fmt.Sprintf("o%d", i))
		}
		keys := requiredKeys("self", others)
		if len(keys) != 2*n+n*(n-1) {
			t.Fatalf("n=%d: expected %d keys, got %d", n, 2*n+n*(n-1), len(keys))
		}
	}
}

func TestRequiredKeysContents(t *testing.T) {
	keys := requiredKeys("A", []string{"B", "C"})
	expected := keySet{
		{"A", "B"}: {}, {"B", "A"}: {},
		{"A", "C"}: {}, {"C", "A"}: {},
		{"B", "C"}: {}, {"C", "B"}: {},
	}
	require.Equal(t, expected, keys)
}

func TestRequiredKeysIgnoresSelfAndDuplicates(t *testing.T) {
	keys := requiredKeys("A", []string{"B", "A", "B", ""})
	require.Len(t, keys, 2)
	require.Contains(t, keys, pairKey{"A", "B"})
	require.Contains(t, keys, pairKey{"B", "A"})
}

func TestAckKeys(t *testing.T) {
	keys := ackKeys("A", []string{"B", "C", "C"})
	require.Equal(t, keySet{{"A", "B"}: {}, {"A", "C"}: {}}, keys)
}

func TestPairKeyString(t *testing.T) {
	require.Equal(t, "A_B", pairKey{"A", "B"}.String())
	// equal strings, different keys
	require.NotEqual(t, pairKey{"a_b", "c"}, pairKey{"a", "b_c"})
}

func TestCompleteEmptySet(t *testing.T) {
	if !complete(nil, requiredKeys("A", nil), 0, time.Second) {
		t.Fatalf("an empty key set must be complete")
	}
}

func TestCompleteStaleness(t *testing.T) {
	now := int64(10_000)
	required := ackKeys("A", []string{"B"})

	fresh := map[pairKey]int64{{"A", "B"}: now - 100}
	require.True(t, complete(fresh, required, now, 200*time.Millisecond))

	stale := map[pairKey]int64{{"A", "B"}: now - 300}
	require.False(t, complete(stale, required, now, 200*time.Millisecond))
	require.Equal(t, []pairKey{{"A", "B"}}, missingKeys(stale, required, now, 200*time.Millisecond))

	require.False(t, complete(map[pairKey]int64{}, required, now, 200*time.Millisecond))
}
