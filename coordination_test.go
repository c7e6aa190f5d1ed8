package actionsync

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorClaim(t *testing.T) {
	c := newCoordinator(testLogger())

	require.NoError(t, c.claim("graph/g", waitKindConsensus))
	require.True(t, c.owned("graph/g"))

	err := c.claim("graph/g", waitKindConsensus)
	if errors.Cause(err) != ErrDuplicateWait {
		t.Fatalf("expected ErrDuplicateWait, got %v", err)
	}

	// other tokens are independent
	require.NoError(t, c.claim("handshake/g", waitKindHandshake))

	c.release("graph/g")
	require.False(t, c.owned("graph/g"))
	require.NoError(t, c.claim("graph/g", waitKindConsensus))

	// releasing an unowned token is a no-op
	c.release("nope")
}
