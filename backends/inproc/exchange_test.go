package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/commflow/types"
)

func roundCount(e *Exchange) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rounds)
}

func TestRendezvous_TimedOutRoundIsReclaimed(t *testing.T) {
	ex := NewExchange(2)
	const ticket = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ex.rendezvous(ctx, ticket, 0, payload{{1}})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))

	// The timed-out rank released its slot, but the straggler's is still
	// outstanding, so the round survives for missingRanks.
	assert.Equal(t, 1, roundCount(ex))

	// The straggler finally arrives; with both contributions present the
	// round completes for it, and its release reclaims the entry.
	contribs, err := ex.rendezvous(context.Background(), ticket, 1, payload{{2}})
	require.NoError(t, err)
	require.Len(t, contribs, 2)
	assert.Equal(t, payload{{1}}, contribs[0])

	assert.Equal(t, 0, roundCount(ex))
}
