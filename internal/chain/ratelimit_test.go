package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/courier/internal/chain"
)

func TestRateLimiter_BurstPerEndpoint(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("https://rpc.one"), "request %d in burst", i)
	}
	assert.False(t, rl.Allow("https://rpc.one"))

	// A different endpoint has its own bucket.
	assert.True(t, rl.Allow("https://rpc.two"))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("x"))
	}
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0.001, 1)
	require.NoError(t, rl.Wait(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "slow")
	require.Error(t, err)
	assert.True(t, chain.IsRetryable(err))
}

func TestRateLimiter_NilIsNoop(t *testing.T) {
	t.Parallel()
	var rl *chain.RateLimiter
	assert.NoError(t, rl.Wait(context.Background(), "x"))
}
