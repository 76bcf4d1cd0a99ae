package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAllowN_ArgumentValidation(t *testing.T) {
	ctx := context.Background()
	lim, _ := newTestLimiter(t, tokenBucketConfig(5, 1))

	for _, key := range []string{"", "  "} {
		_, err := lim.Allow(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidArgument, "key %q", key)

		_, err = lim.State(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		err = lim.Reset(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	for _, permits := range []int{0, -3} {
		_, err := lim.AllowN(ctx, "k", permits)
		assert.ErrorIs(t, err, ErrInvalidArgument, "permits %d", permits)
	}
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	lim, _ := newTestLimiter(t, tokenBucketConfig(3, 0))

	// Saturate k1.
	for i := 0; i < 3; i++ {
		_, err := lim.Allow(ctx, "k1")
		require.NoError(t, err)
	}
	dec, err := lim.Allow(ctx, "k1")
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	// k2 still has its full budget.
	for i := 0; i < 3; i++ {
		dec, err := lim.Allow(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "k2 request %d", i)
	}
}

func TestAllow_CancelledBeforeAcquire(t *testing.T) {
	lim, _ := newTestLimiter(t, tokenBucketConfig(5, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lim.Allow(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	// The cancelled call must have left no state behind.
	st, stateErr := lim.State(context.Background(), "k")
	require.NoError(t, stateErr)
	assert.Nil(t, st, "a cancelled admit must not write state")
}

func TestAllow_FailClosedByDefault(t *testing.T) {
	ctx := context.Background()
	lim, err := New(tokenBucketConfig(5, 1), failingStore{})
	require.NoError(t, err)
	defer lim.Close()

	_, err = lim.Allow(ctx, "k")
	assert.Error(t, err, "storage failure must surface when fail-closed")
}

func TestAllow_FailOpenAdmits(t *testing.T) {
	ctx := context.Background()
	lim, err := New(tokenBucketConfig(5, 1), failingStore{},
		WithFailOpen(true),
		WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer lim.Close()

	dec, err := lim.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "fail-open admits on storage failure")
}

func TestSharedStoreSharesBudget(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestStore(t)

	// Two limiter instances with the same policy over one store behave as a
	// single budget, the way two replicas sharing Redis would.
	limA, err := New(tokenBucketConfig(10, 0), store, WithClock(clock))
	require.NoError(t, err)
	defer limA.Close()
	limB, err := New(tokenBucketConfig(10, 0), store, WithClock(clock))
	require.NoError(t, err)
	defer limB.Close()

	allowed := 0
	for i := 0; i < 50; i++ {
		lim := limA
		if i%2 == 1 {
			lim = limB
		}
		dec, err := lim.Allow(ctx, "shared")
		require.NoError(t, err)
		if dec.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed, "both instances draw from the same bucket")
}

func TestClose_ReleasesSerializerTable(t *testing.T) {
	ctx := context.Background()
	lim, _ := newTestLimiter(t, tokenBucketConfig(5, 1))

	_, err := lim.Allow(ctx, "k")
	require.NoError(t, err)

	tb := lim.(*TokenBucketLimiter)
	require.NoError(t, lim.Close())
	assert.Zero(t, tb.keys.len())
}

func TestStateIsReadOnly(t *testing.T) {
	ctx := context.Background()
	lim, clock := newTestLimiter(t, tokenBucketConfig(5, 100))

	_, err := lim.AllowN(ctx, "k", 2)
	require.NoError(t, err)

	// Repeated snapshots at a later instant must agree: State projects but
	// never persists, so the stored baseline cannot move.
	clock.Advance(10 * time.Millisecond)
	first, err := lim.State(ctx, "k")
	require.NoError(t, err)
	second, err := lim.State(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, first.Remaining, second.Remaining)
}
