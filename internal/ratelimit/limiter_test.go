package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berios/subtitle-backend/internal/kv"
)

func TestLimiter_AdmitsUpToMaxThenRejects(t *testing.T) {
	ctx := context.Background()
	limiter := New(kv.NewMemoryClient(), 3, time.Minute)

	var admitted []bool
	for range 4 {
		ok, err := limiter.Allow(ctx, "ip1")
		require.NoError(t, err)
		admitted = append(admitted, ok)
	}

	assert.Equal(t, []bool{true, true, true, false}, admitted)
}

func TestLimiter_IdentifiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := New(kv.NewMemoryClient(), 1, time.Minute)

	ok, err := limiter.Allow(ctx, "ip1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "ip1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "ip2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiter_WindowExpiryResetsCounter(t *testing.T) {
	ctx := context.Background()
	limiter := New(kv.NewMemoryClient(), 1, 50*time.Millisecond)

	ok, err := limiter.Allow(ctx, "ip1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "ip1")
	require.NoError(t, err)
	require.False(t, ok)

	require.Eventually(t, func() bool {
		ok, err := limiter.Allow(ctx, "ip1")
		return err == nil && ok
	}, time.Second, 10*time.Millisecond)
}

func TestLimiter_RejectedRequestsDoNotGrowCounter(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryClient()
	limiter := New(cache, 2, time.Minute)

	for i := range 10 {
		_, err := limiter.Allow(ctx, "ip1")
		require.NoError(t, err, "call %d", i)
	}

	raw, found, err := cache.Get(ctx, keyPrefix+"ip1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", raw)
}
