package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterFirstRequestImmediate(t *testing.T) {
	t.Parallel()

	l := New(time.Second)
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example/1"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterEnforcesDelay(t *testing.T) {
	t.Parallel()

	l := New(100 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.example/2"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDomainsIndependent(t *testing.T) {
	t.Parallel()

	l := New(time.Second)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(time.Minute)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Wait(cancelCtx, "https://a.example/2")
	require.Error(t, err)
}

func TestLimiterZeroDelayNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.example/"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
