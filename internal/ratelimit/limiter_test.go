package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleSpacesSequentialCalls(t *testing.T) {
	l := New(100 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Throttle(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 290*time.Millisecond)
}

func TestThrottleSpacesConcurrentCallers(t *testing.T) {
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Throttle(ctx))
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}

func TestThrottleHonoursContext(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Throttle(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Throttle(ctx))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
