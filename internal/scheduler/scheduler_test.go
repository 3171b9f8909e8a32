package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	s := New(Options{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) == 2 {
				return errors.New("failures do not stop the loop")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestImmediateTickRunsBeforeFirstInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan time.Time, 1)
	s := New(Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())
	go func() {
		_ = s.Run(ctx, func(_ context.Context, at time.Time) error {
			select {
			case first <- at:
			default:
			}
			return nil
		})
	}()

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("immediate tick did not run")
	}
}

func TestNextTickAlignment(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC)

	aligned := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	assert.Equal(t, time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC), aligned.nextTick(now))

	free := New(Options{Interval: time.Minute}, zerolog.Nop())
	assert.Equal(t, now.Add(time.Minute), free.nextTick(now))
}

func TestNewRejectsZeroInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}

func TestSweeperRunsJobUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	sw, err := NewSweeper(time.Second, func() { runs.Add(1) }, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewSweeperRejectsZeroInterval(t *testing.T) {
	_, err := NewSweeper(0, func() {}, zerolog.Nop())
	require.Error(t, err)
}
