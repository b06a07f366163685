package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestQueue_FailureBlocksUntilCooldown(t *testing.T) {
	clk := clock.NewMock()
	q := NewWithClock(1000, 10, time.Second, clk)

	ok, _ := q.Allow()
	require.True(t, ok)

	d := q.Failure(3 * time.Second)
	require.Equal(t, 3*time.Second, d)

	ok, left := q.Allow()
	require.False(t, ok)
	require.Equal(t, 3*time.Second, left)

	// a shorter pause does not shorten the current one
	require.Equal(t, 3*time.Second, q.Failure(time.Second))

	clk.Add(3 * time.Second)
	ok, _ = q.Allow()
	require.True(t, ok)
}

func TestQueue_FallbackAndSuccess(t *testing.T) {
	clk := clock.NewMock()
	q := NewWithClock(1000, 10, 2*time.Second, clk)

	require.Equal(t, 2*time.Second, q.Failure(0))
	q.Success()
	ok, _ := q.Allow()
	require.True(t, ok)
}

func TestQueue_WaitHonorsContext(t *testing.T) {
	clk := clock.NewMock()
	q := NewWithClock(1000, 10, time.Second, clk)
	q.Failure(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, q.Wait(ctx), context.Canceled)
}

func TestQueue_WaitReleasesAfterCooldown(t *testing.T) {
	clk := clock.NewMock()
	q := NewWithClock(1000, 10, time.Second, clk)
	q.Failure(time.Second)

	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()

	require.Eventually(t, func() bool {
		clk.Add(100 * time.Millisecond)
		select {
		case err := <-done:
			return err == nil
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_WaitOpen(t *testing.T) {
	q := New(1000, 10, time.Second)
	require.NoError(t, q.Wait(context.Background()))
}
