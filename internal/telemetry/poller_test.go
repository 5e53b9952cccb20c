package telemetry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoller_SamplesImmediatelyThenOnInterval(t *testing.T) {
	var calls int32
	p := NewPoller(func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		return int(n), nil
	}, nil)

	p.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return p.Current() >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.Current() >= 3 }, time.Second, time.Millisecond)
	p.Stop()
	require.Equal(t, StateIdle, p.CurrentState())
}

func TestPoller_KeepHistoryAccumulatesAcrossStartStopCycles(t *testing.T) {
	var calls int32
	p := NewPoller(func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}, nil)
	p.KeepHistory()

	p.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.Current() >= 2 }, time.Second, time.Millisecond)
	p.Stop()
	first := len(p.History())
	require.GreaterOrEqual(t, first, 2)

	p.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(p.History()) > first }, time.Second, time.Millisecond)
	p.Stop()

	history := p.History()
	for i := 1; i < len(history); i++ {
		require.False(t, history[i].At.Before(history[i-1].At))
	}
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	p := NewPoller(func(ctx context.Context) (int, error) { return 1, nil }, nil)
	p.Start(context.Background(), 10*time.Millisecond)
	p.Stop()
	p.Stop()
	require.Equal(t, StateIdle, p.CurrentState())
}

func TestPoller_ErrorsDoNotStopPolling(t *testing.T) {
	var calls int32
	var lastErr error
	p := NewPoller(func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, errSentinel
		}
		return int(n), nil
	}, func(err error) { lastErr = err })

	p.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.Current() >= 2 }, time.Second, time.Millisecond)
	p.Stop()
	require.Error(t, lastErr)
}

var errSentinel = &sentinelError{}

type sentinelError struct{}

func (e *sentinelError) Error() string { return "sentinel" }
