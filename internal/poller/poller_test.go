package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-reconciler/internal/config"
)

// oracleFunc adapts a function to the StatusOracle contract.
type oracleFunc func(ctx context.Context, orderID string) (bool, error)

func (f oracleFunc) Check(ctx context.Context, orderID string) (bool, error) { return f(ctx, orderID) }

// fastSchedule keeps test runs quick while preserving the tier structure.
func fastSchedule(maxAttempts int) config.ScheduleConfig {
	return config.ScheduleConfig{
		QuickAttempts:    2,
		QuickIntervalMs:  1,
		MediumAttempts:   2,
		MediumIntervalMs: 2,
		SlowIntervalMs:   3,
		MaxAttempts:      maxAttempts,
	}
}

func TestNew_PanicsOnNilOracle(t *testing.T) {
	assert.Panics(t, func() { New(nil, fastSchedule(5), nil) })
}

func TestRun_StopsImmediatelyOnPaid(t *testing.T) {
	var calls int32
	o := oracleFunc(func(ctx context.Context, orderID string) (bool, error) {
		n := atomic.AddInt32(&calls, 1)
		return n == 10, nil
	})
	p := New(o, fastSchedule(18), nil)

	res := p.Run(context.Background(), "ord-1")

	assert.Equal(t, Confirmed, res.Outcome)
	assert.Equal(t, 10, res.Attempts)
	assert.Equal(t, int32(10), atomic.LoadInt32(&calls), "no request may follow the first paid result")
}

func TestRun_BoundedAttempts(t *testing.T) {
	var calls int32
	o := oracleFunc(func(ctx context.Context, orderID string) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	})
	p := New(o, fastSchedule(18), nil)

	res := p.Run(context.Background(), "ord-1")

	assert.Equal(t, Exhausted, res.Outcome)
	assert.Equal(t, 18, res.Attempts)
	assert.Equal(t, int32(18), atomic.LoadInt32(&calls), "exactly the configured budget, no more, no fewer")
}

func TestRun_TransientErrorsConsumeAttempts(t *testing.T) {
	var calls int32
	o := oracleFunc(func(ctx context.Context, orderID string) (bool, error) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			return false, assert.AnError
		}
		return n == 4, nil
	})
	p := New(o, fastSchedule(18), nil)

	res := p.Run(context.Background(), "ord-1")

	assert.Equal(t, Confirmed, res.Outcome)
	assert.Equal(t, 4, res.Attempts, "errors consume attempts but never fail the run")
}

func TestRun_CancellationStopsPolling(t *testing.T) {
	sched := config.ScheduleConfig{
		QuickAttempts:   18,
		QuickIntervalMs: 50,
		SlowIntervalMs:  50,
		MaxAttempts:     18,
	}
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	o := oracleFunc(func(ctx context.Context, orderID string) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	})
	p := New(o, sched, nil)

	done := make(chan Result, 1)
	go func() { done <- p.Run(ctx, "ord-1") }()

	// Let the first attempt land, then tear the session down mid-delay.
	time.Sleep(20 * time.Millisecond)
	cancel()

	var res Result
	select {
	case res = <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	require.Equal(t, Cancelled, res.Outcome)

	issued := atomic.LoadInt32(&calls)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, issued, atomic.LoadInt32(&calls), "no requests may be issued after cancellation")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	o := oracleFunc(func(ctx context.Context, orderID string) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	})
	p := New(o, fastSchedule(5), nil)

	res := p.Run(ctx, "ord-1")

	assert.Equal(t, Cancelled, res.Outcome)
	assert.Zero(t, res.Attempts)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDelayAfter_TierBoundaries(t *testing.T) {
	sched := config.ScheduleConfig{
		QuickAttempts:    6,
		QuickIntervalMs:  4_000,
		MediumAttempts:   5,
		MediumIntervalMs: 6_000,
		SlowIntervalMs:   10_000,
		MaxAttempts:      18,
	}
	p := New(oracleFunc(func(context.Context, string) (bool, error) { return false, nil }), sched, nil)

	assert.Equal(t, 4*time.Second, p.delayAfter(1))
	assert.Equal(t, 4*time.Second, p.delayAfter(6))
	assert.Equal(t, 6*time.Second, p.delayAfter(7))
	assert.Equal(t, 6*time.Second, p.delayAfter(11))
	assert.Equal(t, 10*time.Second, p.delayAfter(12))
	assert.Equal(t, 10*time.Second, p.delayAfter(17))
}
