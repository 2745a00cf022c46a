// Package poller drives repeated order-status checks against a progressive
// delay schedule until the order is confirmed paid, the attempt budget runs
// out, or the owning session cancels.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/config"
	"github.com/yourorg/payment-reconciler/internal/metrics"
	"github.com/yourorg/payment-reconciler/internal/oracle"
)

// Outcome is the terminal result of one polling run.
type Outcome int

const (
	// Confirmed: the oracle reported paid; polling stopped immediately.
	Confirmed Outcome = iota
	// Exhausted: the attempt budget was spent without confirmation. A
	// terminal negative, not an error; the caller decides what it means.
	Exhausted
	// Cancelled: the owning session was torn down mid-poll.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Exhausted:
		return "exhausted"
	default:
		return "cancelled"
	}
}

// Result reports the outcome and how many oracle calls were issued.
type Result struct {
	Outcome  Outcome
	Attempts int
}

// Poller runs the schedule against one oracle. It performs no side effects
// besides the oracle calls and knows nothing about gateway state.
type Poller struct {
	oracle oracle.StatusOracle
	sched  config.ScheduleConfig
	logger *zap.Logger
}

// New creates a Poller. A zero-valued schedule falls back to the defaults.
func New(o oracle.StatusOracle, sched config.ScheduleConfig, logger *zap.Logger) *Poller {
	if o == nil {
		panic("status oracle cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sched.MaxAttempts <= 0 {
		sched = config.Default().Schedule
	}
	return &Poller{oracle: o, sched: sched, logger: logger}
}

// delayAfter returns the pause following the given 1-based attempt number.
func (p *Poller) delayAfter(attempt int) time.Duration {
	switch {
	case attempt <= p.sched.QuickAttempts:
		return p.sched.QuickInterval()
	case attempt <= p.sched.QuickAttempts+p.sched.MediumAttempts:
		return p.sched.MediumInterval()
	default:
		return p.sched.SlowInterval()
	}
}

// Run polls until confirmation, exhaustion, or cancellation. Attempts are
// strictly sequential: attempt n+1 never starts before attempt n's response
// is observed. A response that resolves after ctx is cancelled is discarded
// without affecting the outcome.
func (p *Poller) Run(ctx context.Context, orderID string) Result {
	for attempt := 1; attempt <= p.sched.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled, Attempts: attempt - 1}
		}

		metrics.OracleAttemptsTotal.Inc()
		paid, err := p.oracle.Check(ctx, orderID)
		if ctx.Err() != nil {
			// The session is gone; the late answer must not count.
			return Result{Outcome: Cancelled, Attempts: attempt}
		}
		if err != nil {
			// Transient: consumes this attempt only, never fails the run.
			p.logger.Warn("status check failed, attempt consumed",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if paid {
			return Result{Outcome: Confirmed, Attempts: attempt}
		}

		if attempt == p.sched.MaxAttempts {
			break
		}
		timer := time.NewTimer(p.delayAfter(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Outcome: Cancelled, Attempts: attempt}
		case <-timer.C:
		}
	}
	return Result{Outcome: Exhausted, Attempts: p.sched.MaxAttempts}
}
