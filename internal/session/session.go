// Package session owns the user-visible reconciliation state machine. It is
// the orchestrator of the engine: the gateway client, poller, oracle, and
// fulfillment resolver are injected collaborators with no state of their
// own, and every phase transition happens here.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/fulfillment"
	"github.com/yourorg/payment-reconciler/internal/gateway"
	"github.com/yourorg/payment-reconciler/internal/metrics"
	"github.com/yourorg/payment-reconciler/internal/oracle"
	"github.com/yourorg/payment-reconciler/internal/policy"
	"github.com/yourorg/payment-reconciler/internal/poller"
	"github.com/yourorg/payment-reconciler/internal/reporting"
)

// Phase is the user-visible state of a session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseVerifying  Phase = "verifying"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// ErrorKind classifies the session's last error for the user-facing message.
type ErrorKind string

const (
	ErrorNone       ErrorKind = ""
	ErrorValidation ErrorKind = "validation" // correctable in the form, no session failure
	ErrorGateway    ErrorKind = "gateway"    // payment may not have gone through
	ErrorTimeout    ErrorKind = "timeout"    // payment went through, confirmation pending
)

const timeoutMessage = "Your payment went through but we couldn't confirm it yet. Please try again."

// ErrRetryNotAllowed is returned when the retry gate denies a manual retry.
var ErrRetryNotAllowed = fmt.Errorf("session: manual retry is not available")

// Deps are the collaborators a session is wired with at construction. Orders
// is nil on the guest path; when present, the manual-retry confirmation
// treats the full-order re-fetch as authoritative.
type Deps struct {
	Gateway  gateway.ConfirmationClient
	Oracle   oracle.StatusOracle
	Orders   fulfillment.OrderFetcher
	Poller   *poller.Poller
	Resolver fulfillment.Resolver
	Trigger  fulfillment.Trigger
	Gate     *policy.RetryGate
	Logger   *zap.Logger
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID                    string                `json:"id"`
	OrderID               string                `json:"order_id"`
	Phase                 Phase                 `json:"phase"`
	ErrorKind             ErrorKind             `json:"error_kind,omitempty"`
	ErrorMessage          string                `json:"error_message,omitempty"`
	GatewayAccepted       bool                  `json:"gateway_accepted"`
	VerificationExhausted bool                  `json:"verification_exhausted"`
	RetryAvailable        bool                  `json:"retry_available"`
	Attempts              int                   `json:"attempts"`
	Delivery              *fulfillment.Delivery `json:"delivery,omitempty"`
}

// Session is one reconciliation run for one order. Sessions are independent;
// nothing is shared between two sessions for different submissions.
type Session struct {
	id      string
	orderID string
	deps    Deps

	ctx    context.Context
	cancel context.CancelFunc

	mu                    sync.Mutex
	phase                 Phase
	errKind               ErrorKind
	errMsg                string
	gatewayAccepted       bool
	verificationExhausted bool
	inFlight              bool
	attempts              int
	delivery              *fulfillment.Delivery
	history               []reporting.LogEntry
}

// New creates an idle session for orderID.
func New(orderID string, deps Deps) *Session {
	if deps.Gateway == nil {
		panic("gateway client cannot be nil")
	}
	if deps.Oracle == nil {
		panic("status oracle cannot be nil")
	}
	if deps.Poller == nil {
		panic("poller cannot be nil")
	}
	if deps.Resolver == nil {
		panic("fulfillment resolver cannot be nil")
	}
	if deps.Trigger == nil {
		panic("download trigger cannot be nil")
	}
	if deps.Gate == nil {
		gate, err := policy.NewRetryGate("")
		if err != nil {
			panic("default retry rule failed to compile: " + err.Error())
		}
		deps.Gate = gate
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	metrics.SessionsStartedTotal.Inc()
	return &Session{
		id:      uuid.NewString(),
		orderID: orderID,
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		phase:   PhaseIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Teardown cancels any outstanding poll and marks the session dead. A
// network response or timer resolving after Teardown must not mutate state;
// apply enforces that.
func (s *Session) Teardown() {
	s.cancel()
}

// apply runs mutate under the lock unless the session has been torn down.
// It reports whether the mutation was applied.
func (s *Session) apply(mutate func()) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	mutate()
	return true
}

func (s *Session) record(stage, outcome string, attempt int, errKind ErrorKind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, reporting.LogEntry{
		Timestamp: time.Now(),
		SessionID: s.id,
		OrderID:   s.orderID,
		Stage:     stage,
		Outcome:   outcome,
		Attempt:   attempt,
		ErrorKind: string(errKind),
		Message:   msg,
	})
}

// Submit runs the whole reconciliation flow: gateway confirmation, then
// verification polling, then fulfillment. It blocks until the session
// reaches a terminal phase (or returns early on a validation error, leaving
// the form usable). Submit is only valid from idle.
func (s *Session) Submit(clientSecret string, instrument gateway.Instrument) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("session %s: torn down", s.id)
	}
	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("session %s: submit is only valid from idle, current phase is %s", s.id, phase)
	}
	s.phase = PhaseSubmitting
	s.errKind, s.errMsg = ErrorNone, ""
	s.mu.Unlock()

	tracer := otel.Tracer("session")
	ctx, span := tracer.Start(s.ctx, "Session.Submit")
	defer span.End()

	result, err := s.deps.Gateway.Confirm(ctx, clientSecret, instrument)
	if err != nil {
		// The call itself failed; nothing is known to have been accepted.
		s.deps.Logger.Warn("gateway confirmation call failed",
			zap.String("session_id", s.id), zap.Error(err))
		s.record(reporting.StageGateway, gateway.ClassFatal.String(), 0, ErrorGateway, err.Error())
		s.fail(ErrorGateway, "The payment could not be submitted. Your payment may not have gone through.")
		return nil
	}

	s.record(reporting.StageGateway, result.Class.String(), 0, ErrorNone, result.Message)
	switch result.Class {
	case gateway.ClassValidation:
		// Inline error; the form stays usable and no oracle call is made.
		s.apply(func() {
			s.phase = PhaseIdle
			s.errKind = ErrorValidation
			s.errMsg = result.Message
		})
		return nil
	case gateway.ClassFatal:
		s.fail(ErrorGateway, result.Message)
		return nil
	}

	proceed := s.apply(func() {
		s.gatewayAccepted = true
		s.phase = PhaseVerifying
		s.inFlight = true
	})
	if !proceed {
		return nil
	}

	start := time.Now()
	pollResult := s.deps.Poller.Run(ctx, s.orderID)
	metrics.VerificationDurationSeconds.Observe(time.Since(start).Seconds())
	s.apply(func() {
		s.inFlight = false
		s.attempts = pollResult.Attempts
	})
	s.record(reporting.StagePoll, pollResult.Outcome.String(), pollResult.Attempts, ErrorNone, "")

	switch pollResult.Outcome {
	case poller.Confirmed:
		s.succeed(ctx)
	case poller.Exhausted:
		s.apply(func() { s.verificationExhausted = true })
		s.fail(ErrorTimeout, timeoutMessage)
	case poller.Cancelled:
		// Torn down mid-poll; the session is gone, leave state untouched.
	}
	return nil
}

// Retry performs the user-triggered re-check: exactly one fresh oracle call,
// never a resumption of automatic polling. On the authenticated path the
// full-order re-fetch is the authoritative confirmation; a stale lightweight
// success without a paid order keeps the session failed with the gate open.
func (s *Session) Retry(ctx context.Context) (Status, error) {
	s.mu.Lock()
	facts := policy.Facts{
		GatewayAccepted:       s.gatewayAccepted,
		VerificationExhausted: s.verificationExhausted,
		InFlight:              s.inFlight,
		Attempts:              s.attempts,
	}
	allowed, err := s.deps.Gate.Allow(facts)
	if err != nil {
		s.mu.Unlock()
		return s.Snapshot(), err
	}
	if !allowed || s.phase != PhaseFailed {
		s.mu.Unlock()
		return s.Snapshot(), ErrRetryNotAllowed
	}
	s.phase = PhaseVerifying
	s.inFlight = true
	s.mu.Unlock()

	paid, checkErr := s.deps.Oracle.Check(ctx, s.orderID)
	if checkErr != nil {
		metrics.ManualRetriesTotal.WithLabelValues("error").Inc()
		s.record(reporting.StageRetry, "error", 0, ErrorTimeout, checkErr.Error())
		s.apply(func() {
			s.phase = PhaseFailed
			s.inFlight = false
		})
		return s.Snapshot(), checkErr
	}
	if paid && s.deps.Orders != nil {
		order, fetchErr := s.deps.Orders.FetchOrder(ctx, s.orderID)
		if fetchErr != nil || !order.Paid() {
			s.deps.Logger.Warn("retry check succeeded but full order is not paid, keeping session failed",
				zap.String("session_id", s.id), zap.Error(fetchErr))
			paid = false
		}
	}

	if !paid {
		metrics.ManualRetriesTotal.WithLabelValues("unconfirmed").Inc()
		s.record(reporting.StageRetry, "unconfirmed", 0, ErrorTimeout, timeoutMessage)
		s.apply(func() {
			s.phase = PhaseFailed
			s.errKind = ErrorTimeout
			s.errMsg = timeoutMessage
			s.inFlight = false
		})
		return s.Snapshot(), nil
	}

	metrics.ManualRetriesTotal.WithLabelValues("confirmed").Inc()
	s.record(reporting.StageRetry, "confirmed", 0, ErrorNone, "")
	s.apply(func() { s.inFlight = false })
	s.succeed(ctx)
	return s.Snapshot(), nil
}

// succeed flips the session to succeeded and resolves fulfillment.
// Fulfillment errors are logged and degrade the recovery path; they never
// revert the success.
func (s *Session) succeed(ctx context.Context) {
	if !s.apply(func() {
		s.phase = PhaseSucceeded
		s.errKind, s.errMsg = ErrorNone, ""
	}) {
		return
	}
	metrics.SessionsCompletedTotal.WithLabelValues("succeeded").Inc()

	res, err := s.deps.Resolver.Resolve(ctx, s.orderID)
	if err != nil {
		s.deps.Logger.Warn("fulfillment resolution failed, success stands",
			zap.String("session_id", s.id),
			zap.String("order_id", s.orderID),
			zap.Error(err))
		s.record(reporting.StageFulfillment, "degraded", 0, ErrorNone, err.Error())
		return
	}
	delivery, err := s.deps.Trigger.Deliver(ctx, res)
	if err != nil {
		s.deps.Logger.Warn("download trigger failed, success stands",
			zap.String("session_id", s.id), zap.Error(err))
		s.record(reporting.StageFulfillment, "degraded", 0, ErrorNone, err.Error())
		return
	}
	s.apply(func() { s.delivery = &delivery })
	s.record(reporting.StageFulfillment, "resolved", 0, ErrorNone, delivery.RedirectURL+delivery.Filename)
}

func (s *Session) fail(kind ErrorKind, msg string) {
	if s.apply(func() {
		s.phase = PhaseFailed
		s.errKind = kind
		s.errMsg = msg
	}) {
		metrics.SessionsCompletedTotal.WithLabelValues("failed").Inc()
	}
}

// Snapshot returns the current user-visible state.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	retry := false
	if s.phase == PhaseFailed {
		allowed, err := s.deps.Gate.Allow(policy.Facts{
			GatewayAccepted:       s.gatewayAccepted,
			VerificationExhausted: s.verificationExhausted,
			InFlight:              s.inFlight,
			Attempts:              s.attempts,
		})
		retry = err == nil && allowed
	}
	return Status{
		ID:                    s.id,
		OrderID:               s.orderID,
		Phase:                 s.phase,
		ErrorKind:             s.errKind,
		ErrorMessage:          s.errMsg,
		GatewayAccepted:       s.gatewayAccepted,
		VerificationExhausted: s.verificationExhausted,
		RetryAvailable:        retry,
		Attempts:              s.attempts,
		Delivery:              s.delivery,
	}
}

// History returns a copy of the session's recorded events.
func (s *Session) History() []reporting.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reporting.LogEntry, len(s.history))
	copy(out, s.history)
	return out
}
