// Package circuitbreaker tracks backend endpoint health for the status
// oracles. An open circuit short-circuits an oracle attempt into a
// transport-class error, which the poller treats as one consumed attempt;
// it never fails a session by itself.
package circuitbreaker

import (
	"sync"
	"time"
)

// State of one endpoint's circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes the breaker. Zero values fall back to defaults.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	OpenTimeout      time.Duration // how long Open lasts before probing
	HalfOpenSuccess  int           // successes in HalfOpen needed to close
}

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultHalfOpenSuccess  = 2
)

type endpointState struct {
	state     State
	failures  int
	successes int
	openUntil time.Time
}

// Breaker is an in-memory circuit breaker keyed by backend endpoint.
type Breaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	cfg       Config
}

// New creates a Breaker, filling zero Config fields with defaults.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = defaultHalfOpenSuccess
	}
	return &Breaker{endpoints: make(map[string]*endpointState), cfg: cfg}
}

func (b *Breaker) get(endpoint string) *endpointState {
	es, ok := b.endpoints[endpoint]
	if !ok {
		es = &endpointState{state: StateClosed}
		b.endpoints[endpoint] = es
	}
	return es
}

// Allow reports whether a request to endpoint may proceed. An expired Open
// circuit transitions to HalfOpen here, so Allow is the only place probing
// starts.
func (b *Breaker) Allow(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.get(endpoint)
	switch es.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Now().After(es.openUntil) {
			es.state = StateHalfOpen
			es.successes = 0
			return true
		}
		return false
	}
	return true
}

// RecordFailure notes a transport/server failure against endpoint.
func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.get(endpoint)
	switch es.state {
	case StateClosed:
		es.failures++
		if es.failures >= b.cfg.FailureThreshold {
			es.state = StateOpen
			es.openUntil = time.Now().Add(b.cfg.OpenTimeout)
		}
	case StateHalfOpen:
		// A failed probe re-opens immediately.
		es.state = StateOpen
		es.openUntil = time.Now().Add(b.cfg.OpenTimeout)
		es.failures = 0
		es.successes = 0
	case StateOpen:
		// Late responses while Open don't extend the window.
	}
}

// RecordSuccess notes a successful call against endpoint. "Not yet paid" is
// a success at this layer; only transport errors count against the circuit.
func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.get(endpoint)
	switch es.state {
	case StateClosed:
		es.failures = 0
	case StateHalfOpen:
		es.successes++
		if es.successes >= b.cfg.HalfOpenSuccess {
			es.state = StateClosed
			es.failures = 0
			es.successes = 0
		}
	case StateOpen:
	}
}

// Snapshot returns the current state and consecutive failure count for an
// endpoint, for monitoring and tests. It never transitions state.
func (b *Breaker) Snapshot(endpoint string) (State, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	es, ok := b.endpoints[endpoint]
	if !ok {
		return StateClosed, 0
	}
	return es.state, es.failures
}
