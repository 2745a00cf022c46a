package circuitbreaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-reconciler/internal/oracle/circuitbreaker"
)

const (
	ordersEndpoint = "orders"
	checkEndpoint  = "payment-succeeded"
)

func TestNew_DefaultsApply(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{})
	require.NotNil(t, b)

	// Default threshold is 5: four failures keep the circuit closed.
	for i := 0; i < 4; i++ {
		b.RecordFailure(ordersEndpoint)
	}
	assert.True(t, b.Allow(ordersEndpoint))
	b.RecordFailure(ordersEndpoint)
	assert.False(t, b.Allow(ordersEndpoint), "fifth consecutive failure opens the circuit")
}

func TestBreaker_EndpointsAreIndependent(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	b.RecordFailure(ordersEndpoint)
	assert.False(t, b.Allow(ordersEndpoint))
	assert.True(t, b.Allow(checkEndpoint), "one endpoint's outage must not gate another")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	b.RecordFailure(ordersEndpoint)
	b.RecordFailure(ordersEndpoint)
	b.RecordSuccess(ordersEndpoint)
	b.RecordFailure(ordersEndpoint)
	b.RecordFailure(ordersEndpoint)
	assert.True(t, b.Allow(ordersEndpoint), "a success between failures resets the streak")

	_, failures := b.Snapshot(ordersEndpoint)
	assert.Equal(t, 2, failures)
}

func TestBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		OpenTimeout:      30 * time.Millisecond,
		HalfOpenSuccess:  2,
	})

	b.RecordFailure(ordersEndpoint)
	b.RecordFailure(ordersEndpoint)
	state, _ := b.Snapshot(ordersEndpoint)
	require.Equal(t, circuitbreaker.StateOpen, state)
	require.False(t, b.Allow(ordersEndpoint))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, b.Allow(ordersEndpoint), "expired open window admits a probe")
	state, _ = b.Snapshot(ordersEndpoint)
	assert.Equal(t, circuitbreaker.StateHalfOpen, state)

	b.RecordSuccess(ordersEndpoint)
	state, _ = b.Snapshot(ordersEndpoint)
	assert.Equal(t, circuitbreaker.StateHalfOpen, state, "one probe success is not enough")
	b.RecordSuccess(ordersEndpoint)
	state, _ = b.Snapshot(ordersEndpoint)
	assert.Equal(t, circuitbreaker.StateClosed, state)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 1,
		OpenTimeout:      20 * time.Millisecond,
		HalfOpenSuccess:  1,
	})

	b.RecordFailure(ordersEndpoint)
	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow(ordersEndpoint))

	b.RecordFailure(ordersEndpoint)
	state, _ := b.Snapshot(ordersEndpoint)
	assert.Equal(t, circuitbreaker.StateOpen, state, "a failed probe reopens immediately")
	assert.False(t, b.Allow(ordersEndpoint))
}

func TestBreaker_SnapshotOnUnknownEndpoint(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{})
	state, failures := b.Snapshot("never-seen")
	assert.Equal(t, circuitbreaker.StateClosed, state)
	assert.Zero(t, failures)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", circuitbreaker.StateClosed.String())
	assert.Equal(t, "open", circuitbreaker.StateOpen.String())
	assert.Equal(t, "half-open", circuitbreaker.StateHalfOpen.String())
}
