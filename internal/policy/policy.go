// Package policy decides when a failed session may offer a manual
// verification retry. The gate is a configured rule expression over session
// facts, so operators can tighten it without a rebuild.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Facts are the session properties retry rules may reference.
type Facts struct {
	GatewayAccepted       bool
	VerificationExhausted bool
	InFlight              bool
	Attempts              int
}

// DefaultRetryRule encodes the engine invariant: retry only after the
// gateway accepted the charge and automatic polling fully exhausted, and
// never while a poll is in flight.
const DefaultRetryRule = "gateway_accepted && verification_exhausted && !in_flight"

// RetryGate evaluates a compiled retry rule.
type RetryGate struct {
	rule *govaluate.EvaluableExpression
	src  string
}

// NewRetryGate compiles expression; an empty expression uses
// DefaultRetryRule.
func NewRetryGate(expression string) (*RetryGate, error) {
	if expression == "" {
		expression = DefaultRetryRule
	}
	rule, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("policy: compiling retry rule %q: %w", expression, err)
	}
	return &RetryGate{rule: rule, src: expression}, nil
}

// Allow reports whether the session may offer a manual retry.
func (g *RetryGate) Allow(f Facts) (bool, error) {
	params := map[string]interface{}{
		"gateway_accepted":       f.GatewayAccepted,
		"verification_exhausted": f.VerificationExhausted,
		"in_flight":              f.InFlight,
		"attempts":               f.Attempts,
	}
	out, err := g.rule.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("policy: evaluating retry rule %q: %w", g.src, err)
	}
	allowed, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("policy: retry rule %q did not evaluate to a boolean", g.src)
	}
	return allowed, nil
}

// Rule returns the source expression, for logs and reports.
func (g *RetryGate) Rule() string { return g.src }
