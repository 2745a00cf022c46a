package oracle

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/identity"
	"github.com/yourorg/payment-reconciler/internal/oracle/circuitbreaker"
)

// GuestOracle asks the dedicated payment-succeeded endpoint with a guest
// token. A 2xx no-body response means paid; the payment-pending status codes
// mean "not yet". Guest callers never see order payloads.
type GuestOracle struct {
	rest    *resty.Client
	ident   identity.Context
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewGuest builds the guest-token oracle.
func NewGuest(rest *resty.Client, ident identity.Context, breaker *circuitbreaker.Breaker, logger *zap.Logger) *GuestOracle {
	if rest == nil {
		panic("resty client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuestOracle{rest: rest, ident: ident, breaker: breaker, logger: logger}
}

// Check implements StatusOracle.
func (g *GuestOracle) Check(ctx context.Context, orderID string) (bool, error) {
	if !g.ident.Covers(orderID) {
		return false, fmt.Errorf("oracle: guest token is not scoped to order %s", orderID)
	}
	if g.breaker != nil && !g.breaker.Allow(endpointPaymentCheck) {
		return false, fmt.Errorf("oracle: backend circuit open for %s", endpointPaymentCheck)
	}

	req := g.rest.R().SetContext(ctx)
	g.ident.Apply(req.Header)
	resp, err := req.Post("/orders/" + orderID + "/payment-succeeded")
	if err != nil {
		if g.breaker != nil {
			g.breaker.RecordFailure(endpointPaymentCheck)
		}
		g.logger.Warn("guest payment check failed", zap.String("order_id", orderID), zap.Error(err))
		return false, fmt.Errorf("oracle: guest payment check for order %s: %w", orderID, err)
	}

	switch {
	case resp.IsSuccess():
		if g.breaker != nil {
			g.breaker.RecordSuccess(endpointPaymentCheck)
		}
		return true, nil
	case isPaymentPending(resp.StatusCode()):
		if g.breaker != nil {
			g.breaker.RecordSuccess(endpointPaymentCheck)
		}
		return false, nil
	default:
		if g.breaker != nil {
			g.breaker.RecordFailure(endpointPaymentCheck)
		}
		g.logger.Warn("guest payment check returned server error",
			zap.String("order_id", orderID), zap.Int("http_status", resp.StatusCode()))
		return false, fmt.Errorf("oracle: guest payment check returned HTTP %d", resp.StatusCode())
	}
}

// isPaymentPending maps the backend's "not yet paid" statuses. Anything else
// non-2xx counts as a transport/server error.
func isPaymentPending(status int) bool {
	switch status {
	case http.StatusPaymentRequired, http.StatusNotFound, http.StatusConflict, http.StatusGone:
		return true
	}
	return false
}
