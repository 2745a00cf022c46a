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

// endpoint keys for the circuit breaker.
const (
	endpointOrders       = "orders"
	endpointPaymentCheck = "payment-succeeded"
)

// AuthenticatedOracle reads the full order record with a bearer credential
// and inspects its status field.
type AuthenticatedOracle struct {
	rest    *resty.Client
	ident   identity.Context
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewAuthenticated builds the bearer-credential oracle. breaker may be nil
// when no backend health tracking is wanted.
func NewAuthenticated(rest *resty.Client, ident identity.Context, breaker *circuitbreaker.Breaker, logger *zap.Logger) *AuthenticatedOracle {
	if rest == nil {
		panic("resty client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthenticatedOracle{rest: rest, ident: ident, breaker: breaker, logger: logger}
}

// Check implements StatusOracle.
func (a *AuthenticatedOracle) Check(ctx context.Context, orderID string) (bool, error) {
	order, err := a.FetchOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Paid(), nil
}

// FetchOrder retrieves the full order record. The fulfillment resolver
// reuses this after success to pick up the download identifier.
func (a *AuthenticatedOracle) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	if a.breaker != nil && !a.breaker.Allow(endpointOrders) {
		return Order{}, fmt.Errorf("oracle: backend circuit open for %s", endpointOrders)
	}

	var order Order
	req := a.rest.R().SetContext(ctx).SetResult(&order)
	a.ident.Apply(req.Header)
	resp, err := req.Get("/orders/" + orderID)
	if err != nil {
		a.recordFailure(endpointOrders)
		return Order{}, fmt.Errorf("oracle: fetching order %s: %w", orderID, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		a.recordFailure(endpointOrders)
		return Order{}, fmt.Errorf("oracle: backend returned HTTP %d for order %s", resp.StatusCode(), orderID)
	}
	if !resp.IsSuccess() {
		// 4xx here is a request problem, not backend degradation.
		if a.breaker != nil {
			a.breaker.RecordSuccess(endpointOrders)
		}
		return Order{}, fmt.Errorf("oracle: backend refused order fetch with HTTP %d", resp.StatusCode())
	}
	if a.breaker != nil {
		a.breaker.RecordSuccess(endpointOrders)
	}
	return order, nil
}

func (a *AuthenticatedOracle) recordFailure(endpoint string) {
	if a.breaker != nil {
		a.breaker.RecordFailure(endpoint)
	}
	a.logger.Warn("backend call failed", zap.String("endpoint", endpoint))
}
