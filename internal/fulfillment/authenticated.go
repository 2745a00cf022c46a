package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/config"
	"github.com/yourorg/payment-reconciler/internal/oracle"
)

// OrderFetcher is the slice of the authenticated oracle this resolver needs.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (oracle.Order, error)
}

// AuthenticatedResolver re-fetches the order after payment success to pick
// up the download identifier. Backend post-processing (bundle generation)
// can lag the paid signal, so the fetch retries with a settling delay before
// degrading to a title-based lookup.
type AuthenticatedResolver struct {
	orders OrderFetcher
	cfg    config.FulfillmentConfig
	logger *zap.Logger
}

// NewAuthenticated builds the resolver. Zero cfg values get defaults.
func NewAuthenticated(orders OrderFetcher, cfg config.FulfillmentConfig, logger *zap.Logger) *AuthenticatedResolver {
	if orders == nil {
		panic("order fetcher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleAttempts <= 0 {
		cfg = config.Default().Fulfillment
	}
	return &AuthenticatedResolver{orders: orders, cfg: cfg, logger: logger}
}

// Resolve implements Resolver. It returns an error only when not even a
// fallback lookup can be built; a missing identifier with a known title is a
// degraded success, not a failure.
func (r *AuthenticatedResolver) Resolve(ctx context.Context, orderID string) (Resolution, error) {
	var title string
	for attempt := 1; attempt <= r.cfg.SettleAttempts; attempt++ {
		order, err := r.orders.FetchOrder(ctx, orderID)
		if err != nil {
			r.logger.Warn("fulfillment order fetch failed",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else {
			if order.DownloadID != "" {
				return Resolution{Kind: KindLibrary, DownloadID: order.DownloadID}, nil
			}
			if title == "" && len(order.LineItems) > 0 {
				title = order.LineItems[0].Title
			}
		}

		if attempt == r.cfg.SettleAttempts {
			break
		}
		timer := time.NewTimer(r.cfg.SettleDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return Resolution{}, ctx.Err()
		case <-timer.C:
		}
	}

	if title != "" {
		r.logger.Info("download identifier not yet available, falling back to title lookup",
			zap.String("order_id", orderID), zap.String("title", title))
		return Resolution{Kind: KindLibrary, TitleQuery: title}, nil
	}
	return Resolution{}, fmt.Errorf("fulfillment: order %s has no download identifier and no line items to fall back on", orderID)
}
