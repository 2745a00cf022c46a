// Package oracle answers one question for the reconciliation engine: is this
// order paid yet? Two implementations share the contract — an authenticated
// variant that reads the full order record, and a guest variant restricted
// to a content-free payment-succeeded check so guest tokens can never read
// arbitrary order data.
package oracle

import "context"

// Order is the backend's purchase record as seen by this engine. The engine
// only ever reads it; payment mutation happens gateway-side.
type Order struct {
	ID         string     `json:"id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"` // "paid" | "pending" | "failed"
	LineItems  []LineItem `json:"line_items,omitempty"`
	DownloadID string     `json:"download_id,omitempty"` // populated after post-processing
}

// LineItem is one purchasable entry on an order.
type LineItem struct {
	Title    string `json:"title"`
	Amount   int64  `json:"amount"`
	Quantity int    `json:"quantity"`
}

// Paid reports whether the order has been confirmed paid.
func (o Order) Paid() bool { return o.Status == StatusPaid }

const (
	StatusPaid    = "paid"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// StatusOracle checks whether an order is paid. Implementations return
// (false, nil) for the normal "not yet paid" negative and reserve the error
// return for transport/server failures, which the poller logs and counts as
// one consumed attempt.
type StatusOracle interface {
	Check(ctx context.Context, orderID string) (paid bool, err error)
}
