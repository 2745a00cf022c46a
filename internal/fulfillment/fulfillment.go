// Package fulfillment turns a confirmed payment into delivered goods. The
// authenticated path resolves a download identifier from the order record;
// the guest path retrieves the file bytes directly with the order-scoped
// token. Resolution failures never revert a succeeded session — callers log
// them and fall back to a degraded recovery path.
package fulfillment

import (
	"context"
	"io"
)

// Kind discriminates what a Resolution carries.
type Kind int

const (
	// KindLibrary: a download identifier (or title query) for the library view.
	KindLibrary Kind = iota
	// KindFile: a byte stream to be saved locally.
	KindFile
)

// Resolution is the outcome of resolving fulfillment for a paid order.
type Resolution struct {
	Kind       Kind
	DownloadID string        // library path, when the backend has one
	TitleQuery string        // fallback lookup key when DownloadID is absent
	Filename   string        // guest path, parsed from response metadata
	Content    io.ReadCloser // guest path, the delivered bytes; caller closes
}

// Resolver is implemented by the authenticated and guest variants.
type Resolver interface {
	Resolve(ctx context.Context, orderID string) (Resolution, error)
}

// Delivery describes what the trigger did with a resolution.
type Delivery struct {
	RedirectURL string // library navigation target
	Filename    string // saved file name
	Bytes       int64  // bytes written for file deliveries
}

// Trigger hands a resolution to the user: a library redirect or a local save.
type Trigger interface {
	Deliver(ctx context.Context, res Resolution) (Delivery, error)
}
