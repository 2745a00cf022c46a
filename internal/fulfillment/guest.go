package fulfillment

import (
	"context"
	"fmt"
	"mime"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/yourorg/payment-reconciler/internal/identity"
)

// GuestResolver retrieves the purchased file directly with the order-scoped
// guest token. The in-session download is the primary channel; an
// email-delivered backup link exists outside this engine if it is missed.
type GuestResolver struct {
	rest   *resty.Client
	ident  identity.Context
	logger *zap.Logger
}

// NewGuest builds the guest resolver.
func NewGuest(rest *resty.Client, ident identity.Context, logger *zap.Logger) *GuestResolver {
	if rest == nil {
		panic("resty client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuestResolver{rest: rest, ident: ident, logger: logger}
}

// Resolve implements Resolver with a single file-retrieval call. The caller
// owns the returned content stream and must close it.
func (g *GuestResolver) Resolve(ctx context.Context, orderID string) (Resolution, error) {
	if !g.ident.Covers(orderID) {
		return Resolution{}, fmt.Errorf("fulfillment: guest token is not scoped to order %s", orderID)
	}

	req := g.rest.R().SetContext(ctx).SetDoNotParseResponse(true)
	g.ident.Apply(req.Header)
	resp, err := req.Post("/orders/" + orderID + "/files")
	if err != nil {
		return Resolution{}, fmt.Errorf("fulfillment: file retrieval for order %s: %w", orderID, err)
	}
	if !resp.IsSuccess() {
		resp.RawBody().Close()
		return Resolution{}, fmt.Errorf("fulfillment: file retrieval returned HTTP %d", resp.StatusCode())
	}

	filename := filenameFromDisposition(resp.Header().Get("Content-Disposition"))
	if filename == "" {
		filename = "order-" + orderID + ".zip"
		g.logger.Info("no filename in response metadata, using generic name",
			zap.String("order_id", orderID), zap.String("filename", filename))
	}
	return Resolution{Kind: KindFile, Filename: filename, Content: resp.RawBody()}, nil
}

// filenameFromDisposition parses a content-disposition header, returning ""
// when no usable filename is present.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
