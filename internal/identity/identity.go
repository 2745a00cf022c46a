// Package identity models the caller identity handed to the engine: either an
// authenticated bearer credential or an order-scoped guest token. The engine
// never mints or refreshes these; they are opaque capabilities applied as
// request headers by the HTTP clients.
package identity

import "net/http"

// Kind discriminates the two identity variants.
type Kind int

const (
	KindBearer Kind = iota
	KindGuest
)

// Context carries the credential for one reconciliation session.
// Guest tokens are scoped to a single order and expire externally (observed
// as a 24h window); bearer credentials are session-scoped.
type Context struct {
	kind     Kind
	bearer   string
	token    string
	orderID  string
	locale   string
	timezone string
}

// NewBearer builds an authenticated identity. Locale and timezone travel as
// request metadata on order reads.
func NewBearer(credential, locale, timezone string) Context {
	return Context{kind: KindBearer, bearer: credential, locale: locale, timezone: timezone}
}

// NewGuest builds a guest identity bound to orderID.
func NewGuest(token, orderID string) Context {
	return Context{kind: KindGuest, token: token, orderID: orderID}
}

func (c Context) Kind() Kind { return c.kind }

// BoundOrderID returns the order a guest token is scoped to, or "" for
// bearer identities.
func (c Context) BoundOrderID() string { return c.orderID }

// Covers reports whether this identity may act on the given order. Bearer
// credentials cover any order the backend authorizes; guest tokens only
// their bound order.
func (c Context) Covers(orderID string) bool {
	if c.kind == KindBearer {
		return true
	}
	return c.orderID == orderID
}

// Apply sets the identity's headers on an outgoing request.
func (c Context) Apply(h http.Header) {
	switch c.kind {
	case KindBearer:
		h.Set("Authorization", "Bearer "+c.bearer)
		if c.locale != "" {
			h.Set("Accept-Language", c.locale)
		}
		if c.timezone != "" {
			h.Set("X-Client-Timezone", c.timezone)
		}
	case KindGuest:
		h.Set("X-Guest-Token", c.token)
	}
}
