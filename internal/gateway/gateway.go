// Package gateway wraps the single payment-gateway call that exchanges a
// client secret plus instrument details for a confirmation result. It never
// touches the backend order; everything after acceptance is the poller's job.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Class partitions gateway outcomes by what the session should do next.
type Class int

const (
	// ClassAccepted means the gateway took the charge; verification starts.
	ClassAccepted Class = iota
	// ClassValidation means the instrument input is incomplete or malformed;
	// the form stays usable and the user corrects it in place.
	ClassValidation
	// ClassFatal means the gateway rejected the instrument or responded in an
	// unexpected way; the session fails and retry is not offered.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassAccepted:
		return "accepted"
	case ClassValidation:
		return "validation_error"
	default:
		return "fatal_error"
	}
}

// Instrument carries the payment-instrument fields submitted by the user.
type Instrument struct {
	CardNumber string
	ExpMonth   string
	ExpYear    string
	CVC        string
}

// Result is the typed outcome of one confirmation call.
type Result struct {
	Class       Class
	Code        string // gateway error code, empty on acceptance
	Message     string // user-facing message for validation/fatal outcomes
	RedirectURL string // off-band confirmation target, when the gateway wants one
}

// ConfirmationClient is the contract the session depends on.
type ConfirmationClient interface {
	Confirm(ctx context.Context, clientSecret string, instrument Instrument) (Result, error)
}

// errorBody matches the gateway's error envelope.
type errorBody struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code"`
	} `json:"error"`
}

type confirmBody struct {
	Status  string `json:"status"`
	NextURL string `json:"next_action_url"`
}

// Client is the HTTP implementation of ConfirmationClient.
type Client struct {
	rest   *resty.Client
	logger *zap.Logger
}

// NewClient creates a gateway client against baseURL. rest may carry a
// custom transport for tests.
func NewClient(rest *resty.Client, baseURL string, logger *zap.Logger) *Client {
	if rest == nil {
		panic("resty client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rest.SetBaseURL(baseURL)
	return &Client{rest: rest, logger: logger}
}

// Confirm performs the one gateway call. A non-nil error means the call
// itself failed (network, marshalling); the caller maps that to a fatal
// outcome since nothing is known to have been accepted.
func (c *Client) Confirm(ctx context.Context, clientSecret string, instrument Instrument) (Result, error) {
	form := url.Values{}
	form.Set("client_secret", clientSecret)
	form.Set("card[number]", instrument.CardNumber)
	form.Set("card[exp_month]", instrument.ExpMonth)
	form.Set("card[exp_year]", instrument.ExpYear)
	form.Set("card[cvc]", instrument.CVC)

	var ok confirmBody
	var bad errorBody
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		SetResult(&ok).
		SetError(&bad).
		Post("/payment_intents/confirm")
	if err != nil {
		return Result{}, fmt.Errorf("gateway: confirmation call failed: %w", err)
	}

	if resp.IsSuccess() {
		switch ok.Status {
		case "succeeded", "processing":
			return Result{Class: ClassAccepted}, nil
		case "requires_action":
			// Off-band confirmation; the charge is accepted pending the
			// redirect flow, which verification will reconcile.
			return Result{Class: ClassAccepted, RedirectURL: ok.NextURL}, nil
		default:
			c.logger.Warn("gateway returned unexpected confirmation status",
				zap.String("status", ok.Status))
			return Result{
				Class:   ClassFatal,
				Code:    "unexpected_status",
				Message: "The payment could not be confirmed. Your payment may not have gone through.",
			}, nil
		}
	}

	code := bad.Error.Code
	if bad.Error.DeclineCode != "" {
		code = bad.Error.DeclineCode
	}
	if isValidationError(bad.Error.Type, bad.Error.Code) {
		return Result{Class: ClassValidation, Code: code, Message: bad.Error.Message}, nil
	}

	c.logger.Warn("gateway rejected confirmation",
		zap.Int("http_status", resp.StatusCode()),
		zap.String("error_type", bad.Error.Type),
		zap.String("error_code", code))
	msg := bad.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("The gateway rejected the payment (HTTP %d). Your payment may not have gone through.", resp.StatusCode())
	}
	return Result{Class: ClassFatal, Code: code, Message: msg}, nil
}

// isValidationError classifies errors the user can fix in the form without
// restarting the session.
func isValidationError(errType, code string) bool {
	if errType == "validation_error" {
		return true
	}
	return strings.HasPrefix(code, "incomplete_") || strings.HasPrefix(code, "invalid_")
}
