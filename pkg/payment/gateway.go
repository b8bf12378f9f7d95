// Package payment talks to the PayPal REST API for one-time orders and
// recurring subscriptions.
package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/plutov/paypal/v4"
)

const (
	tokenTimeout   = 10 * time.Second
	createTimeout  = 10 * time.Second
	captureTimeout = 20 * time.Second
	cancelTimeout  = 10 * time.Second
	lookupTimeout  = 10 * time.Second
)

// Gateway defines the operations the billing flows need from the payment vendor.
type Gateway interface {
	AcquireAccessToken(ctx context.Context) (*Token, error)
	CreateOrder(ctx context.Context, plan domain.Plan) (*OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
	CreateSubscription(ctx context.Context, vendorPlanID, customID string) (*SubscriptionResult, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionResult, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
}

// Token is a short-lived vendor access token.
type Token struct {
	AccessToken string
	ExpiresIn   int64
}

// OrderResult is the vendor's view of a freshly created order.
type OrderResult struct {
	ID         string
	Status     string
	ApproveURL string
}

// CaptureResult is returned when an approved order was captured.
type CaptureResult struct {
	OrderID string
	Status  string
}

// Vendor subscription statuses the billing flows act on.
const (
	SubscriptionApprovalPending = string(paypal.SubscriptionStatusApprovalPending)
	SubscriptionApproved        = string(paypal.SubscriptionStatusApproved)
	SubscriptionActive          = string(paypal.SubscriptionStatusActive)
)

// SubscriptionResult is the vendor's view of a subscription.
type SubscriptionResult struct {
	ID         string
	Status     string
	ApproveURL string
}

// PayPalGateway implements Gateway. A new vendor client, and therefore a new
// access token, is used for every operation.
type PayPalGateway struct {
	clientID  string
	secret    string
	apiBase   string
	transport http.RoundTripper
}

// NewPayPalGateway selects the API base from mode unless apiBase overrides it.
func NewPayPalGateway(clientID, secret, mode, apiBase string) *PayPalGateway {
	if apiBase == "" {
		apiBase = paypal.APIBaseSandBox
		if mode == "live" {
			apiBase = paypal.APIBaseLive
		}
	}
	return &PayPalGateway{
		clientID:  clientID,
		secret:    secret,
		apiBase:   apiBase,
		transport: http.DefaultTransport,
	}
}

// statusRecorder remembers the status code of the last response it carried.
type statusRecorder struct {
	next http.RoundTripper
	mu   sync.Mutex
	last int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if err == nil {
		s.mu.Lock()
		s.last = resp.StatusCode
		s.mu.Unlock()
	}
	return resp, err
}

func (s *statusRecorder) status() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (g *PayPalGateway) newClient(timeout time.Duration) (*paypal.Client, *statusRecorder, error) {
	if domain.IsPlaceholderCredential(g.clientID) || domain.IsPlaceholderCredential(g.secret) {
		return nil, nil, domain.ConfigError("PayPal credentials are not configured (PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET)")
	}
	c, err := paypal.NewClient(g.clientID, g.secret, g.apiBase)
	if err != nil {
		return nil, nil, domain.ConfigError("PayPal client could not be created: " + err.Error())
	}
	rec := &statusRecorder{next: g.transport}
	c.SetHTTPClient(&http.Client{Timeout: timeout, Transport: rec})
	return c, rec, nil
}

// connect builds a client and authenticates it.
func (g *PayPalGateway) connect(ctx context.Context, timeout time.Duration) (*paypal.Client, *statusRecorder, *Token, error) {
	c, rec, err := g.newClient(timeout)
	if err != nil {
		return nil, nil, nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	tok, err := c.GetAccessToken(tctx)
	if err != nil {
		var perr *paypal.ErrorResponse
		if errors.As(err, &perr) {
			return nil, nil, nil, domain.AuthError("PayPal rejected the client credentials", err)
		}
		return nil, nil, nil, domain.TransportError("could not reach PayPal", err)
	}
	if tok == nil || tok.Token == "" {
		return nil, nil, nil, domain.AuthError("PayPal returned an empty access token", nil)
	}
	return c, rec, &Token{AccessToken: tok.Token, ExpiresIn: int64(tok.ExpiresIn)}, nil
}

// AcquireAccessToken performs the client-credentials grant.
func (g *PayPalGateway) AcquireAccessToken(ctx context.Context) (*Token, error) {
	_, _, tok, err := g.connect(ctx, tokenTimeout)
	return tok, err
}

// CreateOrder opens a CAPTURE-intent order for one plan purchase.
func (g *PayPalGateway) CreateOrder(ctx context.Context, plan domain.Plan) (*OrderResult, error) {
	c, _, _, err := g.connect(ctx, createTimeout)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: plan.ID,
		Description: plan.Name + " plan",
		Amount: &paypal.PurchaseUnitAmount{
			Currency: plan.Currency,
			Value:    domain.FormatAmount(plan.PriceCents),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		ShippingPreference: "NO_SHIPPING",
		UserAction:         "PAY_NOW",
	}

	order, err := c.CreateOrder(cctx, "CAPTURE", units, nil, appCtx)
	if err != nil {
		return nil, vendorError(err, "ORDER_CREATE_FAILED", "PayPal could not create the order")
	}
	if order.ID == "" {
		return nil, domain.EmptyResponseError("PayPal returned an order without an id")
	}

	return &OrderResult{
		ID:         order.ID,
		Status:     order.Status,
		ApproveURL: findLink(order.Links, "approve", "payer-action"),
	}, nil
}

// CaptureOrder captures an order the buyer has approved.
func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	c, _, _, err := g.connect(ctx, captureTimeout)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	resp, err := c.CaptureOrder(cctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, vendorError(err, "CAPTURE_FAILED", "PayPal could not capture the order")
	}
	if resp.Status != domain.OrderCaptured {
		return nil, domain.BusinessError("CAPTURE_NOT_COMPLETED", "payment was not completed (status "+resp.Status+")")
	}

	return &CaptureResult{OrderID: resp.ID, Status: resp.Status}, nil
}

// CreateSubscription subscribes the payer to a vendor billing plan.
// customID is echoed back by PayPal on webhooks and reports.
func (g *PayPalGateway) CreateSubscription(ctx context.Context, vendorPlanID, customID string) (*SubscriptionResult, error) {
	if domain.IsPlaceholderCredential(vendorPlanID) {
		return nil, domain.ConfigError("PayPal billing plan id is not configured for this plan")
	}
	c, _, _, err := g.connect(ctx, createTimeout)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	resp, err := c.CreateSubscription(cctx, paypal.SubscriptionBase{
		PlanID:   vendorPlanID,
		CustomID: customID,
	})
	if err != nil {
		return nil, vendorError(err, "SUBSCRIPTION_CREATE_FAILED", "PayPal could not create the subscription")
	}
	if resp.ID == "" {
		return nil, domain.EmptyResponseError("PayPal returned a subscription without an id")
	}

	return &SubscriptionResult{
		ID:         resp.ID,
		Status:     string(resp.SubscriptionStatus),
		ApproveURL: findLink(resp.Links, "approve"),
	}, nil
}

// GetSubscription reads the current vendor status of a subscription. A buyer
// who never opened the approve link leaves it APPROVAL_PENDING.
func (g *PayPalGateway) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionResult, error) {
	c, _, _, err := g.connect(ctx, lookupTimeout)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	resp, err := c.GetSubscriptionDetails(lctx, subscriptionID)
	if err != nil {
		return nil, vendorError(err, "SUBSCRIPTION_LOOKUP_FAILED", "PayPal could not find the subscription")
	}
	if resp.ID == "" {
		return nil, domain.EmptyResponseError("PayPal returned a subscription without an id")
	}
	return &SubscriptionResult{ID: resp.ID, Status: string(resp.SubscriptionStatus)}, nil
}

// CancelSubscription succeeds only when PayPal answers 204 No Content.
func (g *PayPalGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	c, rec, _, err := g.connect(ctx, cancelTimeout)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()

	if reason == "" {
		reason = "Cancelled by customer"
	}
	if err := c.CancelSubscription(cctx, subscriptionID, reason); err != nil {
		return vendorError(err, "SUBSCRIPTION_CANCEL_FAILED", "PayPal could not cancel the subscription")
	}
	if status := rec.status(); status != http.StatusNoContent {
		return domain.BusinessError("SUBSCRIPTION_CANCEL_FAILED", "PayPal did not confirm the cancellation")
	}
	return nil
}

// vendorError turns a PayPal failure into the vendor taxonomy. HTTP error
// responses become business errors carrying PayPal's issue code.
func vendorError(err error, code, msg string) error {
	var perr *paypal.ErrorResponse
	if !errors.As(err, &perr) {
		return domain.TransportError("PayPal request failed", err)
	}
	if len(perr.Details) > 0 {
		if perr.Details[0].Issue != "" {
			code = perr.Details[0].Issue
		}
		if perr.Details[0].Description != "" {
			msg = perr.Details[0].Description
		}
	} else if perr.Message != "" {
		msg = perr.Message
	}
	ve := domain.BusinessError(code, msg)
	ve.Err = err
	return ve
}

func findLink(links []paypal.Link, rels ...string) string {
	for _, rel := range rels {
		for _, l := range links {
			if l.Rel == rel {
				return l.Href
			}
		}
	}
	return ""
}
