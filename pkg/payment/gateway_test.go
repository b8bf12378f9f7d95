package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	*httptest.Server
	calls       atomic.Int32
	tokenStatus int
	routes      map[string]http.HandlerFunc
}

func newFakePayPal(t *testing.T, routes map[string]http.HandlerFunc) *fakePayPal {
	t.Helper()
	f := &fakePayPal{tokenStatus: http.StatusOK, routes: routes}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.URL.Path == "/v1/oauth2/token" {
			if _, _, ok := r.BasicAuth(); !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if f.tokenStatus != http.StatusOK {
				writeJSON(w, f.tokenStatus, map[string]string{"error": "invalid_client", "error_description": "Client Authentication failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "A21AA", "token_type": "Bearer", "expires_in": 32400})
			return
		}
		if r.Header.Get("Authorization") != "Bearer A21AA" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h, ok := f.routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func proPlan(t *testing.T) domain.Plan {
	t.Helper()
	plan, ok := domain.GetPlan("pro")
	require.True(t, ok)
	return plan
}

func TestAcquireAccessToken(t *testing.T) {
	srv := newFakePayPal(t, nil)
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	tok, err := gw.AcquireAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A21AA", tok.AccessToken)
	assert.Equal(t, int64(32400), tok.ExpiresIn)
}

func TestAcquireAccessToken_PlaceholderCredentials(t *testing.T) {
	srv := newFakePayPal(t, nil)

	for _, id := range []string{"", "your_client_id", "<client-id>", "xxxx", "changeme"} {
		gw := NewPayPalGateway(id, "client-secret", "sandbox", srv.URL)
		_, err := gw.AcquireAccessToken(context.Background())
		assert.True(t, domain.IsKind(err, domain.KindConfig), "client id %q", id)
	}
	assert.Zero(t, srv.calls.Load())
}

func TestAcquireAccessToken_Rejected(t *testing.T) {
	srv := newFakePayPal(t, nil)
	srv.tokenStatus = http.StatusUnauthorized
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	_, err := gw.AcquireAccessToken(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindAuth))
}

func TestAcquireAccessToken_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", url)
	_, err := gw.AcquireAccessToken(context.Background())

	vErr, ok := domain.AsVendorError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTransport, vErr.Kind)
	assert.True(t, vErr.Retryable())
}

func TestCreateOrder(t *testing.T) {
	var body map[string]any
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v2/checkout/orders": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusCreated, map[string]any{
				"id":     "5O190127TN364715T",
				"status": "CREATED",
				"links": []map[string]string{
					{"href": "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T", "rel": "approve", "method": "GET"},
				},
			})
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	order, err := gw.CreateOrder(context.Background(), proPlan(t))
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", order.ID)
	assert.Equal(t, domain.OrderCreated, order.Status)
	assert.Contains(t, order.ApproveURL, "checkoutnow")

	assert.Equal(t, "CAPTURE", body["intent"])
	units := body["purchase_units"].([]any)
	require.Len(t, units, 1)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "49.00", amount["value"])
	assert.Equal(t, "USD", amount["currency_code"])
	appCtx := body["application_context"].(map[string]any)
	assert.Equal(t, "NO_SHIPPING", appCtx["shipping_preference"])
	assert.Equal(t, "PAY_NOW", appCtx["user_action"])
}

func TestCreateOrder_VendorIssue(t *testing.T) {
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v2/checkout/orders": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"name":    "UNPROCESSABLE_ENTITY",
				"message": "The requested action could not be performed.",
				"details": []map[string]string{
					{"issue": "CURRENCY_NOT_SUPPORTED", "description": "Currency code is not currently supported."},
				},
			})
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	_, err := gw.CreateOrder(context.Background(), proPlan(t))
	vErr, ok := domain.AsVendorError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindVendor, vErr.Kind)
	assert.Equal(t, "CURRENCY_NOT_SUPPORTED", vErr.Code)
	assert.Equal(t, "Currency code is not currently supported.", vErr.Message)
	assert.False(t, vErr.Retryable())
}

func TestCreateOrder_GenericCode(t *testing.T) {
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v2/checkout/orders": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	_, err := gw.CreateOrder(context.Background(), proPlan(t))
	vErr, ok := domain.AsVendorError(err)
	require.True(t, ok)
	assert.Equal(t, "ORDER_CREATE_FAILED", vErr.Code)
}

func TestCaptureOrder(t *testing.T) {
	status := "COMPLETED"
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v2/checkout/orders/ORDER-1/capture": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]any{"id": "ORDER-1", "status": status})
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	res, err := gw.CaptureOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", res.OrderID)
	assert.Equal(t, domain.OrderCaptured, res.Status)

	status = "PENDING"
	_, err = gw.CaptureOrder(context.Background(), "ORDER-1")
	vErr, ok := domain.AsVendorError(err)
	require.True(t, ok)
	assert.Equal(t, "CAPTURE_NOT_COMPLETED", vErr.Code)
}

func TestCreateSubscription(t *testing.T) {
	var body map[string]any
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v1/billing/subscriptions": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusCreated, map[string]any{
				"id":     "I-BW452GLLEP1G",
				"status": "APPROVAL_PENDING",
				"links": []map[string]string{
					{"href": "https://www.sandbox.paypal.com/webapps/billing/subscriptions?ba_token=BA-1", "rel": "approve", "method": "GET"},
				},
			})
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	sub, err := gw.CreateSubscription(context.Background(), "P-5ML4271244454362WXNWU5NQ", "user-42")
	require.NoError(t, err)
	assert.Equal(t, "I-BW452GLLEP1G", sub.ID)
	assert.Equal(t, "APPROVAL_PENDING", sub.Status)
	assert.Contains(t, sub.ApproveURL, "ba_token")
	assert.Equal(t, "P-5ML4271244454362WXNWU5NQ", body["plan_id"])
	assert.Equal(t, "user-42", body["custom_id"])
}

func TestGetSubscription(t *testing.T) {
	status := "APPROVAL_PENDING"
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"GET /v1/billing/subscriptions/I-BW452GLLEP1G": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"id": "I-BW452GLLEP1G", "status": status, "plan_id": "P-5ML4271244454362WXNWU5NQ"})
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	sub, err := gw.GetSubscription(context.Background(), "I-BW452GLLEP1G")
	require.NoError(t, err)
	assert.Equal(t, SubscriptionApprovalPending, sub.Status)

	status = "ACTIVE"
	sub, err = gw.GetSubscription(context.Background(), "I-BW452GLLEP1G")
	require.NoError(t, err)
	assert.Equal(t, SubscriptionActive, sub.Status)

	_, err = gw.GetSubscription(context.Background(), "I-MISSING")
	assert.Error(t, err)
}

func TestCreateSubscription_MissingVendorPlan(t *testing.T) {
	srv := newFakePayPal(t, nil)
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	_, err := gw.CreateSubscription(context.Background(), "", "user-42")
	assert.True(t, domain.IsKind(err, domain.KindConfig))
	assert.Zero(t, srv.calls.Load())
}

func TestCancelSubscription(t *testing.T) {
	cancelStatus := http.StatusNoContent
	var reason string
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v1/billing/subscriptions/I-1/cancel": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			reason = body["reason"]
			w.WriteHeader(cancelStatus)
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	require.NoError(t, gw.CancelSubscription(context.Background(), "I-1", "switching plans"))
	assert.Equal(t, "switching plans", reason)

	cancelStatus = http.StatusOK
	err := gw.CancelSubscription(context.Background(), "I-1", "")
	vErr, ok := domain.AsVendorError(err)
	require.True(t, ok)
	assert.Equal(t, "SUBSCRIPTION_CANCEL_FAILED", vErr.Code)
	assert.Equal(t, "Cancelled by customer", reason)
}

func TestCancelSubscription_Unknown(t *testing.T) {
	srv := newFakePayPal(t, map[string]http.HandlerFunc{
		"POST /v1/billing/subscriptions/I-404/cancel": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"name":    "RESOURCE_NOT_FOUND",
				"message": "The specified resource does not exist.",
				"details": []map[string]string{{"issue": "INVALID_RESOURCE_ID", "description": "Requested resource ID was not found."}},
			})
		},
	})
	gw := NewPayPalGateway("client-id", "client-secret", "sandbox", srv.URL)

	err := gw.CancelSubscription(context.Background(), "I-404", "")
	vErr, ok := domain.AsVendorError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_RESOURCE_ID", vErr.Code)
}

func TestNewPayPalGateway_Mode(t *testing.T) {
	assert.Equal(t, paypal.APIBaseSandBox, NewPayPalGateway("a", "b", "sandbox", "").apiBase)
	assert.Equal(t, paypal.APIBaseLive, NewPayPalGateway("a", "b", "live", "").apiBase)
	assert.Equal(t, "http://localhost:9999", NewPayPalGateway("a", "b", "live", "http://localhost:9999").apiBase)
}
