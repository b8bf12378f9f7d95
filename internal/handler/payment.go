package handler

import (
	"net/http"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/service"
	"github.com/go-chi/chi/v5"
)

type PaymentHandler struct {
	svc *service.BillingService
}

func NewPaymentHandler(svc *service.BillingService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// CreateOrder handles POST /api/payment/orders.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), userID, req.Plan)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, order)
}

// CaptureOrder handles POST /api/payment/orders/{id}/capture.
func (h *PaymentHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.CaptureOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// GetSubscription handles GET /api/payment/subscription.
func (h *PaymentHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.GetSubscription(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	if sub == nil {
		JSON(w, http.StatusOK, map[string]interface{}{"status": "none"})
		return
	}

	JSON(w, http.StatusOK, sub)
}

// Subscribe handles POST /api/payment/subscription.
func (h *PaymentHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), userID, req.Plan)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, sub)
}

// ConfirmSubscription handles POST /api/payment/subscription/confirm, called
// after the buyer returns from the PayPal approve link.
func (h *PaymentHandler) ConfirmSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	sub, err := h.svc.ConfirmSubscription(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, sub)
}

// ChangePlan handles POST /api/payment/subscription/change.
func (h *PaymentHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	res, err := h.svc.ChangePlan(r.Context(), userID, req.Plan)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, res)
}

// Cancel handles POST /api/payment/subscription/cancel.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req domain.CancelSubscriptionRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			Error(w, err)
			return
		}
	}

	if err := h.svc.CancelSubscription(r.Context(), userID, req.Reason); err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
