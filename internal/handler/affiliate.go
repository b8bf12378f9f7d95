package handler

import (
	"net/http"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/service"
)

type AffiliateHandler struct {
	svc *service.AffiliateService
}

func NewAffiliateHandler(svc *service.AffiliateService) *AffiliateHandler {
	return &AffiliateHandler{svc: svc}
}

// Dashboard handles GET /api/affiliate/dashboard.
func (h *AffiliateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	dash, err := h.svc.Dashboard(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, dash)
}

// Referrals handles GET /api/affiliate/referrals.
func (h *AffiliateHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	refs, err := h.svc.ListReferrals(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, orEmpty(refs))
}

// SetPayoutEmail handles PUT /api/affiliate/payout-email.
func (h *AffiliateHandler) SetPayoutEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.PayoutEmailRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	masked, err := h.svc.SetPayoutEmail(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"payoutEmail": masked})
}

// RequestPayout handles POST /api/affiliate/payouts.
func (h *AffiliateHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.PayoutRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	p, err := h.svc.RequestPayout(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, p)
}

// Payouts handles GET /api/affiliate/payouts.
func (h *AffiliateHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	payouts, err := h.svc.ListPayouts(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, orEmpty(payouts))
}

// RequestRefund handles POST /api/refunds.
func (h *AffiliateHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.RefundRequestInput
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	refund, err := h.svc.RequestRefund(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, refund)
}

// Refunds handles GET /api/refunds.
func (h *AffiliateHandler) Refunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	refunds, err := h.svc.ListRefunds(r.Context(), userID, "")
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, orEmpty(refunds))
}
