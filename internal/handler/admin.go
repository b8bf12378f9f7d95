package handler

import (
	"net/http"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type AdminHandler struct {
	system    *service.SystemService
	authSvc   *service.AuthService
	affiliate *service.AffiliateService
	billing   *service.BillingService
	validate  *validator.Validate
}

func NewAdminHandler(system *service.SystemService, authSvc *service.AuthService, affiliate *service.AffiliateService, billing *service.BillingService) *AdminHandler {
	return &AdminHandler{
		system:    system,
		authSvc:   authSvc,
		affiliate: affiliate,
		billing:   billing,
		validate:  validator.New(),
	}
}

// GetStats handles GET /api/admin/stats. ?refresh=1 bypasses the cache.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	get := h.system.Stats
	if r.URL.Query().Get("refresh") != "" {
		get = h.system.RefreshStats
	}
	stats, err := get(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authSvc.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, users)
}

// CreateUser handles POST /api/admin/users.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	user, err := h.authSvc.CreateUser(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, user)
}

// DeleteUser handles DELETE /api/admin/users/{id}.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.authSvc.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListPayouts handles GET /api/admin/payouts?status=pending.
func (h *AdminHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.affiliate.ListPayouts(r.Context(), "", r.URL.Query().Get("status"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, orEmpty(payouts))
}

// ProcessPayout handles POST /api/admin/payouts/{id}/process.
func (h *AdminHandler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.affiliate.ProcessPayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}

	email, err := h.affiliate.PayoutEmail(r.Context(), p.UserID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"payout": p, "payoutEmail": email})
}

// ListRefunds handles GET /api/admin/refunds?status=pending.
func (h *AdminHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.affiliate.ListRefunds(r.Context(), "", r.URL.Query().Get("status"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, orEmpty(refunds))
}

// ProcessRefund handles POST /api/admin/refunds/{id}/process.
func (h *AdminHandler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	refund, err := h.affiliate.ProcessRefund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, refund)
}

// ConnectReferral handles POST /api/admin/referrals/connect.
func (h *AdminHandler) ConnectReferral(w http.ResponseWriter, r *http.Request) {
	var req domain.ConnectReferralRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		Error(w, domain.ErrValidation("email and a paid plan are required"))
		return
	}

	if err := h.affiliate.ConnectReferral(r.Context(), req.Email, req.Plan); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PlanChanges handles GET /api/admin/plan-changes/{userId}.
func (h *AdminHandler) PlanChanges(w http.ResponseWriter, r *http.Request) {
	logs, err := h.billing.PlanChangeHistory(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, orEmpty(logs))
}

// orEmpty keeps empty lists rendering as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
