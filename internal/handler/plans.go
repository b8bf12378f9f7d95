package handler

import (
	"net/http"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/go-chi/chi/v5"
)

// PlansHandler handles plan-related endpoints.
type PlansHandler struct{}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler() *PlansHandler {
	return &PlansHandler{}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, domain.AvailablePlans())
}

// Get handles GET /api/plans/{id}.
func (h *PlansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	plan, ok := domain.GetPlan(id)
	if !ok {
		Error(w, domain.PlanNotFoundError(id))
		return
	}
	JSON(w, http.StatusOK, plan)
}
