package handler

import (
	"net/http"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/internal/service"
	"github.com/go-chi/chi/v5"
)

type ContentHandler struct {
	svc *service.ContentService
}

func NewContentHandler(svc *service.ContentService) *ContentHandler {
	return &ContentHandler{svc: svc}
}

// List handles GET /api/content?kind=text.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	items, err := h.svc.List(r.Context(), userID, r.URL.Query().Get("kind"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, items)
}

// Save handles POST /api/content.
func (h *ContentHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.SaveContentRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	c, err := h.svc.Save(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, c)
}

// Publish handles POST /api/content/{id}/publish.
func (h *ContentHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Publish(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Delete handles DELETE /api/content/{id}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetWebsite handles GET /api/websites/me.
func (h *ContentHandler) GetWebsite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	site, err := h.svc.GetWebsite(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, site)
}

// SaveWebsite handles PUT /api/websites/me.
func (h *ContentHandler) SaveWebsite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req domain.SaveWebsiteRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	site, err := h.svc.SaveWebsite(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, site)
}

// PublishWebsite handles POST /api/websites/me/publish.
func (h *ContentHandler) PublishWebsite(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.PublishWebsite(r.Context(), userID); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PublicWebsite handles GET /api/sites/{username}.
func (h *ContentHandler) PublicWebsite(w http.ResponseWriter, r *http.Request) {
	site, err := h.svc.GetPublicWebsite(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, site)
}
