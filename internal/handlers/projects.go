package handlers

import (
	"net/http"

	"buildhub/internal/projects"

	"github.com/go-chi/chi/v5"
)

// CreateProjectHandler handles POST /api/projects
func (h *Handler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var in projects.CreateInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "CreateProjectHandler", err)
		return
	}
	p, err := h.flow.CreateProject(r.Context(), sessionFrom(r), in)
	if err != nil {
		writeError(w, r, "CreateProjectHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// PublishProjectHandler handles POST /api/projects/{projectId}/publish
func (h *Handler) PublishProjectHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.flow.PublishProject(r.Context(), sessionFrom(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeError(w, r, "PublishProjectHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CompleteProjectHandler handles POST /api/projects/{projectId}/complete
func (h *Handler) CompleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.flow.CompleteProject(r.Context(), sessionFrom(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeError(w, r, "CompleteProjectHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CancelProjectHandler handles POST /api/projects/{projectId}/cancel. The reply
// carries the bids the cancellation rejected.
func (h *Handler) CancelProjectHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.flow.CancelProject(r.Context(), sessionFrom(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeError(w, r, "CancelProjectHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DashboardHandler handles GET /api/dashboard
func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := h.flow.Dashboard(r.Context(), sessionFrom(r))
	if err != nil {
		writeError(w, r, "DashboardHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SaveOwnerProfileHandler handles PUT /api/owners/me/profile
func (h *Handler) SaveOwnerProfileHandler(w http.ResponseWriter, r *http.Request) {
	var in projects.OwnerProfileInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "SaveOwnerProfileHandler", err)
		return
	}
	profile, err := h.flow.SaveOwnerProfile(r.Context(), sessionFrom(r), in)
	if err != nil {
		writeError(w, r, "SaveOwnerProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
