package handlers

import (
	"net/http"

	"buildhub/internal/bids"

	"github.com/go-chi/chi/v5"
)

type submitBidRequest struct {
	ProposedRate float64 `json:"proposedRate"`
	Message      string  `json:"message"`
}

// SubmitBidHandler handles POST /api/projects/{projectId}/bids. The bidder is
// always the session's user; rate and message may be left for the profile
// defaults.
func (h *Handler) SubmitBidHandler(w http.ResponseWriter, r *http.Request) {
	var req submitBidRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, "SubmitBidHandler", err)
		return
	}
	bid, err := h.flow.SubmitBid(r.Context(), sessionFrom(r), bids.SubmitInput{
		ProjectID:    chi.URLParam(r, "projectId"),
		ProposedRate: req.ProposedRate,
		Message:      req.Message,
	})
	if err != nil {
		writeError(w, r, "SubmitBidHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// ProjectBidsHandler handles GET /api/projects/{projectId}/bids
func (h *Handler) ProjectBidsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.flow.ProjectBids(r.Context(), sessionFrom(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeError(w, r, "ProjectBidsHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AcceptBidHandler handles POST /api/bids/{bidId}/accept
func (h *Handler) AcceptBidHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.flow.AcceptBid(r.Context(), sessionFrom(r), chi.URLParam(r, "bidId"))
	if err != nil {
		writeError(w, r, "AcceptBidHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RejectBidHandler handles POST /api/bids/{bidId}/reject
func (h *Handler) RejectBidHandler(w http.ResponseWriter, r *http.Request) {
	bid, err := h.flow.RejectBid(r.Context(), sessionFrom(r), chi.URLParam(r, "bidId"))
	if err != nil {
		writeError(w, r, "RejectBidHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// SaveProfileHandler handles PUT /api/workers/me/profile
func (h *Handler) SaveProfileHandler(w http.ResponseWriter, r *http.Request) {
	var in bids.ProfileInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "SaveProfileHandler", err)
		return
	}
	profile, err := h.flow.SaveWorkerProfile(r.Context(), sessionFrom(r), in)
	if err != nil {
		writeError(w, r, "SaveProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
