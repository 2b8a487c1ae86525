package handlers

import (
	"context"
	"net/http"

	"buildhub/internal/orders"
	"buildhub/models"

	"github.com/go-chi/chi/v5"
)

// CreateMaterialHandler handles POST /api/materials
func (h *Handler) CreateMaterialHandler(w http.ResponseWriter, r *http.Request) {
	var in orders.MaterialInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "CreateMaterialHandler", err)
		return
	}
	m, err := h.flow.CreateMaterial(r.Context(), sessionFrom(r), in)
	if err != nil {
		writeError(w, r, "CreateMaterialHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMaterialHandler handles PATCH /api/materials/{materialId}
func (h *Handler) UpdateMaterialHandler(w http.ResponseWriter, r *http.Request) {
	var patch orders.MaterialPatch
	if err := decode(w, r, &patch); err != nil {
		writeError(w, r, "UpdateMaterialHandler", err)
		return
	}
	m, err := h.flow.UpdateMaterial(r.Context(), sessionFrom(r), chi.URLParam(r, "materialId"), patch)
	if err != nil {
		writeError(w, r, "UpdateMaterialHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CatalogueHandler handles GET /api/materials
func (h *Handler) CatalogueHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.flow.Catalogue(r.Context(), sessionFrom(r))
	if err != nil {
		writeError(w, r, "CatalogueHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// PlaceOrderHandler handles POST /api/orders
func (h *Handler) PlaceOrderHandler(w http.ResponseWriter, r *http.Request) {
	var in orders.PlaceInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "PlaceOrderHandler", err)
		return
	}
	o, err := h.flow.PlaceOrder(r.Context(), sessionFrom(r), in)
	if err != nil {
		writeError(w, r, "PlaceOrderHandler", err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ProjectOrdersHandler handles GET /api/projects/{projectId}/orders
func (h *Handler) ProjectOrdersHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.flow.ProjectOrders(r.Context(), sessionFrom(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeError(w, r, "ProjectOrdersHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type orderStep func(ctx context.Context, session, orderID string) (models.MaterialOrder, error)

// orderStepHandler serves POST /api/orders/{orderId}/confirm|ship|deliver|cancel.
func (h *Handler) orderStepHandler(name string, step orderStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := step(r.Context(), sessionFrom(r), chi.URLParam(r, "orderId"))
		if err != nil {
			writeError(w, r, name, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *Handler) ConfirmOrderHandler() http.HandlerFunc {
	return h.orderStepHandler("ConfirmOrderHandler", h.flow.ConfirmOrder)
}

func (h *Handler) ShipOrderHandler() http.HandlerFunc {
	return h.orderStepHandler("ShipOrderHandler", h.flow.ShipOrder)
}

func (h *Handler) DeliverOrderHandler() http.HandlerFunc {
	return h.orderStepHandler("DeliverOrderHandler", h.flow.DeliverOrder)
}

func (h *Handler) CancelOrderHandler() http.HandlerFunc {
	return h.orderStepHandler("CancelOrderHandler", h.flow.CancelOrder)
}

// SaveSupplierProfileHandler handles PUT /api/suppliers/me/profile
func (h *Handler) SaveSupplierProfileHandler(w http.ResponseWriter, r *http.Request) {
	var in orders.SupplierProfileInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, "SaveSupplierProfileHandler", err)
		return
	}
	profile, err := h.flow.SaveSupplierProfile(r.Context(), sessionFrom(r), in)
	if err != nil {
		writeError(w, r, "SaveSupplierProfileHandler", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
