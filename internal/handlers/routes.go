package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the /api router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)
			r.Post("/auth/logout", h.LogoutHandler)
			r.Get("/dashboard", h.DashboardHandler)

			// projects
			r.Post("/projects", h.CreateProjectHandler)
			r.Post("/projects/{projectId}/publish", h.PublishProjectHandler)
			r.Post("/projects/{projectId}/complete", h.CompleteProjectHandler)
			r.Post("/projects/{projectId}/cancel", h.CancelProjectHandler)
			r.Put("/owners/me/profile", h.SaveOwnerProfileHandler)

			// bids
			r.Post("/projects/{projectId}/bids", h.SubmitBidHandler)
			r.Get("/projects/{projectId}/bids", h.ProjectBidsHandler)
			r.Post("/bids/{bidId}/accept", h.AcceptBidHandler)
			r.Post("/bids/{bidId}/reject", h.RejectBidHandler)
			r.Put("/workers/me/profile", h.SaveProfileHandler)

			// materials and orders
			r.Get("/materials", h.CatalogueHandler)
			r.Post("/materials", h.CreateMaterialHandler)
			r.Patch("/materials/{materialId}", h.UpdateMaterialHandler)
			r.Put("/suppliers/me/profile", h.SaveSupplierProfileHandler)
			r.Post("/orders", h.PlaceOrderHandler)
			r.Get("/projects/{projectId}/orders", h.ProjectOrdersHandler)
			r.Post("/orders/{orderId}/confirm", h.ConfirmOrderHandler())
			r.Post("/orders/{orderId}/ship", h.ShipOrderHandler())
			r.Post("/orders/{orderId}/deliver", h.DeliverOrderHandler())
			r.Post("/orders/{orderId}/cancel", h.CancelOrderHandler())
		})
	})
	return r
}
