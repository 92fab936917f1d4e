package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventory/services/item/application/handlers"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
)

// ItemRoutes registers the item endpoints on r, both at the root and under /api.
func ItemRoutes(r chi.Router, svcs *appsvcs.Services, isProduction bool) {
	routes := func(r chi.Router) {
		r.Get("/", handlers.Root)
		r.Route("/items", func(r chi.Router) {
			r.Get("/", handlers.NewListItemsHandler(svcs, isProduction).Execute)
			r.Post("/", handlers.NewCreateItemHandler(svcs, isProduction).Execute)
			r.Get("/{id}", handlers.NewGetItemHandler(svcs, isProduction).Execute)
			r.Put("/{id}", handlers.NewUpdateItemHandler(svcs, isProduction).Execute)
			r.Delete("/{id}", handlers.NewDeleteItemHandler(svcs, isProduction).Execute)
		})
	}

	r.Group(routes)
	r.Route("/api", routes)
}
