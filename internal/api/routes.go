package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Get("/", h.Page)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Post("/render/{id}", h.Render)
		r.Post("/refresh", h.Refresh)
		r.Post("/migrate", h.Migrate)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
		r.Post("/sidebar/{side}/tabs/{index}", h.ClickTab)
		r.Post("/generate/{id}", h.Generate)

		r.Get("/chats", h.ListChats)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Use(ChatMiddleware(h.chats))
			r.Get("/", h.GetChat)
			r.Get("/messages/{position}/revisions", h.Revisions)
		})
	})

	return r
}
