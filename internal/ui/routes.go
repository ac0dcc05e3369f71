package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns the complete web handler with request middleware.
func (ui *UI) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(ui.logger))
	ui.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	// Public routes (no auth required).
	r.Get("/", ui.HandleAuth)
	r.Post("/", ui.HandleAuthPost)
	r.Get("/healthz", ui.HandleHealth)

	// Protected routes (auth required).
	r.Group(func(r chi.Router) {
		r.Use(ui.AuthMiddleware)

		r.Get("/dashboard", ui.HandleDashboard)
		r.Get("/receiver", ui.HandleReceiver)
		r.Post("/logout", ui.HandleLogout)

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", ui.HandleSendAlert)
			r.Post("/cancel", ui.HandleCancelAlert)
			r.Post("/{id}/accept", ui.HandleAcceptAlert)
		})

		r.Route("/friends", func(r chi.Router) {
			r.Post("/request", ui.HandleFriendRequest)
			r.Post("/requests/{id}/accept", ui.HandleAcceptFriendRequest)
			r.Post("/requests/{id}/deny", ui.HandleDenyFriendRequest)
			r.Post("/{id}/remove", ui.HandleRemoveFriend)
		})
	})
}
