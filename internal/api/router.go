/**
 * @description
 * This file sets up the HTTP router for the booking-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for authentication, caching and the usual logging,
 * recovery and timeout concerns.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BookingRoutes creates and returns a new router for the booking service.
func BookingRoutes(h *BookingHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints: event discovery and the provider's webhook.
	r.Group(func(r chi.Router) {
		r.With(h.cache.Middleware(eventListCacheKey)).Get("/events", h.ListEventsHandler)
		r.Get("/events/{eventID}", h.GetEventHandler)
	})
	r.Post("/payments/webhook", h.PaymentWebhookHandler)

	// Authenticated user endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/events/{eventID}/book", h.InitiateBookingHandler)
		r.Post("/events/{eventID}/attend", h.ConfirmAttendanceHandler)
		r.Get("/bookings/{orderID}", h.GetBookingHandler)
	})

	// Admin endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Use(RequireAdmin)

		r.Post("/admin/events", h.CreateEventHandler)
		r.Put("/admin/events/{eventID}", h.UpdateEventHandler)
		r.Delete("/admin/events/{eventID}", h.DeleteEventHandler)
		r.Get("/admin/events/{eventID}/attendees", h.ListPaidAttendeesHandler)
		r.Post("/admin/reconcile", h.ReconcileHandler)
	})

	return r
}
