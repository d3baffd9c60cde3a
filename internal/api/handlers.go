/**
 * @description
 * This file contains the HTTP handlers for the booking-service's API
 * endpoints. Handlers parse incoming requests, call the booking service and
 * translate its sentinel errors into HTTP status codes. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, io, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 * - pkg/cashfree: For the gateway error types surfaced by the webhook path.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/soulsadhna/booking-service/internal/app"
	"github.com/soulsadhna/booking-service/internal/domain"
	"github.com/soulsadhna/booking-service/internal/store"
	"github.com/soulsadhna/booking-service/pkg/cashfree"
)

// maxWebhookBodyBytes bounds webhook reads; provider payloads are small.
const maxWebhookBodyBytes = 1 << 20

// BookingHandlers holds the application service that handlers will use.
type BookingHandlers struct {
	service *app.Service
	cache   *ResponseCache
}

// NewBookingHandlers creates a new instance of BookingHandlers.
func NewBookingHandlers(service *app.Service, cache *ResponseCache) *BookingHandlers {
	return &BookingHandlers{service: service, cache: cache}
}

// writeJSON is a helper for writing JSON responses.
func (h *BookingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BookingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service's sentinel errors onto HTTP statuses.
func (h *BookingHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var gatewayErr *cashfree.ErrorResponse
	switch {
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrEventNotFound),
		errors.Is(err, store.ErrPaymentNotFound):
		h.writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, app.ErrPaymentRequired):
		h.writeError(w, http.StatusPaymentRequired, "Please book and pay for the event to attend this meeting")
	case errors.Is(err, app.ErrAttendeeRegistrationPending):
		h.writeError(w, http.StatusBadGateway, "Payment recorded; meeting registration is pending, please retry")
	case errors.Is(err, app.ErrMeetingUnavailable):
		h.writeError(w, http.StatusConflict, "This event has no meeting to register for")
	case errors.Is(err, app.ErrInvalidEventTimes), errors.Is(err, app.ErrInvalidEventPrice):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gatewayErr):
		h.writeError(w, http.StatusBadGateway, "Payment provider is unavailable, please try again")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// authedUserID pulls the authenticated user's UUID off the context.
func (h *BookingHandlers) authedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	return userID, true
}

func parseEventIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "eventID"))
}

// ListEventsHandler returns all events. Sits behind the Redis response cache.
func (h *BookingHandlers) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, "list_events", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// GetEventHandler returns a single event by id.
func (h *BookingHandlers) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseEventIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}
	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.writeServiceError(w, "get_event", err)
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

func (h *BookingHandlers) decodeEventInput(w http.ResponseWriter, r *http.Request) (domain.EventInput, bool) {
	var req domain.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return domain.EventInput{}, false
	}
	if req.Title == "" {
		h.writeError(w, http.StatusBadRequest, "Title is required")
		return domain.EventInput{}, false
	}
	start, end, err := parseEventWindow(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return domain.EventInput{}, false
	}
	return domain.EventInput{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
		Price:       req.Price,
	}, true
}

// CreateEventHandler handles admin event creation.
func (h *BookingHandlers) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeEventInput(w, r)
	if !ok {
		return
	}

	event, err := h.service.CreateEvent(r.Context(), adminID, input)
	if err != nil {
		h.writeServiceError(w, "create_event", err)
		return
	}
	h.cache.Invalidate(r.Context(), eventListCacheKey)
	h.writeJSON(w, http.StatusCreated, event)
}

// UpdateEventHandler handles admin event updates.
func (h *BookingHandlers) UpdateEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseEventIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}
	input, ok := h.decodeEventInput(w, r)
	if !ok {
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), eventID, input)
	if err != nil {
		h.writeServiceError(w, "update_event", err)
		return
	}
	h.cache.Invalidate(r.Context(), eventListCacheKey)
	h.writeJSON(w, http.StatusOK, event)
}

// DeleteEventHandler handles admin event deletion.
func (h *BookingHandlers) DeleteEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseEventIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}
	if err := h.service.DeleteEvent(r.Context(), eventID); err != nil {
		h.writeServiceError(w, "delete_event", err)
		return
	}
	h.cache.Invalidate(r.Context(), eventListCacheKey)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Event deleted"})
}

// ListPaidAttendeesHandler returns the paid-user roster for an event.
func (h *BookingHandlers) ListPaidAttendeesHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseEventIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}
	attendees, err := h.service.ListPaidAttendees(r.Context(), eventID)
	if err != nil {
		h.writeServiceError(w, "list_paid_attendees", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"attendees": attendees, "count": len(attendees)})
}

// InitiateBookingHandler starts a booking/payment attempt for the
// authenticated user on the given event.
func (h *BookingHandlers) InitiateBookingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	eventID, err := parseEventIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}

	var req domain.InitiateBookingRequest
	if r.Body != nil {
		// Body is optional; phone enriches the provider's customer record.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	initiation, err := h.service.InitiateBooking(r.Context(), userID, eventID, domain.CustomerContact{Phone: req.Phone})
	if err != nil {
		h.writeServiceError(w, "initiate_booking", err)
		return
	}

	status := http.StatusCreated
	if initiation.ExistingAttempt {
		status = http.StatusOK
	}
	h.writeJSON(w, status, initiation)
}

// ConfirmAttendanceHandler registers the authenticated user on the event's
// meeting after their payment has been verified.
func (h *BookingHandlers) ConfirmAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	eventID, err := parseEventIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}

	if err := h.service.ConfirmAttendance(r.Context(), userID, eventID); err != nil {
		h.writeServiceError(w, "confirm_attendance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "You are registered for this meeting"})
}

// GetBookingHandler returns the ledger entry for an order. Users may read
// their own entries; admins may read any.
func (h *BookingHandlers) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	payment, err := h.service.GetBooking(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, "get_booking", err)
		return
	}

	role, _ := GetUserRole(r.Context())
	if payment.UserID != userID && role != domain.RoleAdmin {
		h.writeError(w, http.StatusNotFound, "Resource not found")
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// PaymentWebhookHandler receives asynchronous payment callbacks from the
// provider. The raw body is read before any decoding because the signature
// covers the exact bytes sent.
func (h *BookingHandlers) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	signature := r.Header.Get("x-webhook-signature")
	timestamp := r.Header.Get("x-webhook-timestamp")

	payment, err := h.service.HandlePaymentCallback(r.Context(), body, signature, timestamp)
	if err != nil {
		switch {
		case errors.Is(err, cashfree.ErrInvalidSignature):
			log.Printf("level=warn component=api endpoint=payment_webhook outcome=reject reason=invalid_signature")
			h.writeError(w, http.StatusUnauthorized, "Invalid webhook signature")
		case errors.Is(err, store.ErrPaymentNotFound):
			h.writeError(w, http.StatusNotFound, "Unknown order")
		default:
			log.Printf("level=error component=api endpoint=payment_webhook msg=\"webhook processing failed\" err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Webhook processing failed")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"order_id": payment.OrderID, "status": payment.Status})
}

// ReconcileHandler triggers one reconciliation pass on demand, outside the
// periodic schedule.
func (h *BookingHandlers) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ReconcilePendingPayments(r.Context())
	if err != nil {
		h.writeServiceError(w, "reconcile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
