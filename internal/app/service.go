/**
 * @description
 * This file contains the core business logic for the booking-service. The
 * `Service` struct drives a booking attempt from initiation through the
 * webhook-driven terminal transition to calendar attendee registration,
 * coordinating the payments ledger, the Cashfree gateway and the calendar
 * gateway without leaving them inconsistent under partial failure.
 *
 * Key invariants:
 * - The gateway order is created before the ledger entry, so a gateway
 *   failure leaves no orphan PENDING row.
 * - Terminal transitions go through the store's conditional update, so
 *   webhook replays and reconciliation races collapse into one transition.
 * - Attendee registration happens only after SUCCESS is recorded (unless the
 *   payment requirement is explicitly disabled by configuration), and a
 *   registration failure never rolls the payment back.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/cashfree, pkg/gcalendar, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/soulsadhna/booking-service/internal/domain"
	"github.com/soulsadhna/booking-service/internal/store"
	"github.com/soulsadhna/booking-service/pkg/cashfree"
	"github.com/soulsadhna/booking-service/pkg/gcalendar"
	"github.com/soulsadhna/booking-service/pkg/rabbitmq"
)

const bookingCurrency = "INR"

var (
	// ErrPaymentRequired means attendance was requested without a SUCCESS
	// ledger entry for the (user, event) pair.
	ErrPaymentRequired = errors.New("payment required to book this event")

	// ErrAttendeeRegistrationPending means payment is recorded but the
	// calendar registration failed; the caller retries registration, never
	// the payment.
	ErrAttendeeRegistrationPending = errors.New("payment recorded; attendee registration pending")

	// ErrMeetingUnavailable means the event has no calendar resource to
	// register attendees on.
	ErrMeetingUnavailable = errors.New("event has no calendar meeting resource")
)

// PaymentGateway is the contract with the payment processor. Order creation
// takes the caller-generated order id as its idempotency key; webhook
// verification is a pure authenticity check executed before any state change.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, orderID string, amountPaise int64, currency string, customer cashfree.Customer, returnURL, notifyURL string) (*cashfree.Order, error)
	GetOrder(ctx context.Context, orderID string) (*cashfree.Order, error)
	VerifyWebhook(body []byte, signature, timestamp string) (*cashfree.WebhookEvent, error)
}

// CalendarGateway is the contract with the calendar/meeting provider. All
// operations are safe to retry; AddAttendee is a set union, not an append.
type CalendarGateway interface {
	CreateMeeting(ctx context.Context, title, description string, start, end time.Time, requestID string) (*gcalendar.Meeting, error)
	UpdateMeeting(ctx context.Context, meetingID, title, description string, start, end time.Time) error
	DeleteMeeting(ctx context.Context, meetingID string) error
	AddAttendee(ctx context.Context, meetingID, email string) error
}

// Service provides the core business logic for event bookings.
type Service struct {
	repo     store.Repository
	payments PaymentGateway
	calendar CalendarGateway
	producer rabbitmq.Publisher

	exchange       string
	returnURL      string
	notifyURL      string
	requirePayment bool

	reconcilePendingAge time.Duration
	reconcileBatchLimit int
}

// NewService creates a new booking service instance. requirePayment gates
// attendance confirmation on a SUCCESS ledger entry; disabling it is an
// explicit, visible policy choice.
func NewService(repo store.Repository, payments PaymentGateway, calendar CalendarGateway, producer rabbitmq.Publisher, exchange, returnURL, notifyURL string, requirePayment bool) *Service {
	return &Service{
		repo:                repo,
		payments:            payments,
		calendar:            calendar,
		producer:            producer,
		exchange:            exchange,
		returnURL:           returnURL,
		notifyURL:           notifyURL,
		requirePayment:      requirePayment,
		reconcilePendingAge: 5 * time.Minute,
		reconcileBatchLimit: 100,
	}
}

// ConfigureReconciliation overrides the reconciliation eligibility age and
// batch size.
func (s *Service) ConfigureReconciliation(pendingAge time.Duration, batchLimit int) {
	if pendingAge > 0 {
		s.reconcilePendingAge = pendingAge
	}
	if batchLimit > 0 {
		s.reconcileBatchLimit = batchLimit
	}
}

const orderSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newOrderID generates a globally-unique order id: a time-based prefix plus a
// random base36 suffix, so no central counter is needed.
func newOrderID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to uuid entropy; order ids must never collide.
		copy(buf, uuid.New().NodeID())
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = orderSuffixAlphabet[int(b)%len(orderSuffixAlphabet)]
	}
	return fmt.Sprintf("order_%d_%s", time.Now().UnixMilli(), suffix)
}

// InitiateBooking starts a booking/payment attempt for a user and event.
// If the user already holds a PENDING attempt for the event, that attempt is
// returned instead of creating a second order.
func (s *Service) InitiateBooking(ctx context.Context, userID, eventID uuid.UUID, contact domain.CustomerContact) (*domain.BookingInitiation, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	event, err := s.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}

	if existing, err := s.repo.FindPendingPaymentByUserAndEvent(ctx, userID, eventID); err == nil {
		return s.resumePendingAttempt(ctx, existing)
	} else if !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, fmt.Errorf("failed to check for pending payment: %w", err)
	}

	if contact.Email == "" {
		contact.Email = user.Email
	}
	if contact.Name == "" {
		contact.Name = user.Name
	}

	orderID := newOrderID()
	order, err := s.payments.CreateOrder(ctx, orderID, event.Price, bookingCurrency, cashfree.Customer{
		ID:    userID.String(),
		Name:  contact.Name,
		Email: contact.Email,
		Phone: contact.Phone,
	}, s.returnURL, s.notifyURL)
	if err != nil {
		// No ledger entry has been written yet; the attempt aborts cleanly.
		return nil, fmt.Errorf("payment order creation failed: %w", err)
	}

	payment := &domain.Payment{
		ID:           uuid.New(),
		OrderID:      orderID,
		UserID:       userID,
		EventID:      eventID,
		Amount:       event.Price,
		Currency:     bookingCurrency,
		Status:       domain.PaymentStatusPending,
		RefundStatus: domain.RefundStatusNone,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrDuplicatePendingPayment) {
			// A concurrent initiation won the race; its order is the one the
			// client must pay. The order created above is never paid and
			// expires at the provider.
			existing, findErr := s.repo.FindPendingPaymentByUserAndEvent(ctx, userID, eventID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load concurrent pending payment: %w", findErr)
			}
			return s.resumePendingAttempt(ctx, existing)
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	log.Printf("level=info component=service flow=booking_initiate msg=\"order created\" order_id=%s user_id=%s event_id=%s amount=%d", orderID, userID, eventID, event.Price)

	return &domain.BookingInitiation{
		OrderID:       orderID,
		Status:        payment.Status,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		ProviderOrder: order.Raw,
	}, nil
}

// resumePendingAttempt re-fetches the provider payload for an open attempt so
// the client can resume checkout with the original order.
func (s *Service) resumePendingAttempt(ctx context.Context, payment *domain.Payment) (*domain.BookingInitiation, error) {
	order, err := s.payments.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh pending order %s: %w", payment.OrderID, err)
	}
	return &domain.BookingInitiation{
		OrderID:         payment.OrderID,
		Status:          payment.Status,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		ProviderOrder:   order.Raw,
		ExistingAttempt: true,
	}, nil
}

// HandlePaymentCallback processes an asynchronous payment webhook. Delivery
// is at-least-once and possibly out of order: a callback for an already
// terminal entry is acknowledged without re-applying any side effect.
func (s *Service) HandlePaymentCallback(ctx context.Context, body []byte, signature, timestamp string) (*domain.Payment, error) {
	event, err := s.payments.VerifyWebhook(body, signature, timestamp)
	if err != nil {
		return nil, err
	}

	orderID := event.Data.Order.OrderID
	payment, err := s.repo.FindPaymentByOrderID(ctx, orderID)
	if err != nil {
		// Entries are created during initiation only; webhook data is never
		// trusted to fabricate one.
		return nil, fmt.Errorf("callback for unknown order %s: %w", orderID, err)
	}

	if payment.IsTerminal() {
		log.Printf("level=info component=service flow=payment_callback msg=\"replay for terminal payment acknowledged\" order_id=%s status=%s", orderID, payment.Status)
		return payment, nil
	}

	status := domain.PaymentStatusFailed
	if event.Paid() {
		status = domain.PaymentStatusSuccess
	}

	txTime := time.Now().UTC()
	if parsed, parseErr := time.Parse(time.RFC3339, event.Data.Payment.PaymentTime); parseErr == nil {
		txTime = parsed.UTC()
	}

	updated, err := s.repo.MarkPaymentTerminal(ctx, orderID, store.TerminalUpdateParams{
		Status:            status,
		ProviderPaymentID: event.Data.Payment.CfPaymentID.String(),
		PaymentMethod:     event.Data.Payment.PaymentGroup,
		TransactionTime:   txTime,
	})
	if err != nil {
		if errors.Is(err, store.ErrPaymentAlreadyTerminal) {
			// A concurrent delivery or reconcile pass transitioned first.
			current, findErr := s.repo.FindPaymentByOrderID(ctx, orderID)
			if findErr != nil {
				return nil, findErr
			}
			return current, nil
		}
		return nil, fmt.Errorf("failed to finalize payment %s: %w", orderID, err)
	}

	log.Printf("level=info component=service flow=payment_callback msg=\"payment finalized\" order_id=%s status=%s payment_id=%s", orderID, updated.Status, event.Data.Payment.CfPaymentID)
	s.publishTerminalEvent(ctx, updated)

	return updated, nil
}

// ConfirmAttendance registers a user on the event's meeting resource. The
// SUCCESS precondition applies unless payment enforcement is disabled by
// configuration. The gateway call is a set union, so retries after transient
// failures leave exactly one attendee entry.
func (s *Service) ConfirmAttendance(ctx context.Context, userID, eventID uuid.UUID) error {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	event, err := s.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to find event: %w", err)
	}
	if event.CalendarEventID == "" {
		return ErrMeetingUnavailable
	}

	if s.requirePayment {
		if _, err := s.repo.FindSuccessfulPaymentByUserAndEvent(ctx, userID, eventID); err != nil {
			if errors.Is(err, store.ErrPaymentNotFound) {
				return ErrPaymentRequired
			}
			return fmt.Errorf("failed to check payment status: %w", err)
		}
	}

	if err := s.calendar.AddAttendee(ctx, event.CalendarEventID, user.Email); err != nil {
		// The payment stands; only registration is outstanding.
		log.Printf("level=warn component=service flow=confirm_attendance msg=\"attendee registration failed\" user_id=%s event_id=%s err=%v", userID, eventID, err)
		return fmt.Errorf("%w: %v", ErrAttendeeRegistrationPending, err)
	}

	log.Printf("level=info component=service flow=confirm_attendance msg=\"attendee registered\" user_id=%s event_id=%s", userID, eventID)

	if s.producer != nil {
		if err := s.producer.Publish(ctx, s.exchange, "booking.attendee.registered", domain.TerminalPaymentEvent{
			UserID:     userID,
			UserEmail:  user.Email,
			UserName:   user.Name,
			EventID:    eventID,
			EventTitle: event.Title,
			MeetLink:   event.MeetLink,
			Status:     domain.PaymentStatusSuccess,
			Timestamp:  time.Now().UTC(),
		}); err != nil {
			log.Printf("level=warn component=service flow=confirm_attendance msg=\"event publish failed\" event_id=%s err=%v", eventID, err)
		}
	}

	return nil
}

// GetBooking returns the ledger entry for an order id. Clients poll this
// after checkout instead of trusting the redirect.
func (s *Service) GetBooking(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.FindPaymentByOrderID(ctx, orderID)
}

// publishTerminalEvent fans out a terminal payment transition for email
// notification. Publishing is best-effort: a broker failure never affects
// the recorded transition.
func (s *Service) publishTerminalEvent(ctx context.Context, payment *domain.Payment) {
	if s.producer == nil {
		return
	}

	evt := domain.TerminalPaymentEvent{
		OrderID:   payment.OrderID,
		UserID:    payment.UserID,
		EventID:   payment.EventID,
		Amount:    payment.Amount,
		Status:    payment.Status,
		Timestamp: time.Now().UTC(),
	}
	if payment.ProviderPaymentID != nil {
		evt.PaymentID = *payment.ProviderPaymentID
	}
	if payment.PaymentMethod != nil {
		evt.PaymentMethod = *payment.PaymentMethod
	}
	if user, err := s.repo.FindUserByID(ctx, payment.UserID); err == nil {
		evt.UserEmail = user.Email
		evt.UserName = user.Name
	}
	if event, err := s.repo.FindEventByID(ctx, payment.EventID); err == nil {
		evt.EventTitle = event.Title
		evt.MeetLink = event.MeetLink
	}

	routingKey := "payment.status.failed"
	if payment.Status == domain.PaymentStatusSuccess {
		routingKey = "payment.status.success"
	}
	if err := s.producer.Publish(ctx, s.exchange, routingKey, evt); err != nil {
		log.Printf("level=warn component=service flow=payment_callback msg=\"event publish failed\" order_id=%s routing_key=%s err=%v", payment.OrderID, routingKey, err)
	}
}
