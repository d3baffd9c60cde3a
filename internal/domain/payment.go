/**
 * @description
 * This file defines the payment ledger domain models for the booking-service.
 * A Payment row is the single source of truth for one booking/payment attempt,
 * keyed by a caller-generated order id that doubles as the idempotency key
 * towards the payment provider.
 *
 * @notes
 * - Amounts are stored as `int64` in paise (the smallest INR unit), which
 *   avoids floating-point inaccuracies with financial data. Conversion to
 *   decimal rupees happens only inside the Cashfree payload encoder.
 * - Status transitions are monotonic: PENDING -> {SUCCESS, FAILED}. A terminal
 *   row never transitions again; replayed webhooks are no-ops.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses. PENDING is the only non-terminal state.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// Refund statuses.
const (
	RefundStatusNone      = "NONE"
	RefundStatusPending   = "PENDING"
	RefundStatusProcessed = "PROCESSED"
)

// Payment is the ledger record for a single booking/payment attempt.
// This struct maps directly to the `payments` table in the database.
type Payment struct {
	ID                uuid.UUID  `json:"id"`
	OrderID           string     `json:"order_id"`
	UserID            uuid.UUID  `json:"user_id"`
	EventID           uuid.UUID  `json:"event_id"`
	Amount            int64      `json:"amount"` // in paise
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	ProviderPaymentID *string    `json:"provider_payment_id,omitempty"`
	PaymentMethod     *string    `json:"payment_method,omitempty"`
	TransactionTime   *time.Time `json:"transaction_time,omitempty"`
	RefundStatus      string     `json:"refund_status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the payment can no longer change status.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// CustomerContact carries the contact details forwarded to the payment
// provider when an order is created. Email comes from the verified identity;
// phone is supplied by the client.
type CustomerContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// InitiateBookingRequest is the DTO for incoming booking initiation requests.
type InitiateBookingRequest struct {
	Phone string `json:"phone"`
}

// BookingInitiation is returned to the client after an order has been created
// with the payment provider and the PENDING ledger entry recorded. The
// provider payload is what the client hands to the checkout SDK.
type BookingInitiation struct {
	OrderID         string          `json:"order_id"`
	Status          string          `json:"status"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	ProviderOrder   map[string]any  `json:"provider_order"`
	ExistingAttempt bool            `json:"existing_attempt"`
}

// PaymentCallback is the verified, provider-agnostic view of a payment
// webhook after its signature has been checked by the gateway adapter.
type PaymentCallback struct {
	OrderID       string
	Paid          bool
	PaymentID     string
	PaymentMethod string
	EventTime     time.Time
}

// TerminalPaymentEvent is the message payload published to RabbitMQ when a
// ledger entry reaches a terminal state.
type TerminalPaymentEvent struct {
	OrderID       string    `json:"order_id"`
	UserID        uuid.UUID `json:"user_id"`
	UserEmail     string    `json:"user_email"`
	UserName      string    `json:"user_name"`
	EventID       uuid.UUID `json:"event_id"`
	EventTitle    string    `json:"event_title"`
	MeetLink      string    `json:"meet_link,omitempty"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaidAttendee pairs a SUCCESS ledger entry with the user who paid.
// Used by the admin listing of paid users per event.
type PaidAttendee struct {
	Payment Payment `json:"payment"`
	User    User    `json:"user"`
}

// ReconcileResult summarizes one reconciliation pass over stuck PENDING orders.
type ReconcileResult struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}
