/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the booking-service. By defining
 * an interface, we decouple the booking orchestrator from the specific
 * database implementation (PostgreSQL), making the code easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/soulsadhna/booking-service/internal/domain"
)

// TerminalUpdateParams carries the fields stamped onto a ledger entry when it
// transitions out of PENDING.
type TerminalUpdateParams struct {
	Status            string
	ProviderPaymentID string
	PaymentMethod     string
	TransactionTime   time.Time
}

// Repository defines the set of methods for interacting with the database.
// The store is the single writer of its own rows; the orchestrator never
// performs read-then-write status changes.
type Repository interface {
	// User methods (read-only; identity is owned upstream)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Event methods
	CreateEvent(ctx context.Context, event *domain.Event) error
	FindEventByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, event *domain.Event) error
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error

	// Payment ledger methods
	// CreatePayment inserts a PENDING entry; it returns
	// ErrDuplicatePendingPayment when the (user, event) pair already holds a
	// PENDING row (enforced by a partial unique index, not a read check).
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	FindPendingPaymentByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Payment, error)
	FindSuccessfulPaymentByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Payment, error)
	// MarkPaymentTerminal conditionally transitions a PENDING entry to a
	// terminal status and returns the updated row. It returns
	// ErrPaymentAlreadyTerminal when the row left PENDING first (webhook
	// replay or a concurrent reconcile pass).
	MarkPaymentTerminal(ctx context.Context, orderID string, params TerminalUpdateParams) (*domain.Payment, error)
	ListPendingPaymentsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error)
	ListPaidAttendeesByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.PaidAttendee, error)
}
