/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL queries for the events and payments
 * tables, including the two concurrency-critical pieces: the partial unique
 * index that guards the one-PENDING-per-(user,event) invariant and the
 * conditional UPDATE that makes terminal transitions atomic.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soulsadhna/booking-service/internal/domain"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrEventNotFound           = errors.New("event not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrDuplicatePendingPayment = errors.New("a pending payment already exists for this user and event")
	ErrPaymentAlreadyTerminal  = errors.New("payment is already in a terminal state")
)

// pendingPaymentIndexName is the partial unique index on payments
// (user_id, event_id) WHERE status = 'PENDING'. A violation means a
// concurrent initiation won the race.
const pendingPaymentIndexName = "payments_user_event_pending_uniq"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, name, role FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.Name, &user.Role)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateEvent inserts a new event record.
func (r *PostgresRepository) CreateEvent(ctx context.Context, event *domain.Event) error {
	query := `
		INSERT INTO events (id, title, description, start_time, end_time, price, meet_link, calendar_event_id, calendar_status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		event.ID, event.Title, event.Description, event.StartTime, event.EndTime,
		event.Price, event.MeetLink, event.CalendarEventID, event.CalendarStatus, event.CreatedBy,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
}

// FindEventByID retrieves a single event by its ID.
func (r *PostgresRepository) FindEventByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	var e domain.Event
	query := `
		SELECT id, title, description, start_time, end_time, price, meet_link, calendar_event_id, calendar_status, created_by, created_at, updated_at
		FROM events WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, eventID).Scan(
		&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.Price,
		&e.MeetLink, &e.CalendarEventID, &e.CalendarStatus, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListEvents returns all events, newest start first.
func (r *PostgresRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	query := `
		SELECT id, title, description, start_time, end_time, price, meet_link, calendar_event_id, calendar_status, created_by, created_at, updated_at
		FROM events ORDER BY start_time DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime, &e.Price,
			&e.MeetLink, &e.CalendarEventID, &e.CalendarStatus, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpdateEvent persists admin edits to an event record.
func (r *PostgresRepository) UpdateEvent(ctx context.Context, event *domain.Event) error {
	query := `
		UPDATE events
		SET title = $2, description = $3, start_time = $4, end_time = $5, price = $6,
		    meet_link = $7, calendar_event_id = $8, calendar_status = $9, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		event.ID, event.Title, event.Description, event.StartTime, event.EndTime,
		event.Price, event.MeetLink, event.CalendarEventID, event.CalendarStatus,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteEvent removes an event record. Ledger rows referencing the event are
// kept for audit.
func (r *PostgresRepository) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// CreatePayment inserts a new PENDING ledger entry. The partial unique index
// on (user_id, event_id) WHERE status = 'PENDING' turns a racing second
// initiation into ErrDuplicatePendingPayment instead of a second order.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, user_id, event_id, amount, currency, status, refund_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.ID, payment.OrderID, payment.UserID, payment.EventID,
		payment.Amount, payment.Currency, payment.Status, payment.RefundStatus,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == pendingPaymentIndexName {
			return ErrDuplicatePendingPayment
		}
		return err
	}
	return nil
}

const paymentColumns = `id, order_id, user_id, event_id, amount, currency, status, provider_payment_id, payment_method, transaction_time, refund_status, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.EventID, &p.Amount, &p.Currency, &p.Status,
		&p.ProviderPaymentID, &p.PaymentMethod, &p.TransactionTime, &p.RefundStatus,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPaymentByOrderID retrieves a ledger entry by its order id.
func (r *PostgresRepository) FindPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindPendingPaymentByUserAndEvent returns the open attempt for a pair, if any.
func (r *PostgresRepository) FindPendingPaymentByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 AND event_id = $2 AND status = 'PENDING'`
	p, err := scanPayment(r.db.QueryRow(ctx, query, userID, eventID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindSuccessfulPaymentByUserAndEvent returns the SUCCESS entry for a pair, if any.
func (r *PostgresRepository) FindSuccessfulPaymentByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1 AND event_id = $2 AND status = 'SUCCESS'
		ORDER BY updated_at DESC
		LIMIT 1
	`
	p, err := scanPayment(r.db.QueryRow(ctx, query, userID, eventID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// MarkPaymentTerminal transitions a PENDING entry to a terminal status. The
// WHERE clause on the current status makes a webhook delivery and a
// reconciliation poll racing on the same order collapse into one effective
// transition.
func (r *PostgresRepository) MarkPaymentTerminal(ctx context.Context, orderID string, params TerminalUpdateParams) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2,
		    provider_payment_id = NULLIF($3, ''),
		    payment_method = NULLIF($4, ''),
		    transaction_time = $5,
		    updated_at = now()
		WHERE order_id = $1 AND status = 'PENDING'
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, query,
		orderID, params.Status, params.ProviderPaymentID, params.PaymentMethod, params.TransactionTime,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish "already terminal" from "no such order".
			if _, findErr := r.FindPaymentByOrderID(ctx, orderID); findErr != nil {
				return nil, findErr
			}
			return nil, ErrPaymentAlreadyTerminal
		}
		return nil, err
	}
	return p, nil
}

// ListPendingPaymentsOlderThan returns PENDING entries created before the
// cutoff, oldest first. These are the reconciliation candidates.
func (r *PostgresRepository) ListPendingPaymentsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.UserID, &p.EventID, &p.Amount, &p.Currency, &p.Status,
			&p.ProviderPaymentID, &p.PaymentMethod, &p.TransactionTime, &p.RefundStatus,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListPaidAttendeesByEvent returns SUCCESS payments for an event joined with
// the paying users.
func (r *PostgresRepository) ListPaidAttendeesByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.PaidAttendee, error) {
	query := `
		SELECT p.id, p.order_id, p.user_id, p.event_id, p.amount, p.currency, p.status,
		       p.provider_payment_id, p.payment_method, p.transaction_time, p.refund_status,
		       p.created_at, p.updated_at,
		       u.id, u.email, u.name, u.role
		FROM payments p
		JOIN users u ON u.id = p.user_id
		WHERE p.event_id = $1 AND p.status = 'SUCCESS'
		ORDER BY p.transaction_time ASC NULLS LAST
	`
	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attendees []domain.PaidAttendee
	for rows.Next() {
		var a domain.PaidAttendee
		if err := rows.Scan(
			&a.Payment.ID, &a.Payment.OrderID, &a.Payment.UserID, &a.Payment.EventID,
			&a.Payment.Amount, &a.Payment.Currency, &a.Payment.Status,
			&a.Payment.ProviderPaymentID, &a.Payment.PaymentMethod, &a.Payment.TransactionTime,
			&a.Payment.RefundStatus, &a.Payment.CreatedAt, &a.Payment.UpdatedAt,
			&a.User.ID, &a.User.Email, &a.User.Name, &a.User.Role,
		); err != nil {
			return nil, err
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}
