package domain

import "github.com/google/uuid"

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the simplified, read-only view of a user consumed by the
// booking-service. Identity is established upstream; this service only needs
// the id for ledger association and the email for attendee registration.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}
