/**
 * @description
 * This file defines the event domain models for the booking-service. An Event
 * is a bookable session backed by a meeting resource on the external calendar
 * provider (a Google Meet link on the primary calendar).
 *
 * @notes
 * - Start/end instants are `time.Time` in UTC. The ad-hoc "DD-MM-YYYY" +
 *   "HH:mm" wire format used by admin clients is converted once at the API
 *   boundary (see internal/api/datetime.go) and never stored.
 * - CalendarEventID is empty only when CalendarStatus is "failed": an event
 *   must never exist locally without either a calendar resource or an
 *   explicit failed marker.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Calendar sync states for an event's meeting resource.
const (
	CalendarStatusSynced = "synced"
	CalendarStatusFailed = "failed"
)

// Event represents a bookable session. This struct maps directly to the
// `events` table in the database.
type Event struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Price           int64     `json:"price"` // in paise
	MeetLink        string    `json:"meet_link,omitempty"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CalendarStatus  string    `json:"calendar_status"`
	CreatedBy       uuid.UUID `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EventInput carries the normalized fields for creating or updating an event.
// Instants are already UTC by the time this struct exists.
type EventInput struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Price       int64 // in paise
}

// CreateEventRequest is the DTO for incoming admin event creation/update
// requests. Date and time fields use the legacy client wire format and are
// parsed at the boundary.
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`      // "DD-MM-YYYY"
	StartTime   string `json:"startTime"` // "HH:mm"
	EndTime     string `json:"endTime"`   // "HH:mm"
	Price       int64  `json:"price"`     // in paise
}
