/**
 * @description
 * Admin-facing event lifecycle operations. Events are backed by a meeting
 * resource on the external calendar; the calendar call happens first on
 * create and delete so a local row never points at a resource that was
 * never made, and a local row is compensated away if its insert fails
 * after the meeting exists.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/soulsadhna/booking-service/internal/domain"
)

// ErrInvalidEventTimes means the event's end does not come after its start.
var ErrInvalidEventTimes = errors.New("event end time must be after start time")

// ErrInvalidEventPrice means the price is negative.
var ErrInvalidEventPrice = errors.New("event price must not be negative")

func validateEventInput(input domain.EventInput) error {
	if !input.EndTime.After(input.StartTime) {
		return ErrInvalidEventTimes
	}
	if input.Price < 0 {
		return ErrInvalidEventPrice
	}
	return nil
}

// CreateEvent provisions the calendar meeting and records the event. The
// meeting comes first: if it cannot be created the request fails with no
// local row; if the insert fails afterwards the meeting is deleted again.
func (s *Service) CreateEvent(ctx context.Context, adminID uuid.UUID, input domain.EventInput) (*domain.Event, error) {
	if err := validateEventInput(input); err != nil {
		return nil, err
	}

	eventID := uuid.New()
	meeting, err := s.calendar.CreateMeeting(ctx, input.Title, input.Description, input.StartTime, input.EndTime, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar meeting: %w", err)
	}

	event := &domain.Event{
		ID:              eventID,
		Title:           input.Title,
		Description:     input.Description,
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
		Price:           input.Price,
		MeetLink:        meeting.JoinLink,
		CalendarEventID: meeting.ID,
		CalendarStatus:  domain.CalendarStatusSynced,
		CreatedBy:       adminID,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		// Compensate so the calendar does not accumulate orphan meetings.
		if delErr := s.calendar.DeleteMeeting(ctx, meeting.ID); delErr != nil {
			log.Printf("level=error component=service flow=event_create msg=\"CRITICAL: orphan calendar meeting after insert failure\" meeting_id=%s err=%v", meeting.ID, delErr)
		}
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	log.Printf("level=info component=service flow=event_create msg=\"event created\" event_id=%s meeting_id=%s", event.ID, meeting.ID)
	return event, nil
}

// UpdateEvent applies the new details locally and pushes them to the calendar
// meeting. A calendar failure keeps the local update but flags the event
// "failed" so the divergence is visible and a later update can re-sync it.
func (s *Service) UpdateEvent(ctx context.Context, eventID uuid.UUID, input domain.EventInput) (*domain.Event, error) {
	if err := validateEventInput(input); err != nil {
		return nil, err
	}

	event, err := s.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	event.Title = input.Title
	event.Description = input.Description
	event.StartTime = input.StartTime.UTC()
	event.EndTime = input.EndTime.UTC()
	event.Price = input.Price
	event.UpdatedAt = time.Now().UTC()

	if event.CalendarEventID != "" {
		if calErr := s.calendar.UpdateMeeting(ctx, event.CalendarEventID, event.Title, event.Description, event.StartTime, event.EndTime); calErr != nil {
			log.Printf("level=warn component=service flow=event_update msg=\"calendar sync failed; flagging event\" event_id=%s err=%v", eventID, calErr)
			event.CalendarStatus = domain.CalendarStatusFailed
		} else {
			event.CalendarStatus = domain.CalendarStatusSynced
		}
	}

	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return event, nil
}

// DeleteEvent removes the calendar meeting, then the local row. A meeting
// already gone at the provider is treated as deleted.
func (s *Service) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return err
	}

	if event.CalendarEventID != "" {
		if err := s.calendar.DeleteMeeting(ctx, event.CalendarEventID); err != nil {
			return fmt.Errorf("failed to delete calendar meeting: %w", err)
		}
	}

	if err := s.repo.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	log.Printf("level=info component=service flow=event_delete msg=\"event deleted\" event_id=%s", eventID)
	return nil
}

// GetEvent returns one event by id.
func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	return s.repo.FindEventByID(ctx, eventID)
}

// ListEvents returns all events, soonest first.
func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

// ListPaidAttendees returns the users holding a SUCCESS ledger entry for the
// event, for the admin roster view.
func (s *Service) ListPaidAttendees(ctx context.Context, eventID uuid.UUID) ([]domain.PaidAttendee, error) {
	if _, err := s.repo.FindEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	attendees, err := s.repo.ListPaidAttendeesByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if attendees == nil {
		attendees = []domain.PaidAttendee{}
	}
	return attendees, nil
}
