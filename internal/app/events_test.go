package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soulsadhna/booking-service/internal/domain"
)

type eventRepoStub struct {
	bookingRepoStub

	createEventErr error
	createdEvent   *domain.Event
	updatedEvent   *domain.Event
	deletedEventID uuid.UUID
}

func (s *eventRepoStub) CreateEvent(ctx context.Context, event *domain.Event) error {
	if s.createEventErr != nil {
		return s.createEventErr
	}
	s.createdEvent = event
	return nil
}

func (s *eventRepoStub) UpdateEvent(ctx context.Context, event *domain.Event) error {
	s.updatedEvent = event
	return nil
}

func (s *eventRepoStub) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	s.deletedEventID = eventID
	return nil
}

func testEventInput() domain.EventInput {
	start := time.Date(2026, 9, 10, 4, 30, 0, 0, time.UTC)
	return domain.EventInput{
		Title:       "Morning Meditation",
		Description: "Guided session",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Price:       49900,
	}
}

func TestCreateEvent_RecordsSyncedEvent(t *testing.T) {
	repo := &eventRepoStub{}
	calendar := &calendarStub{}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	event, err := svc.CreateEvent(context.Background(), uuid.New(), testEventInput())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if event.CalendarEventID != "cal_evt_123" {
		t.Fatalf("expected meeting id to be recorded, got %q", event.CalendarEventID)
	}
	if event.CalendarStatus != domain.CalendarStatusSynced {
		t.Fatalf("expected synced status, got %s", event.CalendarStatus)
	}
	if event.MeetLink == "" {
		t.Fatal("expected the join link to be recorded")
	}
	if repo.createdEvent == nil {
		t.Fatal("expected the event row to be written")
	}
}

func TestCreateEvent_CalendarFailureWritesNothing(t *testing.T) {
	repo := &eventRepoStub{}
	calendar := &calendarStub{createMeetingErr: errors.New("quota exceeded")}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	_, err := svc.CreateEvent(context.Background(), uuid.New(), testEventInput())
	if err == nil {
		t.Fatal("expected the meeting failure to surface")
	}
	if repo.createdEvent != nil {
		t.Fatal("no local row may exist without its meeting")
	}
}

func TestCreateEvent_InsertFailureDeletesMeeting(t *testing.T) {
	repo := &eventRepoStub{createEventErr: errors.New("connection reset")}
	calendar := &calendarStub{}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	_, err := svc.CreateEvent(context.Background(), uuid.New(), testEventInput())
	if err == nil {
		t.Fatal("expected the insert failure to surface")
	}
	if !calendar.deleteCalled {
		t.Fatal("the orphan meeting must be compensated away")
	}
}

func TestCreateEvent_RejectsInvertedWindow(t *testing.T) {
	input := testEventInput()
	input.EndTime = input.StartTime.Add(-time.Minute)
	svc := newTestService(&eventRepoStub{}, &gatewayStub{}, &calendarStub{}, &publisherStub{}, true)

	_, err := svc.CreateEvent(context.Background(), uuid.New(), input)
	if !errors.Is(err, ErrInvalidEventTimes) {
		t.Fatalf("expected ErrInvalidEventTimes, got %v", err)
	}
}

func TestUpdateEvent_CalendarFailureFlagsEvent(t *testing.T) {
	repo := &eventRepoStub{}
	repo.event = testEvent()
	calendar := &calendarStub{updateErr: errors.New("backend error")}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	updated, err := svc.UpdateEvent(context.Background(), repo.event.ID, testEventInput())
	if err != nil {
		t.Fatalf("a calendar sync failure must not reject the update, got %v", err)
	}
	if updated.CalendarStatus != domain.CalendarStatusFailed {
		t.Fatalf("expected the divergence to be flagged, got %s", updated.CalendarStatus)
	}
	if repo.updatedEvent == nil {
		t.Fatal("expected the local update to be persisted")
	}
}

func TestDeleteEvent_RemovesMeetingFirst(t *testing.T) {
	repo := &eventRepoStub{}
	repo.event = testEvent()
	calendar := &calendarStub{}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	if err := svc.DeleteEvent(context.Background(), repo.event.ID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !calendar.deleteCalled {
		t.Fatal("expected the meeting to be deleted")
	}
	if repo.deletedEventID != repo.event.ID {
		t.Fatal("expected the local row to be deleted")
	}
}

func TestDeleteEvent_CalendarFailureKeepsRow(t *testing.T) {
	repo := &eventRepoStub{}
	repo.event = testEvent()
	calendar := &calendarStub{deleteErr: errors.New("backend error")}
	svc := newTestService(repo, &gatewayStub{}, calendar, &publisherStub{}, true)

	if err := svc.DeleteEvent(context.Background(), repo.event.ID); err == nil {
		t.Fatal("expected the calendar failure to surface")
	}
	if repo.deletedEventID != uuid.Nil {
		t.Fatal("the local row must survive when the meeting cannot be removed")
	}
}
