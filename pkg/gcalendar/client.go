/**
 * @description
 * This package provides a client for the Google Calendar v3 REST API, scoped
 * to what the booking-service needs: creating and maintaining a calendar
 * event with an attached Meet conference, and registering attendees on it.
 *
 * Key behaviours:
 * - AddAttendee is a set-union operation: adding an email that is already on
 *   the attendee list is a no-op, so the call is safe to retry.
 * - DeleteMeeting tolerates a missing remote resource, so a retried delete
 *   or a compensation step cannot fail on "already gone".
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package gcalendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMeetingNotFound is returned when the remote calendar resource does not
// exist (deleted out-of-band or never created).
var ErrMeetingNotFound = errors.New("gcalendar: meeting not found")

// Client is a client for the Google Calendar API.
type Client struct {
	BaseURL     string
	CalendarID  string
	AccessToken string
	HTTPClient  *http.Client

	maxRetries int
	backoff    time.Duration
}

// NewClient creates a new calendar client. calendarID is usually "primary".
func NewClient(baseURL, calendarID, accessToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		CalendarID:  calendarID,
		AccessToken: accessToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

// Meeting identifies a provisioned calendar event and its join link.
type Meeting struct {
	ID       string
	JoinLink string
}

type attendee struct {
	Email string `json:"email"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime"`
}

type conferenceSolutionKey struct {
	Type string `json:"type"`
}

type conferenceCreateRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey conferenceSolutionKey `json:"conferenceSolutionKey"`
}

type conferenceData struct {
	CreateRequest *conferenceCreateRequest `json:"createRequest,omitempty"`
}

type calendarEvent struct {
	ID             string          `json:"id,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Description    string          `json:"description,omitempty"`
	Start          *eventDateTime  `json:"start,omitempty"`
	End            *eventDateTime  `json:"end,omitempty"`
	Attendees      []attendee      `json:"attendees,omitempty"`
	HangoutLink    string          `json:"hangoutLink,omitempty"`
	ConferenceData *conferenceData `json:"conferenceData,omitempty"`
}

// CreateMeeting provisions a calendar event with a Meet conference attached
// and returns its id and join link. requestID deduplicates conference
// creation on the provider side.
func (c *Client) CreateMeeting(ctx context.Context, title, description string, start, end time.Time, requestID string) (*Meeting, error) {
	payload := calendarEvent{
		Summary:     title,
		Description: description,
		Start:       &eventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:         &eventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
	}
	payload.ConferenceData = &conferenceData{
		CreateRequest: &conferenceCreateRequest{
			RequestID:             requestID,
			ConferenceSolutionKey: conferenceSolutionKey{Type: "hangoutsMeet"},
		},
	}

	var created calendarEvent
	path := fmt.Sprintf("/calendars/%s/events?conferenceDataVersion=1", url.PathEscape(c.CalendarID))
	if err := c.do(ctx, http.MethodPost, path, payload, &created); err != nil {
		return nil, err
	}
	return &Meeting{ID: created.ID, JoinLink: created.HangoutLink}, nil
}

// UpdateMeeting patches the title, description and schedule of an existing
// calendar event. Patching with identical fields is a no-op, so retries are safe.
func (c *Client) UpdateMeeting(ctx context.Context, meetingID, title, description string, start, end time.Time) error {
	payload := calendarEvent{
		Summary:     title,
		Description: description,
		Start:       &eventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:         &eventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
	}
	return c.do(ctx, http.MethodPatch, c.eventPath(meetingID), payload, nil)
}

// DeleteMeeting removes the calendar event. A missing remote resource is
// treated as success so the operation can be retried or used as compensation.
func (c *Client) DeleteMeeting(ctx context.Context, meetingID string) error {
	err := c.do(ctx, http.MethodDelete, c.eventPath(meetingID), nil, nil)
	if errors.Is(err, ErrMeetingNotFound) {
		return nil
	}
	return err
}

// AddAttendee registers an email on the meeting's attendee list. The list is
// read first and the email merged as a set union, so repeated calls for the
// same attendee leave exactly one entry.
func (c *Client) AddAttendee(ctx context.Context, meetingID, email string) error {
	var current calendarEvent
	if err := c.do(ctx, http.MethodGet, c.eventPath(meetingID), nil, &current); err != nil {
		return err
	}

	for _, a := range current.Attendees {
		if strings.EqualFold(a.Email, email) {
			return nil
		}
	}

	patch := calendarEvent{
		Attendees: append(current.Attendees, attendee{Email: email}),
	}
	return c.do(ctx, http.MethodPatch, c.eventPath(meetingID), patch, nil)
}

func (c *Client) eventPath(meetingID string) string {
	return fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(c.CalendarID), url.PathEscape(meetingID))
}

// ErrorResponse represents an error returned by the calendar API.
type ErrorResponse struct {
	StatusCode int
	Message    string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("calendar api error (http %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *ErrorResponse) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		lastErr = c.doOnce(ctx, method, path, body, out)
		if lastErr == nil {
			return nil
		}

		var apiErr *ErrorResponse
		if errors.As(lastErr, &apiErr) && apiErr.IsRetryable() {
			continue
		}
		return lastErr
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read calendar response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrMeetingNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ErrorResponse{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode calendar response: %w", err)
		}
	}
	return nil
}
