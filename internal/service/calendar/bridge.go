package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"mailtriage/internal/apperr"
)

// Provider is the calendar API surface the bridge calls.
type Provider interface {
	BusyPeriods(ctx context.Context, start, end string) ([]*gcal.TimePeriod, error)
	InsertEvent(ctx context.Context, ev *gcal.Event) (*gcal.Event, error)
}

// EventRequest describes a meeting to put on the user's primary calendar.
type EventRequest struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Attendees   []string `json:"attendees"`
}

// Bridge passes availability checks and event creation through to the
// user's calendar.
type Bridge struct {
	timeZone string
}

func NewBridge(timeZone string) *Bridge {
	return &Bridge{timeZone: timeZone}
}

// CheckAvailability reports whether the primary calendar has no busy
// interval in [start, end). Both bounds are RFC 3339 timestamps.
func (b *Bridge) CheckAvailability(ctx context.Context, cal Provider, start, end string) (bool, error) {
	s, err := time.Parse(time.RFC3339, strings.TrimSpace(start))
	if err != nil {
		return false, apperr.ErrInvalidRange
	}
	e, err := time.Parse(time.RFC3339, strings.TrimSpace(end))
	if err != nil || !s.Before(e) {
		return false, apperr.ErrInvalidRange
	}

	busy, err := cal.BusyPeriods(ctx, s.Format(time.RFC3339), e.Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return len(busy) == 0, nil
}

// CreateEvent books a timed event, invites the attendees and keeps the
// calendar's default reminders.
func (b *Bridge) CreateEvent(ctx context.Context, cal Provider, req EventRequest) (*gcal.Event, error) {
	attendees := make([]*gcal.EventAttendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		if a = strings.TrimSpace(a); a != "" {
			attendees = append(attendees, &gcal.EventAttendee{Email: a})
		}
	}
	if strings.TrimSpace(req.Summary) == "" || strings.TrimSpace(req.Start) == "" ||
		strings.TrimSpace(req.End) == "" || len(attendees) == 0 {
		return nil, apperr.ErrMissingFields
	}

	ev := &gcal.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &gcal.EventDateTime{DateTime: req.Start, TimeZone: b.timeZone},
		End:         &gcal.EventDateTime{DateTime: req.End, TimeZone: b.timeZone},
		Attendees:   attendees,
		Reminders:   &gcal.EventReminders{UseDefault: true},
	}

	created, err := cal.InsertEvent(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}
