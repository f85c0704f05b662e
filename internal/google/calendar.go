package google

import (
	"context"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"mailtriage/pkg/otel"
)

const primaryCalendar = "primary"

// Calendar is the Google Calendar surface the services use.
type Calendar interface {
	BusyPeriods(ctx context.Context, start, end string) ([]*calendar.TimePeriod, error)
	InsertEvent(ctx context.Context, ev *calendar.Event) (*calendar.Event, error)
}

type CalendarClient struct {
	svc     *calendar.Service
	timeout time.Duration
}

// BusyPeriods returns the busy intervals of the primary calendar in [start, end).
func (c *CalendarClient) BusyPeriods(ctx context.Context, start, end string) (busy []*calendar.TimePeriod, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, finish := otel.StartClientSpan(ctx, "calendar.freebusy.query")
	defer func() { finish(err) }()

	resp, err := c.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: start,
		TimeMax: end,
		Items:   []*calendar.FreeBusyRequestItem{{Id: primaryCalendar}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("query free/busy", err)
	}

	cal, ok := resp.Calendars[primaryCalendar]
	if !ok {
		return nil, nil
	}
	return cal.Busy, nil
}

// InsertEvent creates ev on the primary calendar and emails the attendees.
func (c *CalendarClient) InsertEvent(ctx context.Context, ev *calendar.Event) (created *calendar.Event, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, finish := otel.StartClientSpan(ctx, "calendar.events.insert")
	defer func() { finish(err) }()

	created, err = c.svc.Events.Insert(primaryCalendar, ev).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, wrapError("insert event", err)
	}
	return created, nil
}
