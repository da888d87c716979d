package birthday

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// Scopes are the OAuth scopes GoogleCalendar needs.
var Scopes = []string{calendar.CalendarEventsScope}

// Event is a calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Link        string    `json:"htmlLink,omitempty"`
}

// Calendar is the event store hosting birthday bhajans.
type Calendar interface {
	ListEvents(ctx context.Context, calendarID string, from, to time.Time, max int64) ([]Event, error)
	InsertEvent(ctx context.Context, calendarID string, event Event) (Event, error)
}

// GoogleCalendar reads and writes a Google Calendar.
type GoogleCalendar struct {
	service  *calendar.Service
	location *time.Location
}

func NewGoogleCalendar(ctx context.Context, location *time.Location, opts ...option.ClientOption) (*GoogleCalendar, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	if location == nil {
		location = time.Local
	}
	return &GoogleCalendar{service: service, location: location}, nil
}

func (c *GoogleCalendar) ListEvents(ctx context.Context, calendarID string, from, to time.Time, max int64) ([]Event, error) {
	resp, err := c.service.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(max).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &store.UpstreamError{Op: "calendar list events", Err: err}
	}
	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, c.fromAPI(item))
	}
	return events, nil
}

func (c *GoogleCalendar) InsertEvent(ctx context.Context, calendarID string, event Event) (Event, error) {
	created, err := c.service.Events.Insert(calendarID, &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: c.location.String()},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: c.location.String()},
	}).SendUpdates("none").Context(ctx).Do()
	if err != nil {
		return Event{}, &store.UpstreamError{Op: "calendar insert event", Err: err}
	}
	return c.fromAPI(created), nil
}

func (c *GoogleCalendar) fromAPI(item *calendar.Event) Event {
	e := Event{ID: item.Id, Summary: item.Summary, Description: item.Description, Link: item.HtmlLink}
	e.Start, _ = c.eventTime(item.Start)
	e.End, _ = c.eventTime(item.End)
	return e
}

// eventTime reads a timed or all-day event boundary.
func (c *GoogleCalendar) eventTime(t *calendar.EventDateTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, errors.New("no time")
	}
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	return time.ParseInLocation("2006-01-02", t.Date, c.location)
}
