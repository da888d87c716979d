package birthday

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/rkanadam/sssbcsj-api/internal/store"
)

func newTestCalendar(t *testing.T, handler http.HandlerFunc) *GoogleCalendar {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewGoogleCalendar(context.Background(), time.UTC, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewGoogleCalendar() error = %v", err)
	}
	return c
}

func TestGoogleCalendarListEvents(t *testing.T) {
	var query string
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"e1","summary":"Residence of A","start":{"dateTime":"2030-06-10T19:30:00-07:00"},"end":{"dateTime":"2030-06-10T20:30:00-07:00"}},
			{"id":"e2","summary":"Holiday","start":{"date":"2030-07-04"},"end":{"date":"2030-07-05"}}
		]}`))
	})

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	events, err := c.ListEvents(context.Background(), "cal-1", from, from.AddDate(0, 10, 23), 365)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].Start.Hour() != 19 || events[1].Start.Format("2006-01-02") != "2030-07-04" {
		t.Fatalf("ListEvents() = %+v", events)
	}
	for _, want := range []string{"timeMin=2030-01-01T00%3A00%3A00Z", "maxResults=365", "singleEvents=true"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestGoogleCalendarInsertEvent(t *testing.T) {
	var body map[string]any
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"new","summary":"Residence of A","start":{"dateTime":"2030-06-10T19:30:00Z"},"end":{"dateTime":"2030-06-10T20:30:00Z"}}`))
	})

	start := time.Date(2030, 6, 10, 19, 30, 0, 0, time.UTC)
	event, err := c.InsertEvent(context.Background(), "cal-1", Event{Summary: "Residence of A", Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if event.ID != "new" || !event.Start.Equal(start) {
		t.Fatalf("InsertEvent() = %+v", event)
	}
	startBody, _ := body["start"].(map[string]any)
	if startBody["dateTime"] != "2030-06-10T19:30:00Z" || startBody["timeZone"] != "UTC" {
		t.Fatalf("start body = %#v", startBody)
	}
}

func TestGoogleCalendarErrorsAreUpstream(t *testing.T) {
	c := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"calendar access denied"}}`))
	})

	var upstream *store.UpstreamError
	_, err := c.ListEvents(context.Background(), "cal-1", time.Now(), time.Now().Add(time.Hour), 10)
	if !errors.As(err, &upstream) || upstream.Op != "calendar list events" {
		t.Fatalf("ListEvents() error = %v, want UpstreamError", err)
	}
	start := time.Date(2030, 6, 10, 19, 30, 0, 0, time.UTC)
	_, err = c.InsertEvent(context.Background(), "cal-1", Event{Summary: "x", Start: start, End: start.Add(time.Hour)})
	if !errors.As(err, &upstream) || upstream.Op != "calendar insert event" {
		t.Fatalf("InsertEvent() error = %v, want UpstreamError", err)
	}
}
