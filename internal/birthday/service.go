// Package birthday lets members host a birthday bhajan at home: events live
// in a shared calendar and every booking is confirmed by email.
package birthday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	confirmationTemplate = "BirthdayHomeBhajanSignupConfirmation"
	maxEvents            = 365
	// celebrationsSince is the year the first birthday celebration is counted from.
	celebrationsSince = 1925
)

// ErrInvalidSignup is returned for a hosting request missing required fields.
var ErrInvalidSignup = errors.New("invalid birthday signup")

// Notifier sends the hosting confirmation.
type Notifier interface {
	SendTemplatedMessage(ctx context.Context, to []string, template string, params any) error
}

// Signup is a request to host bhajans at home.
type Signup struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phoneNumber"`
	Address      string `json:"address"`
	Instructions string `json:"instructions"`
	Date         string `json:"date"`
}

type Config struct {
	CalendarID string
	Organizers []string
	Contact    string
}

type Service struct {
	calendar Calendar
	config   Config
	notifier Notifier
	location *time.Location
	now      func() time.Time
}

func NewService(calendar Calendar, config Config, notifier Notifier, location *time.Location) *Service {
	if location == nil {
		location = time.Local
	}
	return &Service{calendar: calendar, config: config, notifier: notifier, location: location, now: time.Now}
}

func (s *Service) IsConfigured() bool {
	return s.calendar != nil && s.config.CalendarID != ""
}

// Window is the booking season of a year: January 1 up to November 24.
func (s *Service) Window(year int) (time.Time, time.Time) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, s.location),
		time.Date(year, time.November, 24, 0, 0, 0, 0, s.location)
}

// List returns this season's hosted events.
func (s *Service) List(ctx context.Context) ([]Event, error) {
	if !s.IsConfigured() {
		return []Event{}, nil
	}
	from, to := s.Window(s.now().In(s.location).Year())
	return s.calendar.ListEvents(ctx, s.config.CalendarID, from, to, maxEvents)
}

// Host books an evening event on the requested date and emails the
// organizers and the host. A failed email is logged.
func (s *Service) Host(ctx context.Context, signup Signup) (Event, error) {
	if !s.IsConfigured() {
		return Event{}, errors.New("birthday calendar not configured")
	}
	day, err := s.parseDate(signup.Date)
	if err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(signup.Name) == "" || strings.TrimSpace(signup.Email) == "" {
		return Event{}, fmt.Errorf("%w: name and email are required", ErrInvalidSignup)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 19, 30, 0, 0, s.location)
	description := s.describe(signup, start.Year())
	event, err := s.calendar.InsertEvent(ctx, s.config.CalendarID, Event{
		Summary:     fmt.Sprintf("Residence of %s - %s Birthday Bhajans", signup.Name, ordinal(start.Year()-celebrationsSince)),
		Description: description,
		Start:       start,
		End:         start.Add(time.Hour),
	})
	if err != nil {
		return Event{}, err
	}

	if s.notifier != nil {
		to := append(append([]string{}, s.config.Organizers...), signup.Email)
		params := struct {
			Signup
			Date        time.Time `json:"date"`
			Description string    `json:"description"`
		}{Signup: signup, Date: start, Description: description}
		if err := s.notifier.SendTemplatedMessage(ctx, to, confirmationTemplate, params); err != nil {
			slog.Warn("birthday confirmation failed", "host", signup.Email, "error", err)
		}
	}
	return event, nil
}

func (s *Service) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if day, err := time.ParseInLocation("2006-01-02", raw, s.location); err == nil {
		return day, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(s.location), nil
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSignup, raw)
}

func (s *Service) describe(signup Signup, year int) string {
	var b strings.Builder
	rule := "================================="
	fmt.Fprintf(&b, "%s Bhajans at the residence of %s\n", ordinal(year-celebrationsSince), signup.Name)
	fmt.Fprintln(&b, rule)
	if signup.Instructions != "" {
		fmt.Fprintln(&b, signup.Instructions)
		fmt.Fprintln(&b, rule)
	}
	fmt.Fprintf(&b, "Host Phone Number: %s\n", signup.PhoneNumber)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "Bhajan Format:")
	fmt.Fprintln(&b)
	for _, step := range bhajanFormat {
		fmt.Fprintln(&b, step)
	}
	if s.config.Contact != "" {
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, "Please contact %s for any questions.\n", s.config.Contact)
	}
	return b.String()
}

var bhajanFormat = []string{
	"3 OMs",
	"3 Gayatris",
	"108 Names",
	"9 Bhajans",
	"Om Tat Sat",
	"Sai Gayatri",
	"Aarti",
	"Vibhuti Prayer",
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
