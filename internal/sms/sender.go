// Package sms sends text messages through Twilio.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrNotConfigured is returned when no Twilio account is set up.
var ErrNotConfigured = errors.New("sms not configured")

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
}

type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// Sender delivers SMS messages one recipient at a time.
type Sender struct {
	from string
	api  messageCreator
}

func NewSender(config Config) *Sender {
	if config.AccountSID == "" || config.AuthToken == "" || config.From == "" {
		return &Sender{}
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &Sender{from: config.From, api: client.Api}
}

func (s *Sender) IsConfigured() bool {
	return s != nil && s.api != nil
}

// Send texts body to every number in to. Every recipient is attempted; the
// returned error joins the per-recipient failures.
func (s *Sender) Send(ctx context.Context, to []string, body string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	var errs []error
	for _, number := range to {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioapi.CreateMessageParams{}
		params.SetTo(number)
		params.SetFrom(s.from)
		params.SetBody(body)
		if _, err := s.api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", number, err))
		}
	}
	return errors.Join(errs...)
}
