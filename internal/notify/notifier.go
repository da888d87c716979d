// Package notify fans messages out to email and SMS.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var (
	// ErrNoRecipients is returned when a send has nobody to deliver to.
	ErrNoRecipients = errors.New("no recipients")
	// ErrChannelUnavailable is returned when the requested channel is not set up.
	ErrChannelUnavailable = errors.New("notification channel not configured")
)

// Mailer is the email half of the notifier.
type Mailer interface {
	IsConfigured() bool
	SendEmail(to []string, subject, body string) error
	SendTemplate(to []string, name string, params any) error
}

// Texter is the SMS half of the notifier.
type Texter interface {
	IsConfigured() bool
	Send(ctx context.Context, to []string, body string) error
}

// Notifier sends templated and plain emails and SMS. Either channel may be
// nil or unconfigured, in which case sends on it fail.
type Notifier struct {
	mailer Mailer
	texter Texter
}

func New(mailer Mailer, texter Texter) *Notifier {
	return &Notifier{mailer: mailer, texter: texter}
}

func (n *Notifier) SendTemplatedMessage(ctx context.Context, to []string, template string, params any) error {
	to = recipients(to)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if n.mailer == nil || !n.mailer.IsConfigured() {
		return ErrChannelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.mailer.SendTemplate(to, template, params); err != nil {
		slog.Warn("templated email failed", "template", template, "recipients", len(to), "error", err)
		return err
	}
	return nil
}

func (n *Notifier) SendPlainMessage(ctx context.Context, to []string, subject, body string) error {
	to = recipients(to)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if n.mailer == nil || !n.mailer.IsConfigured() {
		return ErrChannelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.mailer.SendEmail(to, subject, body); err != nil {
		slog.Warn("email failed", "subject", subject, "recipients", len(to), "error", err)
		return err
	}
	return nil
}

func (n *Notifier) SendSMS(ctx context.Context, to []string, body string) error {
	to = recipients(to)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if n.texter == nil || !n.texter.IsConfigured() {
		return ErrChannelUnavailable
	}
	if err := n.texter.Send(ctx, to, body); err != nil {
		slog.Warn("sms failed", "recipients", len(to), "error", err)
		return err
	}
	return nil
}

// Channels reports which channels are usable, for readiness output.
func (n *Notifier) Channels() map[string]bool {
	return map[string]bool{
		"email": n.mailer != nil && n.mailer.IsConfigured(),
		"sms":   n.texter != nil && n.texter.IsConfigured(),
	}
}

// recipients trims addresses and drops blanks and duplicates.
func recipients(to []string) []string {
	seen := make(map[string]struct{}, len(to))
	out := make([]string, 0, len(to))
	for _, r := range to {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
