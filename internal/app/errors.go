package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rkanadam/sssbcsj-api/internal/notify"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// notificationError classifies a failed ad-hoc send.
func notificationError(err error) error {
	var out *DomainError
	switch {
	case errors.Is(err, notify.ErrNoRecipients):
		out = domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one recipient is required", nil)
	case errors.Is(err, notify.ErrChannelUnavailable):
		out = domainError(http.StatusServiceUnavailable, "CHANNEL_UNAVAILABLE", "Notification channel not configured", nil)
	default:
		out = domainError(http.StatusBadGateway, "NOTIFICATION_FAILED", "Notification could not be sent", nil)
	}
	out.cause = err
	return out
}
