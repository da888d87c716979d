package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a time-ordered UUIDv7, optionally prefixed.
func NewID(prefix string) string {
	id := uuid.Must(uuid.NewV7()).String()
	id = strings.ReplaceAll(id, "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
