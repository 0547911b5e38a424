// Package uuid issues request identifiers.
package uuid

import (
	"github.com/google/uuid"
)

// NewID returns a time-ordered UUIDv7 string, or a random v4 when the clock source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// FromHeader returns the incoming id when it parses as a UUID, and a fresh one otherwise.
func FromHeader(value string) string {
	if value == "" {
		return NewID()
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return NewID()
	}
	return id.String()
}
