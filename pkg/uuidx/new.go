package uuidx

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New generates a new UUID using the version 7 format and returns it.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it as a string.
func NewString() string {
	return New().String()
}

// Compact returns a fresh version 7 UUID rendered as 32 lowercase hex characters,
// the same shape as a W3C trace id. It is used as the trace id of a run when no
// tracing span is active.
func Compact() string {
	id := New()
	return hex.EncodeToString(id[:])
}
