package provider

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// StreamEvent is one item of a provider stream.
type StreamEvent interface {
	streamEvent()
}

// Delim marks a stream boundary, "start" or "end".
type Delim struct {
	RunID uuid.UUID `json:"run_id"`
	Delim string    `json:"delim"`
}

func (Delim) streamEvent() {}

// Chunk is a fragment of generated text.
type Chunk struct {
	RunID     uuid.UUID       `json:"run_id"`
	Text      string          `json:"text"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Chunk) streamEvent() {}

// NewChunk creates a chunk stamped with the current time.
func NewChunk(runID uuid.UUID, text string) Chunk {
	return Chunk{RunID: runID, Text: text, Timestamp: strfmt.DateTime(time.Now())}
}

// Error is a stream failure.
type Error struct {
	RunID     uuid.UUID       `json:"run_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) streamEvent() {}

// NewError creates an error event stamped with the current time.
func NewError(runID uuid.UUID, err error) Error {
	return Error{RunID: runID, Err: err, Timestamp: strfmt.DateTime(time.Now())}
}

func (e Error) Error() string {
	return fmt.Sprintf("run_id: %s, timestamp: %s, error: %v", e.RunID, e.Timestamp, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
