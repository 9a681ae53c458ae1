package slogx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// KeyLoggerName is the attribute key carrying the component that logged a record.
	KeyLoggerName = "logger"
	// KeyRunID is the attribute key carrying the run id.
	KeyRunID = "run_id"
	// KeyStage is the attribute key carrying a pipeline stage name.
	KeyStage = "stage"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
// A nil error yields an empty attribute, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName returns an attribute for the logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// RunID returns an attribute for a run id.
func RunID(id uuid.UUID) slog.Attr {
	return slog.String(KeyRunID, id.String())
}

// Stage returns an attribute for a stage name.
func Stage(name string) slog.Attr {
	return slog.String(KeyStage, name)
}

// Millis renders a duration as integral milliseconds.
func Millis(key string, d time.Duration) slog.Attr {
	return slog.Int64(key, d.Milliseconds())
}
