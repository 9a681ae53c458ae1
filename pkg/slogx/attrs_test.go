package slogx

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	id := uuid.MustParse("0190f7b4-8e3c-7b6a-9c1d-2f3e4a5b6c7d")

	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want string
	}{
		{"error", Error(errors.New("boom")), "error", "boom"},
		{"logger", LoggerName("strix.executor"), KeyLoggerName, "strix.executor"},
		{"run id", RunID(id), KeyRunID, id.String()},
		{"stage", Stage("rag"), KeyStage, "rag"},
		{"stringer", Stringer("id", id), "id", id.String()},
		{"millis", Millis("latency_ms", 1500*time.Millisecond), "latency_ms", "1500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.String())
		})
	}
}

func TestErrorNil(t *testing.T) {
	assert.True(t, Error(nil).Equal(slog.Attr{}))
}
