package provider

import (
	"context"
	"strings"

	"github.com/casualjim/strix/history"
	"github.com/google/uuid"
)

// Purpose says what a prompt is for. It selects the system instructions.
type Purpose string

const (
	PurposeFast      Purpose = "fast"
	PurposePlan      Purpose = "plan"
	PurposeReasoning Purpose = "reasoning"
	PurposeSynthesis Purpose = "synthesis"
)

func (p Purpose) String() string { return string(p) }

// Prompt is a single generation request.
type Prompt struct {
	// RunID ties provider logs and events to the run.
	RunID uuid.UUID
	// Purpose selects the instructions when Instructions is empty.
	Purpose Purpose
	// Instructions is the system prompt.
	Instructions string
	// History is replayed before Input, oldest first.
	History []history.Turn
	// Input is the user turn.
	Input string
}

// Provider streams generated text.
type Provider interface {
	StreamAnswer(ctx context.Context, prompt Prompt) (<-chan StreamEvent, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt Prompt) (<-chan StreamEvent, error)

func (f ProviderFunc) StreamAnswer(ctx context.Context, prompt Prompt) (<-chan StreamEvent, error) {
	return f(ctx, prompt)
}

// Collect drains a stream and returns the concatenated text. onChunk, when not
// nil, sees every fragment in order. An Error event ends collection with that
// error; so does ctx being done.
func Collect(ctx context.Context, events <-chan StreamEvent, onChunk func(string) error) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return sb.String(), nil
			}
			switch ev := ev.(type) {
			case Chunk:
				if ev.Text == "" {
					continue
				}
				sb.WriteString(ev.Text)
				if onChunk != nil {
					if err := onChunk(ev.Text); err != nil {
						return sb.String(), err
					}
				}
			case Error:
				return sb.String(), ev
			}
		}
	}
}
