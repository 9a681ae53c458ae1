// Package history stores the conversation turns of a session.
package history

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/go-openapi/strfmt"
)

// Role says who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// Store is the conversation history backend.
type Store interface {
	// Recent returns at most limit turns of the session, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	// Append records a question and its answer.
	Append(ctx context.Context, sessionID, question, answer string) error
}

// ErrNoSession is returned when a store operation needs a session id and got none.
var ErrNoSession = errors.New("history: session id is required")

// NewMemory creates an in-process Store that keeps at most capacity turns per session.
// A non-positive capacity keeps everything.
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity: capacity,
		sessions: haxmap.New[string, *session](),
	}
}

// Memory is an in-process Store.
type Memory struct {
	capacity int
	sessions *haxmap.Map[string, *session]
}

type session struct {
	mu    sync.RWMutex
	turns []Turn
}

func (m *Memory) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, nil
	}
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return slices.Clone(turns), nil
}

func (m *Memory) Append(ctx context.Context, sessionID, question, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" {
		return ErrNoSession
	}
	s, _ := m.sessions.GetOrCompute(sessionID, func() *session { return &session{} })

	now := strfmt.DateTime(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns,
		Turn{Role: RoleUser, Content: question, Timestamp: now},
		Turn{Role: RoleAssistant, Content: answer, Timestamp: now},
	)
	if m.capacity > 0 && len(s.turns) > m.capacity {
		s.turns = slices.Clone(s.turns[len(s.turns)-m.capacity:])
	}
	return nil
}
