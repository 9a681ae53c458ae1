package runstate

import (
	"fmt"
	"strings"
)

// Mode is the execution strategy of a run.
type Mode string

const (
	// ModeAuto lets the router decide.
	ModeAuto Mode = ""
	// ModeFast is the single-pass retrieval augmented answer.
	ModeFast Mode = "fast"
	// ModeDeep is the plan, reason, act, verify and reflect loop.
	ModeDeep Mode = "deep"
)

// ParseMode accepts fast, deep, auto or the empty string, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "fast":
		return ModeFast, nil
	case "deep":
		return ModeDeep, nil
	default:
		return ModeAuto, fmt.Errorf("unknown mode %q, expected fast, deep or auto", s)
	}
}

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	return string(m)
}

// Request is a user question with its attachments.
type Request struct {
	Question  string   `json:"question"`
	Files     []string `json:"files,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	// Mode forces a strategy and bypasses the router when set.
	Mode Mode `json:"mode,omitempty"`
	// TraceID correlates the run with an upstream trace when set.
	TraceID string `json:"trace_id,omitempty"`
}
