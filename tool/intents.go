package tool

import (
	"strings"

	"github.com/casualjim/strix/pkg/textx"
	"github.com/tidwall/sjson"
)

// Intent is a planned tool call serving one subtask.
type Intent struct {
	Tool      string `json:"tool"`
	Subtask   string `json:"subtask"`
	Arguments string `json:"arguments"`
}

// IntentRequest is what an IntentDeriver gets to look at.
type IntentRequest struct {
	Question  string
	SessionID string
	Round     int
	// Subtasks are the plan's subtasks not yet served by a successful tool call.
	Subtasks []string
}

// IntentDeriver decides which tools to call for a round.
type IntentDeriver interface {
	Derive(req IntentRequest) []Intent
}

// IntentDeriverFunc adapts a function to the IntentDeriver interface.
type IntentDeriverFunc func(IntentRequest) []Intent

func (f IntentDeriverFunc) Derive(req IntentRequest) []Intent { return f(req) }

// KeywordRule maps words starting with one of Prefixes to Tool.
type KeywordRule struct {
	Tool     string
	Prefixes []string
}

// KeywordIntents derives at most one intent per subtask from the first rule
// whose prefix starts a word of the subtask.
type KeywordIntents struct {
	Rules []KeywordRule
}

// DefaultIntents returns the keyword rules for the built-in tools.
func DefaultIntents() KeywordIntents {
	return KeywordIntents{Rules: []KeywordRule{
		{Tool: ToolAnalysis, Prefixes: []string{"analy", "examin", "inspect", "assess", "evaluat"}},
		{Tool: ToolComparison, Prefixes: []string{"compar", "contrast", "versus", "differ"}},
		{Tool: ToolMemoryWrite, Prefixes: []string{"remember", "store", "save", "memoriz", "note"}},
		{Tool: ToolMemoryRead, Prefixes: []string{"recall", "retriev", "previous", "earlier"}},
	}}
}

func (k KeywordIntents) Derive(req IntentRequest) []Intent {
	var out []Intent
	for _, subtask := range req.Subtasks {
		tool, ok := k.match(subtask)
		if !ok {
			continue
		}
		out = append(out, Intent{
			Tool:      tool,
			Subtask:   subtask,
			Arguments: IntentArguments(subtask, req),
		})
	}
	return out
}

func (k KeywordIntents) match(subtask string) (string, bool) {
	words := textx.Words(subtask)
	for _, rule := range k.Rules {
		for _, w := range words {
			for _, p := range rule.Prefixes {
				if strings.HasPrefix(w, p) {
					return rule.Tool, true
				}
			}
		}
	}
	return "", false
}

// IntentArguments renders the standard argument object of an intent.
func IntentArguments(subtask string, req IntentRequest) string {
	args := `{}`
	args, _ = sjson.Set(args, "subtask", subtask)
	args, _ = sjson.Set(args, "query", req.Question)
	args, _ = sjson.Set(args, "session_id", req.SessionID)
	args, _ = sjson.Set(args, "round", req.Round)
	return args
}
