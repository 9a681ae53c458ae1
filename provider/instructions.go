package provider

import (
	"maps"
	"strings"

	"github.com/casualjim/strix/internal/registry"
)

var defaultInstructions = map[Purpose]string{
	PurposeFast: "You are a precise assistant. Answer the user's question directly and concisely. " +
		"Use the supplied context and attached files when they are relevant; say so when the answer is not known.",
	PurposePlan: "You plan how to answer a question. Reply with a single JSON object and nothing else. " +
		"List 1 to 5 concrete subtasks, each starting with a verb such as analyze, compare, recall or remember. " +
		"If the question needs no decomposition use the single subtask \"NONE\".",
	PurposeReasoning: "You reason step by step toward an answer. Work through the open subtasks using the evidence, " +
		"resolve the listed unresolved claims and avoid repeating contradicted statements. " +
		"Write short declarative sentences.",
	PurposeSynthesis: "You write the final answer for the user. Use the reasoning, evidence and verification notes. " +
		"Be direct, keep only supported claims and mention remaining uncertainty briefly.",
}

// DefaultInstructions returns a copy of the built-in instruction table.
func DefaultInstructions() map[Purpose]string {
	return maps.Clone(defaultInstructions)
}

// NewInstructions creates an instruction table seeded with the defaults and then
// the given overrides. Blank overrides are ignored.
func NewInstructions(overrides map[Purpose]string) *Instructions {
	i := &Instructions{table: registry.New[string]()}
	for p, text := range defaultInstructions {
		i.table.Add(string(p), text)
	}
	for p, text := range overrides {
		i.Register(p, text)
	}
	return i
}

// Instructions maps purposes to system instructions. It is safe for concurrent use.
type Instructions struct {
	table registry.Registry[string]
}

// Register sets the instructions for p. Blank text is ignored.
func (i *Instructions) Register(p Purpose, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	i.table.Add(string(p), text)
}

// For returns the instructions for p, or the empty string.
func (i *Instructions) For(p Purpose) string {
	text, _ := i.table.Get(string(p))
	return text
}

// Purposes lists every purpose with instructions, sorted.
func (i *Instructions) Purposes() []Purpose {
	names := i.table.Names()
	out := make([]Purpose, len(names))
	for n, name := range names {
		out[n] = Purpose(name)
	}
	return out
}
