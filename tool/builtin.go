package tool

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/strix/pkg/textx"
)

// Names of the built-in tools.
const (
	ToolAnalysis    = "analysis"
	ToolComparison  = "comparison"
	ToolMemoryWrite = "memory.write"
	ToolMemoryRead  = "memory.read"
)

// Analysis is the result of the analysis tool.
type Analysis struct {
	Subject   string   `json:"subject"`
	Words     int      `json:"words"`
	Sentences int      `json:"sentences"`
	Keywords  []string `json:"keywords"`
}

// Analyze reports word statistics and the most frequent content words of a subject.
func Analyze(ctx context.Context, subtask, query string) (Analysis, error) {
	subject := strings.TrimSpace(query)
	if subject == "" {
		subject = strings.TrimSpace(subtask)
	}
	if subject == "" {
		return Analysis{}, Errorf(CodeInvalidArguments, "nothing to analyze")
	}
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	return Analysis{
		Subject:   subject,
		Words:     len(textx.Words(subject)),
		Sentences: len(textx.Sentences(subject)),
		Keywords:  topKeywords(subject, 5),
	}, nil
}

func topKeywords(s string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range textx.Words(s) {
		if len(textx.Tokens(w)) == 0 {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	slices.SortStableFunc(order, func(a, b string) int { return cmp.Compare(counts[b], counts[a]) })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// Comparison is the result of the comparison tool.
type Comparison struct {
	Subjects []string            `json:"subjects"`
	Shared   []string            `json:"shared"`
	Distinct map[string][]string `json:"distinct"`
}

var (
	comparisonLead  = regexp.MustCompile(`(?i)\b(?:compare|comparing|contrast|contrasting|between|of)\b\s+(.+)`)
	comparisonSplit = regexp.MustCompile(`(?i)\s+(?:and|vs\.?|versus|with|against|or)\s+|,\s*`)
)

// Compare splits the subtask (or the question) into the things being compared and
// reports the words they share and the words unique to each.
func Compare(subtask, query string) (Comparison, error) {
	subjects := comparisonSubjects(subtask)
	if len(subjects) < 2 {
		subjects = comparisonSubjects(query)
	}
	if len(subjects) < 2 {
		return Comparison{}, Errorf(CodeInvalidArguments, "need at least two subjects to compare")
	}

	tokens := make([][]string, len(subjects))
	for i, s := range subjects {
		tokens[i] = textx.Tokens(s)
	}

	shared := []string{}
	for _, t := range tokens[0] {
		inAll := true
		for _, other := range tokens[1:] {
			if !slices.Contains(other, t) {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, t)
		}
	}

	distinct := make(map[string][]string, len(subjects))
	for i, s := range subjects {
		d := []string{}
		for _, t := range tokens[i] {
			if !slices.Contains(shared, t) {
				d = append(d, t)
			}
		}
		distinct[s] = d
	}
	return Comparison{Subjects: subjects, Shared: shared, Distinct: distinct}, nil
}

func comparisonSubjects(s string) []string {
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".?!"))
	if m := comparisonLead.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	var out []string
	for _, part := range comparisonSplit.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part != "" && len(textx.Tokens(part)) > 0 {
			out = append(out, part)
		}
	}
	return out
}

// NewMemoryStore creates the session scratchpad used by the memory tools.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: haxmap.New[string, *notes]()}
}

// MemoryStore keeps short notes per session.
type MemoryStore struct {
	notes *haxmap.Map[string, *notes]
}

type notes struct {
	mu    sync.RWMutex
	items []string
}

// MemoryWrite is the result of memory.write.
type MemoryWrite struct {
	Stored int `json:"stored"`
}

// Write stores the subtask as a note of the session.
func (m *MemoryStore) Write(sessionID, subtask, query string) (MemoryWrite, error) {
	if sessionID == "" {
		return MemoryWrite{}, Errorf(CodeInvalidArguments, "session_id is required")
	}
	note := strings.TrimSpace(subtask)
	if note == "" {
		note = strings.TrimSpace(query)
	}
	n, _ := m.notes.GetOrCompute(sessionID, func() *notes { return &notes{} })
	n.mu.Lock()
	defer n.mu.Unlock()
	if !slices.Contains(n.items, note) {
		n.items = append(n.items, note)
	}
	return MemoryWrite{Stored: len(n.items)}, nil
}

// MemoryRead is the result of memory.read.
type MemoryRead struct {
	Notes []string `json:"notes"`
}

// Read returns the session's notes sharing a content word with the query,
// or every note when the query has no content words.
func (m *MemoryStore) Read(sessionID, query string) (MemoryRead, error) {
	if sessionID == "" {
		return MemoryRead{}, Errorf(CodeInvalidArguments, "session_id is required")
	}
	out := MemoryRead{Notes: []string{}}
	n, ok := m.notes.Get(sessionID)
	if !ok {
		return out, nil
	}
	qt := textx.Set(textx.Tokens(query))
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, item := range n.items {
		if len(qt) == 0 || textx.Coverage(textx.Tokens(item), qt) > 0 {
			out.Notes = append(out.Notes, item)
		}
	}
	return out, nil
}

// Builtins returns the definitions of the built-in tools backed by mem.
func Builtins(mem *MemoryStore) []Definition {
	return []Definition{
		Must(Analyze,
			Name(ToolAnalysis),
			Description("Word statistics and keywords of the subject under analysis"),
			Parameters("subtask", "query"),
		),
		Must(Compare,
			Name(ToolComparison),
			Description("Shared and distinct terms of the subjects being compared"),
			Parameters("subtask", "query"),
		),
		Must(mem.Write,
			Name(ToolMemoryWrite),
			Description("Store a note in the session scratchpad"),
			Parameters("session_id", "subtask", "query"),
		),
		Must(mem.Read,
			Name(ToolMemoryRead),
			Description("Read session notes related to the query"),
			Parameters("session_id", "query"),
		),
	}
}
