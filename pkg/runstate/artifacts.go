package runstate

import (
	"slices"
	"strings"
)

// DirectResponseSubtask is the single subtask of a fallback plan.
const DirectResponseSubtask = "direct response"

// Plan decomposes a question. Once stored on a Context it never changes.
type Plan struct {
	Objective       string   `json:"objective" jsonschema:"description=One sentence restating what the answer must achieve"`
	Constraints     []string `json:"constraints" jsonschema:"description=Limits the answer must respect; use NONE when there are none"`
	Subtasks        []string `json:"subtasks" jsonschema:"description=Ordered steps; start each with a verb such as analyze or compare,minItems=1"`
	SuccessCriteria []string `json:"success_criteria" jsonschema:"description=Checks a good answer passes"`
	Fallback        bool     `json:"fallback,omitempty" jsonschema:"-"`
}

// NewPlan normalizes a plan: entries are trimmed, empty entries dropped and
// constraints that are the literal NONE (any case) removed.
func NewPlan(objective string, constraints, subtasks, criteria []string) Plan {
	return Plan{
		Objective:       strings.TrimSpace(objective),
		Constraints:     clean(constraints, true),
		Subtasks:        clean(subtasks, false),
		SuccessCriteria: clean(criteria, false),
	}
}

// DirectResponsePlan is the plan used when planning is impossible or failed.
func DirectResponsePlan(question string) Plan {
	objective := strings.TrimSpace(question)
	if objective == "" {
		objective = "Respond to the user"
	}
	return Plan{
		Objective:       objective,
		Constraints:     []string{},
		Subtasks:        []string{DirectResponseSubtask},
		SuccessCriteria: []string{},
		Fallback:        true,
	}
}

func clean(items []string, dropNone bool) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if dropNone && strings.EqualFold(it, "NONE") {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (p Plan) clone() Plan {
	p.Constraints = slices.Clone(p.Constraints)
	p.Subtasks = slices.Clone(p.Subtasks)
	p.SuccessCriteria = slices.Clone(p.SuccessCriteria)
	return p
}

// Reasoning is the summary produced by one reasoning round.
type Reasoning struct {
	Round    int    `json:"round"`
	Summary  string `json:"summary"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Evidence is a bounded preview of a successful tool result.
type Evidence struct {
	Tool    string `json:"tool"`
	Subtask string `json:"subtask,omitempty"`
	Round   int    `json:"round"`
	Preview string `json:"preview"`
}

// VerificationReport is the outcome of checking one round of reasoning.
type VerificationReport struct {
	Round            int      `json:"round"`
	ConsistencyScore float64  `json:"consistency_score"`
	UnresolvedClaims []string `json:"unresolved_claims"`
	Contradictions   []string `json:"contradictions"`
}

// FollowUp is the reflection decision.
type FollowUp string

const (
	FollowUpRetry   FollowUp = "retry"
	FollowUpProceed FollowUp = "proceed"
)

// ReflectionNote records the retry or proceed decision of a round.
type ReflectionNote struct {
	Round         int      `json:"round"`
	Contradiction bool     `json:"contradiction"`
	Action        FollowUp `json:"action"`
	Observation   string   `json:"observation"`
	Summary       string   `json:"summary"`
	Confidence    float64  `json:"confidence"`
	Forced        bool     `json:"forced,omitempty"`
}
