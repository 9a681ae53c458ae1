package executor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casualjim/strix/pkg/runstate"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

var planReflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// planSchema is the JSON schema the plan prompt asks the model to follow.
var planSchema = sync.OnceValue(func() string {
	b, err := json.Marshal(planReflector.Reflect(&runstate.Plan{}))
	if err != nil {
		return "{}"
	}
	return string(b)
})

func writeSection(sb *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s\n", title)
	for _, l := range lines {
		fmt.Fprintf(sb, "- %s\n", l)
	}
}

// groundingContext renders retrieved documents and extracted files.
func groundingContext(rc *runstate.Context) string {
	var sb strings.Builder
	docs := rc.Documents()
	if len(docs) > 0 {
		sb.WriteString("\n## Knowledge base\n")
		for i, d := range docs {
			src := d.Source
			if src == "" {
				src = d.ID
			}
			fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, src, d.Content)
		}
	}
	for _, f := range rc.Files() {
		if !f.OK() || f.Text == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n## Attached file %s\n%s\n", f.URL, f.Text)
	}
	return sb.String()
}

func fastInput(rc *runstate.Context) string {
	var sb strings.Builder
	sb.WriteString(rc.Request().Question)
	if grounding := groundingContext(rc); grounding != "" {
		sb.WriteString("\n\n# Context\n")
		sb.WriteString(grounding)
	}
	return sb.String()
}

func planInput(rc *runstate.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Question\n%s\n", rc.Request().Question)
	fmt.Fprintf(&sb, "\n# Output\nReply with JSON matching this schema:\n%s\n", planSchema())
	if grounding := groundingContext(rc); grounding != "" {
		sb.WriteString("\n# Context\n")
		sb.WriteString(grounding)
	}
	return sb.String()
}

func evidenceLines(evidence []runstate.Evidence) []string {
	out := make([]string, len(evidence))
	for i, ev := range evidence {
		out[i] = fmt.Sprintf("%s (round %d): %s", ev.Tool, ev.Round, ev.Preview)
	}
	return out
}

func reasoningInput(rc *runstate.Context, round int) string {
	var sb strings.Builder
	plan, _ := rc.Plan()
	fmt.Fprintf(&sb, "# Question\n%s\n", rc.Request().Question)
	fmt.Fprintf(&sb, "\n# Round %d\nObjective: %s\n", round, plan.Objective)
	writeSection(&sb, "Open subtasks", rc.UnmetSubtasks())
	writeSection(&sb, "Constraints", plan.Constraints)
	writeSection(&sb, "Success criteria", plan.SuccessCriteria)
	writeSection(&sb, "Evidence", evidenceLines(rc.Evidence()))
	if prev, ok := rc.Reasoning(); ok {
		fmt.Fprintf(&sb, "\n## Previous reasoning\n%s\n", prev.Summary)
	}
	if report, ok := rc.Verification(); ok {
		writeSection(&sb, "Unresolved claims", report.UnresolvedClaims)
		writeSection(&sb, "Contradictions", report.Contradictions)
	}
	if note, ok := rc.Reflection(); ok {
		fmt.Fprintf(&sb, "\n## Reflection\n%s\n", note.Observation)
	}
	if grounding := groundingContext(rc); grounding != "" {
		sb.WriteString("\n# Context\n")
		sb.WriteString(grounding)
	}
	return sb.String()
}

func synthesisInput(rc *runstate.Context) string {
	var sb strings.Builder
	plan, _ := rc.Plan()
	fmt.Fprintf(&sb, "# Question\n%s\n", rc.Request().Question)
	fmt.Fprintf(&sb, "\nObjective: %s\n", plan.Objective)
	if r, ok := rc.Reasoning(); ok {
		fmt.Fprintf(&sb, "\n## Reasoning\n%s\n", r.Summary)
	}
	writeSection(&sb, "Evidence", evidenceLines(rc.Evidence()))
	if report, ok := rc.Verification(); ok {
		fmt.Fprintf(&sb, "\n## Verification\nConsistency: %.2f\n", report.ConsistencyScore)
		writeSection(&sb, "Unresolved claims", report.UnresolvedClaims)
		writeSection(&sb, "Contradictions", report.Contradictions)
	}
	return sb.String()
}
