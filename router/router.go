// Package router picks the execution strategy for a request.
package router

import (
	"fmt"
	"math"
	"strings"

	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/stdx"
	"github.com/casualjim/strix/pkg/textx"
)

// DefaultThreshold is the complexity score above which a request goes DEEP.
const DefaultThreshold = 0.6

// Decision is the outcome of routing.
type Decision struct {
	Mode    runstate.Mode `json:"mode"`
	Score   float64       `json:"score"`
	Reasons []string      `json:"reasons"`
	Forced  bool          `json:"forced,omitempty"`
}

// Router selects FAST or DEEP for a request.
type Router interface {
	Route(req runstate.Request) Decision
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(runstate.Request) Decision

func (f RouterFunc) Route(req runstate.Request) Decision { return f(req) }

// Complexity scores requests on length, number of parts, analytical vocabulary
// and attachments. Scores at or below Threshold route FAST.
type Complexity struct {
	Threshold float64
}

// New returns the default complexity router.
func New(threshold float64) Complexity {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return Complexity{Threshold: threshold}
}

const (
	weightLength      = 0.20
	weightParts       = 0.15
	weightAnalytical  = 0.50
	weightAttachments = 0.15

	lengthSaturation     = 40.0
	partsSaturation      = 2.0
	analyticalSaturation = 3.0
	attachmentSaturation = 2.0
)

var analyticalWords = map[string]struct{}{
	"analyze": {}, "analyse": {}, "analysis": {}, "compare": {}, "comparison": {}, "contrast": {},
	"evaluate": {}, "assess": {}, "tradeoff": {}, "tradeoffs": {}, "why": {}, "explain": {},
	"design": {}, "plan": {}, "strategy": {}, "investigate": {}, "reason": {}, "implications": {},
	"versus": {}, "vs": {}, "recommend": {}, "critique": {}, "prove": {}, "derive": {},
}

// analyticalPhrases span several words and are matched as substrings.
var analyticalPhrases = []string{"trade-off", "pros and cons", "step by step"}

var partMarkers = []string{" and then ", "; ", "\n- ", "\n* ", "\n1", "also,", "additionally", "furthermore"}

// Route implements Router.
func (c Complexity) Route(req runstate.Request) Decision {
	if req.Mode == runstate.ModeFast || req.Mode == runstate.ModeDeep {
		return Decision{Mode: req.Mode, Score: c.Score(req), Reasons: []string{"mode forced by request"}, Forced: true}
	}

	score, reasons := c.explain(req)
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	mode := runstate.ModeFast
	if score > threshold {
		mode = runstate.ModeDeep
	}
	return Decision{Mode: mode, Score: score, Reasons: reasons}
}

// Score returns the complexity score of a request in [0, 1].
func (c Complexity) Score(req runstate.Request) float64 {
	s, _ := c.explain(req)
	return s
}

func (c Complexity) explain(req runstate.Request) (float64, []string) {
	q := strings.ToLower(" " + strings.TrimSpace(req.Question) + " ")
	tokens := textx.Words(q)
	words := len(tokens)

	length := math.Min(1, float64(words)/lengthSaturation)

	questionMarks := strings.Count(q, "?")
	parts := max(0, questionMarks-1)
	for _, m := range partMarkers {
		parts += strings.Count(q, m)
	}
	partScore := math.Min(1, float64(parts)/partsSaturation)

	var hits int
	seen := make(map[string]struct{})
	for _, w := range tokens {
		if _, ok := analyticalWords[w]; !ok {
			continue
		}
		if _, dup := seen[w]; !dup {
			seen[w] = struct{}{}
			hits++
		}
	}
	for _, phrase := range analyticalPhrases {
		if strings.Contains(q, phrase) {
			hits++
		}
	}
	analytical := math.Min(1, float64(hits)/analyticalSaturation)

	attachments := math.Min(1, float64(len(req.Files))/attachmentSaturation)

	score := weightLength*length + weightParts*partScore + weightAnalytical*analytical + weightAttachments*attachments
	score = stdx.Clamp(math.Round(score*1000)/1000, 0, 1)

	reasons := []string{
		fmt.Sprintf("length=%d words", words),
		fmt.Sprintf("parts=%d", parts),
		fmt.Sprintf("analytical_terms=%d", hits),
		fmt.Sprintf("attachments=%d", len(req.Files)),
	}
	return score, reasons
}
