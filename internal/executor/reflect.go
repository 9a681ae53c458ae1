package executor

import (
	"fmt"

	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/stdx"
)

const (
	// RetryConsistencyBelow is the consistency score under which a round is retried.
	RetryConsistencyBelow = 0.7
	// RetryUnresolvedAbove is the number of unresolved claims above which a round is retried.
	RetryUnresolvedAbove = 2

	unresolvedPenalty    = 0.1
	contradictionPenalty = 0.2
)

// Confidence discounts the consistency score by 0.1 per unresolved claim and
// 0.2 per contradiction, clamped to [0, 1].
func Confidence(report runstate.VerificationReport) float64 {
	c := report.ConsistencyScore -
		unresolvedPenalty*float64(len(report.UnresolvedClaims)) -
		contradictionPenalty*float64(len(report.Contradictions))
	return stdx.Clamp(c, 0, 1)
}

// Reflect decides whether the loop retries after round. A low consistency score
// or too many unresolved claims ask for a retry. Reaching maxRounds or the
// confidence threshold forces proceed.
func Reflect(report runstate.VerificationReport, round, maxRounds int, confidenceThreshold float64) runstate.ReflectionNote {
	note := runstate.ReflectionNote{
		Round:         round,
		Contradiction: report.ConsistencyScore < RetryConsistencyBelow || len(report.Contradictions) > 0,
		Confidence:    Confidence(report),
		Action:        runstate.FollowUpProceed,
	}

	switch {
	case report.ConsistencyScore < RetryConsistencyBelow:
		note.Action = runstate.FollowUpRetry
		note.Observation = fmt.Sprintf("consistency %.2f is below %.2f", report.ConsistencyScore, RetryConsistencyBelow)
	case len(report.UnresolvedClaims) > RetryUnresolvedAbove:
		note.Action = runstate.FollowUpRetry
		note.Observation = fmt.Sprintf("%d unresolved claims exceed %d", len(report.UnresolvedClaims), RetryUnresolvedAbove)
	default:
		note.Observation = fmt.Sprintf("consistency %.2f with %d unresolved claims", report.ConsistencyScore, len(report.UnresolvedClaims))
	}

	if note.Action == runstate.FollowUpRetry {
		switch {
		case round >= maxRounds:
			note.Action = runstate.FollowUpProceed
			note.Forced = true
			note.Observation += fmt.Sprintf("; round limit %d reached", maxRounds)
		case note.Confidence >= confidenceThreshold:
			note.Action = runstate.FollowUpProceed
			note.Forced = true
			note.Observation += fmt.Sprintf("; confidence %.2f meets %.2f", note.Confidence, confidenceThreshold)
		}
	}

	if note.Action == runstate.FollowUpRetry {
		note.Summary = fmt.Sprintf("retrying in round %d", round+1)
	} else {
		note.Summary = fmt.Sprintf("proceeding to synthesis after round %d", round)
	}
	return note
}
