package executor

import (
	"testing"

	"github.com/casualjim/strix/pkg/runstate"
	"github.com/stretchr/testify/assert"
)

func claims(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "claim"
	}
	return out
}

func TestReflect(t *testing.T) {
	tests := []struct {
		name          string
		score         float64
		unresolved    int
		contradicts   int
		round         int
		maxRounds     int
		want          runstate.FollowUp
		forced        bool
		contradiction bool
	}{
		{name: "low consistency retries", score: 0.5, unresolved: 1, round: 1, maxRounds: 5, want: runstate.FollowUpRetry, contradiction: true},
		{name: "too many unresolved claims retry", score: 0.95, unresolved: 5, round: 1, maxRounds: 5, want: runstate.FollowUpRetry},
		{name: "consistent proceeds", score: 0.95, round: 1, maxRounds: 5, want: runstate.FollowUpProceed},
		{name: "two unresolved claims proceed", score: 0.8, unresolved: 2, round: 1, maxRounds: 5, want: runstate.FollowUpProceed},
		{name: "boundary consistency proceeds", score: 0.7, round: 2, maxRounds: 5, want: runstate.FollowUpProceed},
		{name: "last round forces proceed", score: 0.2, round: 5, maxRounds: 5, want: runstate.FollowUpProceed, forced: true, contradiction: true},
		{name: "single round forces proceed", score: 0.95, unresolved: 4, round: 1, maxRounds: 1, want: runstate.FollowUpProceed, forced: true},
		{name: "contradictions are flagged", score: 0.9, contradicts: 1, round: 1, maxRounds: 5, want: runstate.FollowUpProceed, contradiction: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := runstate.VerificationReport{
				Round:            tt.round,
				ConsistencyScore: tt.score,
				UnresolvedClaims: claims(tt.unresolved),
				Contradictions:   claims(tt.contradicts),
			}
			note := Reflect(report, tt.round, tt.maxRounds, 0.85)
			assert.Equal(t, tt.want, note.Action)
			assert.Equal(t, tt.forced, note.Forced)
			assert.Equal(t, tt.contradiction, note.Contradiction)
			assert.Equal(t, tt.round, note.Round)
			assert.NotEmpty(t, note.Observation)
			assert.NotEmpty(t, note.Summary)
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name   string
		report runstate.VerificationReport
		want   float64
	}{
		{"clean", runstate.VerificationReport{ConsistencyScore: 0.9}, 0.9},
		{"unresolved", runstate.VerificationReport{ConsistencyScore: 0.9, UnresolvedClaims: claims(2)}, 0.7},
		{"contradiction", runstate.VerificationReport{ConsistencyScore: 0.9, Contradictions: claims(1)}, 0.7},
		{"clamped", runstate.VerificationReport{ConsistencyScore: 0.1, Contradictions: claims(3)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.report), 1e-9)
		})
	}
}
