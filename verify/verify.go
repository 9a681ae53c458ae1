// Package verify checks reasoning claims against gathered evidence.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/strix/extract"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/stdx"
	"github.com/casualjim/strix/pkg/textx"
	"github.com/casualjim/strix/retrieval"
)

// Input is what a verifier gets to look at for one round.
type Input struct {
	Round     int
	Question  string
	Plan      runstate.Plan
	Reasoning string
	Evidence  []runstate.Evidence
	Documents []retrieval.Hit
	Files     []extract.File
}

// Verifier scores the consistency of a round's reasoning.
type Verifier interface {
	Verify(ctx context.Context, in Input) (runstate.VerificationReport, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(context.Context, Input) (runstate.VerificationReport, error)

func (f VerifierFunc) Verify(ctx context.Context, in Input) (runstate.VerificationReport, error) {
	return f(ctx, in)
}

const (
	// DefaultSupportThreshold is the share of a claim's content words that must
	// appear in the sources for the claim to count as supported.
	DefaultSupportThreshold = 0.5
	// DefaultContradictionOverlap is the similarity above which a claim and a
	// source sentence with opposite polarity are reported as contradicting.
	DefaultContradictionOverlap = 0.6
	// minClaimTokens skips fragments too short to be a claim.
	minClaimTokens = 3
)

// Heuristic verifies by token overlap. Each sentence of the reasoning with enough
// content words is a claim; a claim is supported when most of its content words
// occur in the question, plan, evidence, documents or attached files. The consistency score is the
// supported share of claims. Unsupported claims are reported unresolved, and a
// claim that closely matches a source sentence of opposite polarity is reported
// as a contradiction.
type Heuristic struct {
	SupportThreshold     float64
	ContradictionOverlap float64
}

// NewHeuristic returns the heuristic verifier with default thresholds.
func NewHeuristic() Heuristic {
	return Heuristic{
		SupportThreshold:     DefaultSupportThreshold,
		ContradictionOverlap: DefaultContradictionOverlap,
	}
}

func (h Heuristic) Verify(ctx context.Context, in Input) (runstate.VerificationReport, error) {
	report := runstate.VerificationReport{
		Round:            in.Round,
		UnresolvedClaims: []string{},
		Contradictions:   []string{},
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	sources := sourceSentences(in)
	vocabulary := make(map[string]struct{})
	for _, s := range sources {
		for _, t := range textx.Tokens(s) {
			vocabulary[t] = struct{}{}
		}
	}

	support := h.SupportThreshold
	if support <= 0 {
		support = DefaultSupportThreshold
	}
	overlap := h.ContradictionOverlap
	if overlap <= 0 {
		overlap = DefaultContradictionOverlap
	}

	var claims, supported int
	for _, sentence := range textx.Sentences(in.Reasoning) {
		tokens := textx.Tokens(sentence)
		if len(tokens) < minClaimTokens {
			continue
		}
		claims++

		if textx.Coverage(tokens, vocabulary) >= support {
			supported++
		} else {
			report.UnresolvedClaims = append(report.UnresolvedClaims, stdx.Truncate(sentence, 200))
		}

		negated := textx.Negated(sentence)
		for _, src := range sources {
			if textx.Negated(src) == negated {
				continue
			}
			if textx.Jaccard(tokens, textx.Tokens(src)) >= overlap {
				report.Contradictions = append(report.Contradictions,
					fmt.Sprintf("%q conflicts with %q", stdx.Truncate(sentence, 120), stdx.Truncate(src, 120)))
				break
			}
		}
	}

	if claims == 0 {
		if strings.TrimSpace(in.Reasoning) == "" {
			report.UnresolvedClaims = append(report.UnresolvedClaims, "reasoning is empty")
			return report, nil
		}
		report.ConsistencyScore = 1
		return report, nil
	}
	report.ConsistencyScore = stdx.Clamp(float64(supported)/float64(claims), 0, 1)
	return report, nil
}

func sourceSentences(in Input) []string {
	var out []string
	out = append(out, textx.Sentences(in.Question)...)
	out = append(out, textx.Sentences(in.Plan.Objective)...)
	for _, st := range in.Plan.Subtasks {
		out = append(out, textx.Sentences(st)...)
	}
	for _, ev := range in.Evidence {
		out = append(out, textx.Sentences(ev.Preview)...)
	}
	for _, d := range in.Documents {
		out = append(out, textx.Sentences(d.Content)...)
	}
	for _, f := range in.Files {
		if f.OK() {
			out = append(out, textx.Sentences(f.Text)...)
		}
	}
	return out
}
