package events

import (
	"fmt"
	"strings"
)

// Stage identifies which part of the pipeline produced an envelope.
type Stage string

const (
	StageStart            Stage = "start"
	StageHistory          Stage = "history"
	StageFileExtractStart Stage = "file_extract_start"
	StageFileExtractItem  Stage = "file_extract_item"
	StageFileExtractDone  Stage = "file_extract_done"
	StageRAG              Stage = "rag"
	StageDeepPlanDone     Stage = "deep_plan_done"
	StageDeepReasoning    Stage = "deep_reasoning"
	StageDeepToolOrchDone Stage = "deep_tool_orch_done"
	StageDeepVerification Stage = "deep_verification"
	StageDeepReflection   Stage = "deep_reflection"
	StageDeepSynthesis    Stage = "deep_synthesis"
	StageAnswerDelta      Stage = "answer_delta"
	StageAnswerFinal      Stage = "answer_final"
	StageError            Stage = "error"
)

var knownStages = map[Stage]struct{}{
	StageStart:            {},
	StageHistory:          {},
	StageFileExtractStart: {},
	StageFileExtractItem:  {},
	StageFileExtractDone:  {},
	StageRAG:              {},
	StageDeepPlanDone:     {},
	StageDeepReasoning:    {},
	StageDeepToolOrchDone: {},
	StageDeepVerification: {},
	StageDeepReflection:   {},
	StageDeepSynthesis:    {},
	StageAnswerDelta:      {},
	StageAnswerFinal:      {},
	StageError:            {},
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if _, ok := knownStages[st]; !ok {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Terminal reports whether the stage ends the stream.
func (s Stage) Terminal() bool {
	return s == StageAnswerFinal || s == StageError
}

// FileExtraction reports whether the stage belongs to attached file extraction.
func (s Stage) FileExtraction() bool {
	return strings.HasPrefix(string(s), "file_extract_")
}

// Deep reports whether the stage is only produced by the DEEP pipeline.
func (s Stage) Deep() bool {
	return strings.HasPrefix(string(s), "deep_")
}

func (s Stage) String() string {
	return string(s)
}
