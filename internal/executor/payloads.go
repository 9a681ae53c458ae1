package executor

import (
	"github.com/casualjim/strix/pkg/audit"
	"github.com/casualjim/strix/pkg/runstate"
)

// Values of the status field stages put in their envelope payloads.
const (
	StatusOK       = "ok"
	StatusFallback = "fallback"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusDegraded = "degraded"
)

type startPayload struct {
	Mode       string   `json:"mode"`
	RouteScore float64  `json:"route_score"`
	Reasons    []string `json:"reasons,omitempty"`
	Forced     bool     `json:"forced,omitempty"`
	Files      int      `json:"files"`
}

type statusPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type historyPayload struct {
	Status string `json:"status"`
	Turns  int    `json:"turns"`
	Reason string `json:"reason,omitempty"`
}

type fileStartPayload struct {
	Status    string `json:"status"`
	Requested int    `json:"requested"`
	Files     int    `json:"files"`
}

type fileItemPayload struct {
	Status    string `json:"status"`
	Index     int    `json:"index"`
	URL       string `json:"url"`
	Handler   string `json:"handler,omitempty"`
	Chars     int    `json:"chars"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

type fileDonePayload struct {
	Status    string `json:"status"`
	Files     int    `json:"files"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Chars     int    `json:"chars"`
	Reason    string `json:"reason,omitempty"`
}

type documentRef struct {
	ID     string  `json:"id"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}

type ragPayload struct {
	Status    string        `json:"status"`
	Hits      int           `json:"hits"`
	Documents []documentRef `json:"documents"`
	Reason    string        `json:"reason,omitempty"`
}

type planPayload struct {
	Status string        `json:"status"`
	Plan   runstate.Plan `json:"plan"`
	Reason string        `json:"reason,omitempty"`
}

type reasoningPayload struct {
	Status  string `json:"status"`
	Round   int    `json:"round"`
	Summary string `json:"summary"`
}

type toolOrchPayload struct {
	Status         string            `json:"status"`
	Round          int               `json:"round"`
	Tools          int               `json:"tools"`
	SuccessCount   int               `json:"success_count"`
	FailureCount   int               `json:"failure_count"`
	TotalLatencyMS int64             `json:"total_latency_ms"`
	Audit          *audit.RoundAudit `json:"audit,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

type verificationPayload struct {
	Status string `json:"status"`
	runstate.VerificationReport
}

type reflectionPayload struct {
	Status string `json:"status"`
	runstate.ReflectionNote
	Reason string `json:"reason,omitempty"`
}

type synthesisPayload struct {
	Status           string  `json:"status"`
	Source           string  `json:"source"`
	Round            int     `json:"round"`
	Evidence         int     `json:"evidence"`
	ConsistencyScore float64 `json:"consistency_score"`
	Chars            int     `json:"chars"`
}

type deltaPayload struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
	Reset    bool   `json:"reset,omitempty"`
}

type finalPayload struct {
	Answer    string `json:"answer"`
	Mode      string `json:"mode"`
	Fallback  bool   `json:"fallback,omitempty"`
	Rounds    int    `json:"rounds,omitempty"`
	ToolCalls int    `json:"tool_calls"`
	LatencyMS int64  `json:"latency_ms"`
}

type errorPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}
