// Package audit aggregates tool call records into per-round and run-wide statistics.
package audit

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/casualjim/strix/pkg/stdx"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is the immutable trace of one tool invocation.
type Record struct {
	Tool      string          `json:"tool"`
	Arguments string          `json:"arguments"`
	Success   bool            `json:"success"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
	Timestamp strfmt.DateTime `json:"timestamp"`
	Round     int             `json:"round"`
}

// FailureMessage renders a failed record as "tool: error".
func (r Record) FailureMessage() string {
	if r.Error == "" {
		return r.Tool + ": failed"
	}
	return r.Tool + ": " + r.Error
}

// Summary holds the statistics shared by round audits and the aggregate.
type Summary struct {
	Count        int      `json:"count"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	SuccessRate  float64  `json:"success_rate"`
	AvgLatencyMS float64  `json:"avg_latency_ms"`
	P95LatencyMS int64    `json:"p95_latency_ms"`
	TotalMS      int64    `json:"total_latency_ms"`
	Tools        []string `json:"tools"`
	Failures     []string `json:"failures"`
}

// RoundAudit summarizes the tool calls of one round.
type RoundAudit struct {
	Round int `json:"round"`
	Summary
}

// Aggregate summarizes every round of a run.
type Aggregate struct {
	Summary
	ToolUsage *orderedmap.OrderedMap[string, int] `json:"tool_usage"`
	Rounds    []RoundAudit                        `json:"rounds"`
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{groups: make(map[int][]Record)}
}

// Accumulator collects records grouped by round. It is safe for concurrent use
// and can be summarized at any point of a run.
type Accumulator struct {
	mu     sync.RWMutex
	order  []int
	groups map[int][]Record
	all    []Record
}

// Record adds a record to its round group.
func (a *Accumulator) Record(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.groups[rec.Round]; !ok {
		a.order = append(a.order, rec.Round)
		slices.Sort(a.order)
	}
	a.groups[rec.Round] = append(a.groups[rec.Round], rec)
	a.all = append(a.all, rec)
}

// Len reports the number of records.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.all)
}

// Records returns a copy of every record in insertion order.
func (a *Accumulator) Records() []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.all)
}

// Round summarizes one round. A round without records yields zero statistics.
func (a *Accumulator) Round(round int) RoundAudit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return RoundAudit{Round: round, Summary: summarize(a.groups[round])}
}

// Aggregate summarizes every round.
func (a *Accumulator) Aggregate() Aggregate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	agg := Aggregate{
		Summary:   summarize(a.all),
		ToolUsage: orderedmap.New[string, int](),
		Rounds:    make([]RoundAudit, 0, len(a.order)),
	}
	for _, rec := range a.all {
		n, _ := agg.ToolUsage.Get(rec.Tool)
		agg.ToolUsage.Set(rec.Tool, n+1)
	}
	for _, r := range a.order {
		agg.Rounds = append(agg.Rounds, RoundAudit{Round: r, Summary: summarize(a.groups[r])})
	}
	return agg
}

func summarize(records []Record) Summary {
	s := Summary{
		Count:    len(records),
		Tools:    []string{},
		Failures: []string{},
	}
	if len(records) == 0 {
		return s
	}

	latencies := make([]int64, 0, len(records))
	for _, rec := range records {
		if rec.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
			s.Failures = append(s.Failures, rec.FailureMessage())
		}
		if !slices.Contains(s.Tools, rec.Tool) {
			s.Tools = append(s.Tools, rec.Tool)
		}
		latencies = append(latencies, rec.LatencyMS)
		s.TotalMS += rec.LatencyMS
	}
	s.SuccessRate = stdx.Ratio(s.SuccessCount, s.Count)
	s.AvgLatencyMS = float64(s.TotalMS) / float64(s.Count)
	s.P95LatencyMS = P95(latencies)
	return s
}

// P95 returns the 95th percentile of latencies using the nearest-rank index
// clamp(ceil(0.95·n) − 1, 0, n − 1) over the sorted values.
func P95(latencies []int64) int64 {
	n := len(latencies)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	idx := stdx.Clamp(int(math.Ceil(0.95*float64(n)))-1, 0, n-1)
	return sorted[idx]
}

func (r RoundAudit) String() string {
	return fmt.Sprintf("round %d: %d calls, %d ok, %d failed, p95 %dms", r.Round, r.Count, r.SuccessCount, r.FailureCount, r.P95LatencyMS)
}
