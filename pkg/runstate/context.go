package runstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/extract"
	"github.com/casualjim/strix/history"
	"github.com/casualjim/strix/pkg/audit"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/casualjim/strix/retrieval"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

var (
	// ErrStreamClosed is returned by Emit once the stream ended, either because a
	// terminal envelope was emitted or because the caller went away.
	ErrStreamClosed = errors.New("envelope stream closed")
	// ErrPlanSet is returned when a plan is stored twice.
	ErrPlanSet = errors.New("plan already set")
)

// Context is the shared state of one run.
type Context struct {
	runID     uuid.UUID
	traceID   string
	request   Request
	startedAt time.Time

	seq    atomic.Uint64
	emitMu sync.Mutex
	closed bool
	hook   events.Hook

	mu             sync.RWMutex
	mode           Mode
	routeScore     float64
	history        []history.Turn
	files          []extract.File
	documents      []retrieval.Hit
	plan           *Plan
	reasoning      *Reasoning
	toolCalls      []audit.Record
	evidence       []Evidence
	verifications  []VerificationReport
	reflections    []ReflectionNote
	round          int
	answer         string
	answerFallback bool
	met            map[string]struct{}

	audit *audit.Accumulator
}

// New creates the context of a run. A nil run id or empty trace id is generated,
// a nil hook discards envelopes.
func New(runID uuid.UUID, traceID string, req Request, hook events.Hook) *Context {
	if runID == uuid.Nil {
		runID = uuidx.New()
	}
	if traceID == "" {
		traceID = req.TraceID
	}
	if traceID == "" {
		traceID = uuidx.Compact()
	}
	if hook == nil {
		hook = events.Discard
	}
	return &Context{
		runID:     runID,
		traceID:   traceID,
		request:   req,
		startedAt: time.Now(),
		hook:      hook,
		mode:      req.Mode,
		met:       make(map[string]struct{}),
		audit:     audit.New(),
	}
}

func (c *Context) RunID() uuid.UUID     { return c.runID }
func (c *Context) TraceID() string      { return c.traceID }
func (c *Context) SessionID() string    { return c.request.SessionID }
func (c *Context) StartedAt() time.Time { return c.startedAt }

// Elapsed is the time since the run was accepted.
func (c *Context) Elapsed() time.Duration { return time.Since(c.startedAt) }

// Request returns a copy of the original request.
func (c *Context) Request() Request {
	req := c.request
	req.Files = slices.Clone(req.Files)
	return req
}

// Audit returns the run's tool call accumulator.
func (c *Context) Audit() *audit.Accumulator { return c.audit }

// Emit stamps and delivers an envelope. It fails with ErrStreamClosed after the
// terminal envelope or once ctx is done; in the latter case the stream stays closed.
func (c *Context) Emit(ctx context.Context, stage events.Stage, message string, payload any) error {
	body, err := events.NewPayload(payload)
	if err != nil {
		return fmt.Errorf("envelope %s: %w", stage, err)
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.closed {
		return ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		c.closed = true
		return fmt.Errorf("%w: %w", ErrStreamClosed, err)
	}

	env := events.Envelope{
		RunID:     c.runID,
		TraceID:   c.traceID,
		SessionID: c.request.SessionID,
		Seq:       c.seq.Add(1),
		Stage:     stage,
		Message:   message,
		Payload:   body,
		Timestamp: strfmt.DateTime(time.Now()),
	}
	if stage.Terminal() {
		c.closed = true
	}
	c.hook.OnEnvelope(ctx, env)
	return nil
}

// Closed reports whether the stream accepts no more envelopes.
func (c *Context) Closed() bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	return c.closed
}

// LastSeq is the sequence number of the most recent envelope, 0 before the first.
func (c *Context) LastSeq() uint64 { return c.seq.Load() }

// SetMode records the routing decision.
func (c *Context) SetMode(mode Mode, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.routeScore = score
}

func (c *Context) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Context) RouteScore() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routeScore
}

func (c *Context) SetHistory(turns []history.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = slices.Clone(turns)
}

func (c *Context) History() []history.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history)
}

func (c *Context) SetFiles(files []extract.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = slices.Clone(files)
}

func (c *Context) Files() []extract.File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.files)
}

func (c *Context) SetDocuments(hits []retrieval.Hit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents = slices.Clone(hits)
}

func (c *Context) Documents() []retrieval.Hit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.documents)
}

// SetPlan stores the plan. A plan can only be stored once.
func (c *Context) SetPlan(p Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plan != nil {
		return ErrPlanSet
	}
	p = p.clone()
	c.plan = &p
	return nil
}

// Plan returns a copy of the stored plan.
func (c *Context) Plan() (Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.plan == nil {
		return Plan{}, false
	}
	return c.plan.clone(), true
}

// MarkSubtaskMet records that a tool call served the subtask.
func (c *Context) MarkSubtaskMet(subtask string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.met[subtask] = struct{}{}
}

// UnmetSubtasks returns the plan's subtasks that no successful tool call served yet, in plan order.
func (c *Context) UnmetSubtasks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.plan == nil {
		return nil
	}
	out := make([]string, 0, len(c.plan.Subtasks))
	for _, st := range c.plan.Subtasks {
		if _, ok := c.met[st]; !ok {
			out = append(out, st)
		}
	}
	return out
}

func (c *Context) SetReasoning(r Reasoning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasoning = &r
}

// Reasoning returns the latest reasoning summary.
func (c *Context) Reasoning() (Reasoning, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.reasoning == nil {
		return Reasoning{}, false
	}
	return *c.reasoning, true
}

// RecordToolCall appends a record to the run-wide history and its round's audit group.
func (c *Context) RecordToolCall(rec audit.Record) {
	c.mu.Lock()
	c.toolCalls = append(c.toolCalls, rec)
	c.mu.Unlock()
	c.audit.Record(rec)
}

func (c *Context) ToolCalls() []audit.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.toolCalls)
}

// AddEvidence appends evidence unless an identical preview from the same tool
// is already present. It reports whether the evidence was added.
func (c *Context) AddEvidence(e Evidence) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ex := range c.evidence {
		if ex.Tool == e.Tool && ex.Preview == e.Preview {
			return false
		}
	}
	c.evidence = append(c.evidence, e)
	return true
}

func (c *Context) Evidence() []Evidence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.evidence)
}

func (c *Context) AddVerification(r VerificationReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.UnresolvedClaims = slices.Clone(r.UnresolvedClaims)
	r.Contradictions = slices.Clone(r.Contradictions)
	c.verifications = append(c.verifications, r)
}

// Verification returns the latest verification report.
func (c *Context) Verification() (VerificationReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.verifications) == 0 {
		return VerificationReport{}, false
	}
	v := c.verifications[len(c.verifications)-1]
	v.UnresolvedClaims = slices.Clone(v.UnresolvedClaims)
	v.Contradictions = slices.Clone(v.Contradictions)
	return v, true
}

func (c *Context) AddReflection(n ReflectionNote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reflections = append(c.reflections, n)
}

// Reflection returns the latest reflection note.
func (c *Context) Reflection() (ReflectionNote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.reflections) == 0 {
		return ReflectionNote{}, false
	}
	return c.reflections[len(c.reflections)-1], true
}

// Reflections returns every reflection note in round order.
func (c *Context) Reflections() []ReflectionNote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.reflections)
}

func (c *Context) SetRound(round int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round = round
}

// Round is the current DEEP round, 0 before the loop started.
func (c *Context) Round() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round
}

// SetAnswer stores the final answer text and whether it came from a fallback.
func (c *Context) SetAnswer(answer string, fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answer = answer
	c.answerFallback = fallback
}

func (c *Context) Answer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.answer
}

func (c *Context) AnswerFallback() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.answerFallback
}
