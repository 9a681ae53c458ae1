package events

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var envelopeJSON = []byte(`{"type":"envelope"}`)

// Envelope is one ordered unit of progress or answer text pushed to the caller.
type Envelope struct {
	RunID     uuid.UUID       `json:"run_id"`
	TraceID   string          `json:"trace_id"`
	SessionID string          `json:"session_id,omitempty"`
	Seq       uint64          `json:"seq"`
	Stage     Stage           `json:"stage"`
	Message   string          `json:"message,omitempty"`
	Payload   gjson.Result    `json:"payload"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// NewPayload encodes v as the structured payload of an envelope.
// Values that already are gjson results, raw JSON or nil pass through.
func NewPayload(v any) (gjson.Result, error) {
	switch p := v.(type) {
	case nil:
		return gjson.Parse("{}"), nil
	case gjson.Result:
		return p, nil
	case json.RawMessage:
		if !gjson.ValidBytes(p) {
			return gjson.Result{}, fmt.Errorf("invalid json payload: %s", p)
		}
		return gjson.ParseBytes(p), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return gjson.ParseBytes(b), nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	raw := e.Payload.Raw
	if raw == "" {
		raw = "{}"
	}
	return json.Unmarshal([]byte(raw), v)
}

// Status returns the payload's status field, the convention stages use to
// report ok, fallback, failed or skipped outcomes.
func (e Envelope) Status() string {
	return e.Payload.Get("status").String()
}

// Time returns the envelope timestamp as a time.Time.
func (e Envelope) Time() time.Time {
	return time.Time(e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Envelope.
func (e Envelope) MarshalJSON() ([]byte, error) {
	result := envelopeJSON

	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		result, err = sjson.SetBytes(result, path, value)
	}

	set("run_id", e.RunID.String())
	set("trace_id", e.TraceID)
	if e.SessionID != "" {
		set("session_id", e.SessionID)
	}
	set("seq", e.Seq)
	set("stage", string(e.Stage))
	if e.Message != "" {
		set("message", e.Message)
	}
	set("timestamp", e.Timestamp)
	if err != nil {
		return nil, err
	}

	payload := e.Payload.Raw
	if payload == "" {
		payload = "{}"
	}
	return sjson.SetRawBytes(result, "payload", []byte(payload))
}

// UnmarshalJSON implements custom JSON unmarshaling for Envelope.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "envelope" {
		return fmt.Errorf("missing or invalid type, expected 'envelope'")
	}

	runID := gjson.GetBytes(data, "run_id")
	if !runID.Exists() {
		return fmt.Errorf("missing required field 'run_id'")
	}
	if err := e.RunID.UnmarshalText([]byte(runID.String())); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}

	seq := gjson.GetBytes(data, "seq")
	if !seq.Exists() {
		return fmt.Errorf("missing required field 'seq'")
	}
	e.Seq = seq.Uint()

	stage := gjson.GetBytes(data, "stage")
	if !stage.Exists() {
		return fmt.Errorf("missing required field 'stage'")
	}
	st, err := ParseStage(stage.String())
	if err != nil {
		return err
	}
	e.Stage = st

	ts := gjson.GetBytes(data, "timestamp")
	if !ts.Exists() {
		return fmt.Errorf("missing required field 'timestamp'")
	}
	dt, err := strfmt.ParseDateTime(ts.String())
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	e.Timestamp = dt

	e.TraceID = gjson.GetBytes(data, "trace_id").String()
	e.SessionID = gjson.GetBytes(data, "session_id").String()
	e.Message = gjson.GetBytes(data, "message").String()

	payload := gjson.GetBytes(data, "payload")
	if payload.Exists() {
		e.Payload = gjson.Parse(payload.Raw)
	} else {
		e.Payload = gjson.Parse("{}")
	}
	return nil
}

// FromJSON decodes an envelope from its wire form.
func FromJSON(data []byte) (Envelope, error) {
	var e Envelope
	if err := e.UnmarshalJSON(data); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
