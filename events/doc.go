// Package events defines the envelope stream a run pushes to its caller.
//
// Every run produces an ordered sequence of Envelope values. Each envelope names
// the pipeline stage that produced it, carries a human-readable message and a
// structured JSON payload, and is stamped with the run id, trace id, session id,
// a strictly increasing sequence number and a timestamp.
//
// Stage names:
//   - start: the run was accepted and routed
//   - history: conversation history was unavailable (only emitted on failure)
//   - file_extract_start, file_extract_item, file_extract_done: attached file extraction
//   - rag: knowledge-base retrieval outcome
//   - deep_plan_done, deep_reasoning, deep_tool_orch_done, deep_verification,
//     deep_reflection, deep_synthesis: the DEEP loop
//   - answer_delta: one fragment of the answer text
//   - answer_final: the complete answer, terminal
//   - error: unrecoverable failure, terminal
//
// Envelopes are delivered to a Hook. Hooks are called from the run goroutine in
// sequence order, so a hook that blocks slows the run down; use a buffered
// ChannelHook or a broker topic to decouple slow consumers.
//
// The JSON wire form produced by MarshalJSON is:
//
//	{"type":"envelope","run_id":"...","trace_id":"...","session_id":"...",
//	 "seq":3,"stage":"rag","message":"...","payload":{...},"timestamp":"..."}
package events
