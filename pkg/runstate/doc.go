// Package runstate holds the per-run execution context shared by pipeline stages.
//
// A Context is created when a request is accepted, is mutated only by the stages
// of that one run, and is discarded once the terminal envelope went out. It owns
// the envelope sequence counter: Emit assigns the next sequence number and hands
// the envelope to the run's hook under a single lock, so sequence numbers are
// strictly increasing in delivery order even when a stage emits from several
// goroutines. Once a terminal envelope was emitted, or the caller's context is
// done, Emit refuses further envelopes with ErrStreamClosed.
//
// Artifacts (history, extracted files, retrieved documents, plan, reasoning,
// tool calls, evidence, verification, reflection, answer) are typed fields with
// accessor methods guarded by the context's lock. Accessors return copies.
package runstate
