// Package provider abstracts the model backend that writes answers, plans and
// reasoning summaries.
//
// A Provider streams its output as a channel of StreamEvent values:
//
//   - Delim marks the start and end of a stream
//   - Chunk carries one fragment of generated text
//   - Error reports a failure; nothing follows it
//
// The channel is closed when the stream is done. Collect drains a stream into
// a single string for callers that do not forward fragments.
//
// Instructions holds the system instructions for each Purpose. Defaults are
// installed at startup and can be replaced at runtime.
package provider
