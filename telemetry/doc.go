// Package telemetry reports what runs did: a summary Event per run handed to a
// Publisher, Prometheus metrics, and OpenTelemetry spans.
//
// Publishing is fire-and-forget from the engine's point of view. Async wraps a
// Publisher with a bounded queue so a slow sink never stalls a run; events that
// do not fit are dropped and logged.
package telemetry
