// Package broker fans the envelopes of runs out to subscribers that are not the
// caller of the run, such as an SSE client watching a session or a CLI tailing
// a NATS subject.
//
// Topics are keyed by session id. Two implementations are provided:
//
//   - Local keeps everything in process. Each subscription has a bounded buffer
//     and a subscriber that falls behind for longer than the slow subscriber
//     timeout is unsubscribed.
//   - NATS publishes the JSON form of each envelope on strix.envelopes.<topic>.
//
// PublishHook adapts a broker to an events.Hook so it can be attached to a run.
package broker
