/*
Package openai implements provider.Provider on top of OpenAI compatible chat
completion endpoints.

Every prompt is sent as a streaming chat completion:

  - the prompt instructions become the system message
  - history turns are replayed as user and assistant messages
  - the prompt input is the final user message

Text deltas are forwarded as provider.Chunk events between a "start" and an
"end" provider.Delim. Transport failures and cancellation surface as a single
provider.Error event.

Providers are memoized per model name:

	p := openai.Model("gpt-4o-mini", option.WithAPIKey(key))

Any base URL accepted by option.WithBaseURL works, which makes local OpenAI
compatible servers usable as backends.
*/
package openai
