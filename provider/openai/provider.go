package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/casualjim/strix/history"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ provider.Provider = (*Provider)(nil)

// Provider streams answers from one chat model.
type Provider struct {
	client      *openai.Client
	model       string
	temperature float64
}

// New creates a provider for model. An empty model resolves through DefaultModelName.
func New(model string, options ...option.RequestOption) *Provider {
	if model == "" {
		model = DefaultModelName()
	}
	return &Provider{
		client:      openai.NewClient(options...),
		model:       model,
		temperature: 0.1,
	}
}

// Name is the model name.
func (p *Provider) Name() string {
	return p.model
}

func (p *Provider) buildRequest(prompt provider.Prompt) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages:    openai.F(promptToOpenAI(prompt)),
		Model:       openai.F(p.model),
		N:           openai.Int(1),
		Temperature: openai.Float(p.temperature),
	}
}

// StreamAnswer implements provider.Provider.
func (p *Provider) StreamAnswer(ctx context.Context, prompt provider.Prompt) (<-chan provider.StreamEvent, error) {
	params := p.buildRequest(prompt)

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, params, prompt, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, params openai.ChatCompletionNewParams, prompt provider.Prompt, events chan<- provider.StreamEvent) {
	strm := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer strm.Close()

	send := func(ev provider.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var started bool
	for strm.Next() {
		if ctx.Err() != nil {
			break
		}
		if !started {
			started = true
			if !send(provider.Delim{RunID: prompt.RunID, Delim: "start"}) {
				return
			}
		}

		chunk := strm.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if !send(provider.NewChunk(prompt.RunID, chunk.Choices[0].Delta.Content)) {
			return
		}
	}

	err := strm.Err()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		slog.DebugContext(ctx, "chat completion stream failed",
			slogx.LoggerName("strix.provider.openai"),
			slogx.RunID(prompt.RunID),
			slog.String("purpose", prompt.Purpose.String()),
			slogx.Error(err),
		)
		// The channel is buffered; a reader that went away because ctx is done
		// must not block the producer.
		select {
		case events <- provider.NewError(prompt.RunID, err):
		default:
		}
		return
	}
	if started {
		send(provider.Delim{RunID: prompt.RunID, Delim: "end"})
	}
}

func promptToOpenAI(prompt provider.Prompt) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(prompt.Instructions) != "" {
		result = append(result, openai.SystemMessage(prompt.Instructions))
	}
	for _, turn := range prompt.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		switch turn.Role {
		case history.RoleAssistant:
			am := openai.ChatCompletionAssistantMessageParam{
				Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
			}
			am.Content.Value = append(am.Content.Value, openai.TextPart(turn.Content))
			result = append(result, am)
		default:
			result = append(result, openai.UserMessageParts(openai.TextPart(turn.Content)))
		}
	}
	result = append(result, openai.UserMessageParts(openai.TextPart(prompt.Input)))
	return result
}
