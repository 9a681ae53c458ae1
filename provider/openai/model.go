package openai

import (
	"os"

	"github.com/casualjim/strix/internal/registry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when neither the caller nor OPENAI_DEFAULT_MODEL name one.
const DefaultModel = openai.ChatModelGPT4oMini

var models = registry.New[*Provider]()

// DefaultModelName resolves the model from OPENAI_DEFAULT_MODEL, then DefaultModel.
func DefaultModelName() string {
	if name := os.Getenv("OPENAI_DEFAULT_MODEL"); name != "" {
		return name
	}
	return DefaultModel
}

// GPT4oMini returns the provider for gpt-4o-mini.
func GPT4oMini(opts ...option.RequestOption) *Provider {
	return Model(openai.ChatModelGPT4oMini, opts...)
}

// GPT4o returns the provider for gpt-4o.
func GPT4o(opts ...option.RequestOption) *Provider {
	return Model(openai.ChatModelGPT4o, opts...)
}

// Model returns the provider for name, creating it on first use. Options only
// apply when the provider is created.
func Model(name string, opts ...option.RequestOption) *Provider {
	p, _ := models.GetOrAdd(name, func() *Provider {
		return New(name, opts...)
	})
	return p
}
