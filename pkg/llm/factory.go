package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/config"
)

// Providers holds every upstream model client the streaming proxy
// orchestrator needs: one client per primary-model surface, plus the
// isolated secondary model the dual-LLM context evaluator consults.
type Providers struct {
	Anthropic *AnthropicClient
	OpenAI    *Client
	Secondary *SecondaryModel
}

// NewProviders builds the full set of upstream clients from static
// configuration. Unlike the teacher's per-project ClientFactory, this
// gateway has no notion of a project-scoped AI configuration: every agent
// shares the same configured upstream credentials, and only the requested
// model name varies per call.
func NewProviders(cfg *config.Config, logger *zap.Logger) (*Providers, error) {
	anthropicClient, err := NewAnthropicClient(&AnthropicConfig{
		BaseURL: cfg.Anthropic.BaseURL,
		APIKey:  cfg.Anthropic.APIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: create anthropic client: %w", err)
	}

	// Default model is the secondary evaluator's; the OpenAI proxy surface
	// always sets req.Model explicitly per inbound request, overriding it.
	openaiClient, err := NewClient(&Config{
		Endpoint: cfg.OpenAI.BaseURL,
		Model:    cfg.Proxy.SecondaryModel,
		APIKey:   cfg.OpenAI.APIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: create openai client: %w", err)
	}

	return &Providers{
		Anthropic: anthropicClient,
		OpenAI:    openaiClient,
		Secondary: NewSecondaryModel(openaiClient, logger),
	}, nil
}
