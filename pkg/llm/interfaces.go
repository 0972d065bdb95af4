package llm

import (
	"context"
)

// Generator is the minimal non-streaming surface of an upstream chat model
// (the dual-LLM context evaluator uses SecondaryModel instead). Both Client and
// AnthropicClient satisfy it; callers that only need a single prompt/response
// round trip should depend on this instead of a concrete client type.
type Generator interface {
	GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error)
	GetModel() string
	GetEndpoint() string
}

var (
	_ Generator = (*Client)(nil)
	_ Generator = (*AnthropicClient)(nil)
)
