// Package llm provides the upstream model clients the streaming proxy
// orchestrator and the dual-LLM context evaluator call out to: an
// OpenAI-compatible chat completions client and an Anthropic Messages client.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/models"
)

// Client provides access to an OpenAI-compatible chat completions endpoint.
type Client struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
	breaker  *CircuitBreaker
	recorder ConversationRecorder
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Endpoint string // Base URL, e.g., "https://api.openai.com/v1"
	Model    string // Model name, e.g., "gpt-4o-mini"
	APIKey   string
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm"),
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	}, nil
}

// SetRecorder wires a ConversationRecorder into the client so every
// CreateChatCompletion/StreamChatCompletion call is logged per §8's
// testable "exact bytes sent upstream" property. Optional: a nil recorder
// (the zero value) leaves calls unrecorded.
func (c *Client) SetRecorder(recorder ConversationRecorder) {
	c.recorder = recorder
}

// GenerateResponseResult is the outcome of a non-streaming chat completion.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateResponse generates a chat completion response with usage stats.
func (c *Client) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
	})
	if err != nil {
		c.logger.Error("llm request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, c.parseError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &GenerateResponseResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// CreateChatCompletion is a thin passthrough used by the streaming proxy's
// OpenAI surface, exposed so callers can set tools/tool_choice directly. A
// per-provider circuit breaker guards the call: Allow() before the call,
// then RecordSuccess/RecordFailure after, so repeated provider failures shed
// load with a mapped error rather than piling up behind a dead upstream.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	req.Model = c.resolveModel(req.Model)

	if allowed, err := c.breaker.Allow(); !allowed {
		c.logger.Error("circuit breaker open, refusing openai call",
			zap.String("state", c.breaker.State().String()),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()))
		return openai.ChatCompletionResponse{}, err
	}

	conv := c.recordBegin(ctx, req)
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		c.recordFinish(ctx, conv, openai.ChatCompletionResponse{}, time.Since(start), err)
		return resp, c.parseError(err)
	}
	c.breaker.RecordSuccess()
	c.recordFinish(ctx, conv, resp, time.Since(start), nil)
	return resp, nil
}

// CreateChatCompletionStream is a thin passthrough for the streaming
// surface, guarded by the same circuit breaker as CreateChatCompletion.
// Only the stream's establishment is recorded here; StreamChatCompletion
// records the breaker outcome and conversation completion once the
// accumulated response is known.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	req.Model = c.resolveModel(req.Model)
	req.Stream = true

	if allowed, err := c.breaker.Allow(); !allowed {
		c.logger.Error("circuit breaker open, refusing openai stream",
			zap.String("state", c.breaker.State().String()),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()))
		return nil, err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, c.parseError(err)
	}
	return stream, nil
}

func (c *Client) recordBegin(ctx context.Context, req openai.ChatCompletionRequest) *models.LLMConversation {
	if c.recorder == nil {
		return nil
	}
	messages := make([]any, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = m
	}
	var tools []any
	if len(req.Tools) > 0 {
		tools = make([]any, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = t
		}
	}
	var temperature *float64
	if req.Temperature != 0 {
		t := float64(req.Temperature)
		temperature = &t
	}
	return c.recorder.begin(ctx, c.endpoint, c.resolveModel(req.Model), messages, tools, temperature)
}

func (c *Client) recordFinish(ctx context.Context, conv *models.LLMConversation, resp openai.ChatCompletionResponse, elapsed time.Duration, callErr error) {
	if c.recorder == nil || conv == nil {
		return
	}
	var content string
	var toolCalls []any
	var promptTokens, completionTokens, totalTokens *int
	if callErr == nil && len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, tc)
		}
		pt, ct, tt := resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens
		promptTokens, completionTokens, totalTokens = &pt, &ct, &tt
	}
	c.recorder.finish(ctx, conv, content, toolCalls, promptTokens, completionTokens, totalTokens, int(elapsed.Milliseconds()), callErr)
}

func (c *Client) resolveModel(requested string) string {
	if requested != "" {
		return requested
	}
	return c.model
}

// GetModel returns the configured default model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

func (c *Client) parseError(err error) error {
	return ClassifyError(err)
}
