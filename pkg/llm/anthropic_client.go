package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/models"
)

// AnthropicClient provides access to the upstream Anthropic Messages API.
type AnthropicClient struct {
	client   *anthropic.Client
	endpoint string
	model    string
	logger   *zap.Logger
	breaker  *CircuitBreaker
	recorder ConversationRecorder
}

// AnthropicConfig holds configuration for creating an AnthropicClient.
type AnthropicConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// NewAnthropicClient creates a new Anthropic Messages API client.
func NewAnthropicClient(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	var client *anthropic.Client
	if cfg.BaseURL != "" {
		client = anthropic.NewClient(cfg.APIKey, anthropic.WithBaseURL(cfg.BaseURL))
	} else {
		client = anthropic.NewClient(cfg.APIKey)
	}

	return &AnthropicClient{
		client:   client,
		endpoint: cfg.BaseURL,
		model:    cfg.Model,
		logger:   logger.Named("llm.anthropic"),
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
	}, nil
}

// SetRecorder wires a ConversationRecorder into the client; see
// Client.SetRecorder.
func (c *AnthropicClient) SetRecorder(recorder ConversationRecorder) {
	c.recorder = recorder
}

// CreateMessages sends a non-streaming Messages API request, used by the
// proxy's non-streaming Anthropic surface and by GenerateResponse for
// single-shot completions.
func (c *AnthropicClient) CreateMessages(ctx context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	req.Model = c.resolveModel(req.Model)

	if allowed, err := c.breaker.Allow(); !allowed {
		c.logger.Error("circuit breaker open, refusing anthropic call",
			zap.String("state", c.breaker.State().String()),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()))
		return anthropic.MessagesResponse{}, err
	}

	conv := c.recordBegin(ctx, req)
	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Error("anthropic request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		c.breaker.RecordFailure()
		classified := ClassifyError(err)
		c.recordFinish(ctx, conv, anthropic.MessagesResponse{}, time.Since(start), classified)
		return resp, classified
	}
	c.breaker.RecordSuccess()
	c.recordFinish(ctx, conv, resp, time.Since(start), nil)
	return resp, nil
}

func (c *AnthropicClient) recordBegin(ctx context.Context, req anthropic.MessagesRequest) *models.LLMConversation {
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
	if req.Temperature != nil {
		t := float64(*req.Temperature)
		temperature = &t
	}
	return c.recorder.begin(ctx, c.endpoint, string(c.resolveModel(req.Model)), messages, tools, temperature)
}

func (c *AnthropicClient) recordFinish(ctx context.Context, conv *models.LLMConversation, resp anthropic.MessagesResponse, elapsed time.Duration, callErr error) {
	if c.recorder == nil || conv == nil {
		return
	}
	var content string
	var toolCalls []any
	var promptTokens, completionTokens, totalTokens *int
	if callErr == nil {
		for _, block := range resp.Content {
			if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
				content += *block.Text
			}
			if block.Type == anthropic.MessagesContentTypeToolUse {
				toolCalls = append(toolCalls, block)
			}
		}
		pt, ct := resp.Usage.InputTokens, resp.Usage.OutputTokens
		tt := pt + ct
		promptTokens, completionTokens, totalTokens = &pt, &ct, &tt
	}
	c.recorder.finish(ctx, conv, content, toolCalls, promptTokens, completionTokens, totalTokens, int(elapsed.Milliseconds()), callErr)
}

// CreateMessagesStream is a thin passthrough for a streaming Messages API
// request, guarded by the same circuit breaker as CreateMessages. It records
// no conversation; the proxy's Anthropic surface streams through
// StreamMessages, which accumulates tool_use blocks and records the call.
func (c *AnthropicClient) CreateMessagesStream(ctx context.Context, req anthropic.MessagesStreamRequest) (anthropic.MessagesResponse, error) {
	req.Model = c.resolveModel(req.Model)
	req.Stream = true

	if allowed, err := c.breaker.Allow(); !allowed {
		c.logger.Error("circuit breaker open, refusing anthropic stream",
			zap.String("state", c.breaker.State().String()),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()))
		return anthropic.MessagesResponse{}, err
	}

	resp, err := c.client.CreateMessagesStream(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		return resp, ClassifyError(err)
	}
	c.breaker.RecordSuccess()
	return resp, nil
}

// GenerateResponse issues a single-turn, non-streaming Messages API call and
// returns the concatenated text of the response. Used wherever a caller only
// needs a prompt/response round trip and doesn't care which upstream surface
// served it.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	resp, err := c.CreateMessages(ctx, anthropic.MessagesRequest{
		System:      systemMessage,
		MaxTokens:   4096,
		Temperature: float32Ptr(float32(temperature)),
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text += *block.Text
		}
	}

	return &GenerateResponseResult{
		Content:          text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func float32Ptr(f float32) *float32 {
	return &f
}

// StreamMessages sends a streaming Messages API request and relays text
// deltas onto eventChan as they arrive, accumulating tool_use blocks rather
// than forwarding them immediately — policy evaluation needs the complete
// argument JSON before a tool call can be buffered for the client. The
// accumulated text and tool calls are returned once the stream ends.
func (c *AnthropicClient) StreamMessages(ctx context.Context, system string, messages []anthropic.Message, tools []ToolDefinition, temperature float64, eventChan chan<- StreamEvent) (StreamIterationResult, error) {
	var (
		textBuf      string
		toolCalls    []ToolCall
		current      *ToolCall
		currentID    int
		inputTokens  int
		outputTokens int
	)

	req := anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			System:      system,
			Messages:    messages,
			Tools:       ToAnthropicTools(tools),
			MaxTokens:   4096,
			Temperature: float32Ptr(float32(temperature)),
		},
		OnMessageStart: func(data anthropic.MessagesEventMessageStartData) {
			inputTokens = data.Message.Usage.InputTokens
			outputTokens = data.Message.Usage.OutputTokens
		},
		OnMessageDelta: func(data anthropic.MessagesEventMessageDeltaData) {
			outputTokens = data.Usage.OutputTokens
		},
		OnContentBlockStart: func(data anthropic.MessagesEventContentBlockStartData) {
			if data.ContentBlock.Type != "tool_use" {
				return
			}
			current = &ToolCall{ID: data.ContentBlock.ID, Type: "function", Function: ToolCallFunc{Name: data.ContentBlock.Name}}
			currentID = data.Index
		},
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if data.Delta.Text != nil {
				textBuf += *data.Delta.Text
				eventChan <- StreamEvent{Type: StreamEventText, Content: *data.Delta.Text}
				return
			}
			if data.Delta.PartialJson != nil && current != nil && data.Index == currentID {
				current.Function.Arguments += *data.Delta.PartialJson
			}
		},
		OnContentBlockStop: func(data anthropic.MessagesEventContentBlockStopData, _ anthropic.MessageContent) {
			if current != nil && data.Index == currentID {
				toolCalls = append(toolCalls, *current)
				current = nil
			}
		},
	}
	req.Model = c.resolveModel(req.Model)

	if allowed, allowErr := c.breaker.Allow(); !allowed {
		c.logger.Error("circuit breaker open, refusing anthropic stream",
			zap.String("state", c.breaker.State().String()),
			zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()))
		return StreamIterationResult{}, allowErr
	}

	conv := c.recordBegin(ctx, req.MessagesRequest)
	start := time.Now()

	if _, err := c.client.CreateMessagesStream(ctx, req); err != nil {
		c.breaker.RecordFailure()
		classified := ClassifyError(err)
		c.recordFinish(ctx, conv, anthropic.MessagesResponse{}, time.Since(start), classified)
		return StreamIterationResult{}, classified
	}
	c.breaker.RecordSuccess()

	if conv != nil {
		var toolCallsAny []any
		for _, tc := range toolCalls {
			toolCallsAny = append(toolCallsAny, tc)
		}
		promptTokens, completionTokens := inputTokens, outputTokens
		totalTokens := promptTokens + completionTokens
		c.recorder.finish(ctx, conv, textBuf, toolCallsAny, &promptTokens, &completionTokens, &totalTokens, int(time.Since(start).Milliseconds()), nil)
	}

	return StreamIterationResult{
		Content:      textBuf,
		ToolCalls:    toolCalls,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

func (c *AnthropicClient) resolveModel(requested anthropic.Model) anthropic.Model {
	if requested != "" {
		return requested
	}
	return anthropic.Model(c.model)
}

// GetModel returns the configured default model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}
