package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// StreamEvent is one event surfaced while relaying a streaming completion.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Data    any             `json:"data,omitempty"`
}

// StreamEventType defines types of streaming events.
type StreamEventType string

const (
	StreamEventText     StreamEventType = "text"
	StreamEventToolCall StreamEventType = "tool_call"
	StreamEventDone     StreamEventType = "done"
	StreamEventError    StreamEventType = "error"
)

// ToolCall represents a proposed tool call accumulated across stream chunks.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc represents a function call within a ToolCall.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a provider-agnostic chat message the proxy exchanges with
// either upstream surface before translating to that provider's wire shape.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// StreamIterationResult is what one upstream streaming call produced: the
// full assembled text and any tool calls the model proposed. The proxy
// orchestrator decides, turn by turn, whether to relay, evaluate, or stop.
// InputTokens/OutputTokens are populated from the provider's own usage
// accounting for the streamed call (OpenAI's stream_options.include_usage
// final chunk, Anthropic's message_start/message_delta usage fields) so
// streaming completions feed §4.5 quota accounting the same as non-streaming
// ones.
type StreamIterationResult struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// StreamChatCompletion performs a single streaming OpenAI chat completion
// call, forwarding StreamEvent values on eventChan as they arrive and
// returning the fully assembled result once the stream ends. Unlike the
// teacher's original tool-execution loop, looping across tool-call rounds
// belongs to the proxy orchestrator so that trust and invocation policy can
// run between rounds.
func (c *Client) StreamChatCompletion(ctx context.Context, messages []Message, tools []ToolDefinition, temperature float64, eventChan chan<- StreamEvent) (StreamIterationResult, error) {
	oaiMessages := toOpenAIMessages(messages)
	oaiTools := toOpenAITools(tools)

	streamReq := openai.ChatCompletionRequest{
		Messages:      oaiMessages,
		Tools:         oaiTools,
		Temperature:   float32(temperature),
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	conv := c.recordBegin(ctx, streamReq)

	start := time.Now()
	stream, err := c.CreateChatCompletionStream(ctx, streamReq)
	if err != nil {
		c.recordFinish(ctx, conv, openai.ChatCompletionResponse{}, time.Since(start), err)
		return StreamIterationResult{}, err
	}
	defer stream.Close()

	var contentBuilder strings.Builder
	toolCallsByIndex := make(map[int]*ToolCall)
	var inputTokens, outputTokens int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Error("stream receive error", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			c.breaker.RecordFailure()
			parsed := c.parseError(err)
			c.recordFinish(ctx, conv, openai.ChatCompletionResponse{}, time.Since(start), parsed)
			return StreamIterationResult{}, parsed
		}

		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			eventChan <- StreamEvent{Type: StreamEventText, Content: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if existing, ok := toolCallsByIndex[idx]; ok {
				existing.Function.Arguments += tc.Function.Arguments
				continue
			}
			toolCallsByIndex[idx] = &ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: ToolCallFunc{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	c.breaker.RecordSuccess()

	result := StreamIterationResult{
		Content:      contentBuilder.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	for i := 0; i < len(toolCallsByIndex); i++ {
		if tc, ok := toolCallsByIndex[i]; ok {
			result.ToolCalls = append(result.ToolCalls, *tc)
			eventChan <- StreamEvent{Type: StreamEventToolCall, Data: *tc}
		}
	}

	if conv != nil {
		var toolCallsAny []any
		for _, tc := range result.ToolCalls {
			toolCallsAny = append(toolCallsAny, tc)
		}
		promptTokens, completionTokens := result.InputTokens, result.OutputTokens
		totalTokens := promptTokens + completionTokens
		c.recorder.finish(ctx, conv, result.Content, toolCallsAny, &promptTokens, &completionTokens, &totalTokens, int(time.Since(start).Milliseconds()), nil)
	}

	return result, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		paramsJSON, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(paramsJSON),
			},
		}
	}
	return result
}
