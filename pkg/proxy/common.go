package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
)

// resolveAgentFromRequest implements §4.6 step 1: an {agentId} path value
// wins; otherwise the caller falls back to a get-or-create default agent
// keyed by its user-agent header.
func resolveAgentFromRequest(ctx context.Context, agents AgentStore, r *http.Request) (*models.Agent, error) {
	if raw := r.PathValue("agentId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy: invalid agentId path value %q: %w", raw, err)
		}
		return agents.GetByID(ctx, id)
	}
	return agents.GetOrCreateDefaultAgent(ctx, r.UserAgent())
}

// chatIDFromRequest derives a chat identifier from a client-supplied header,
// falling back to a fresh UUID for a request with no prior conversation
// thread to join.
func chatIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Chat-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// lastUserQuestion returns the most recent user message's content, used as
// the dual-LLM evaluator's question for untrusted tool content (§4.3).
func lastUserQuestion(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// toolDefinitionsFromModels flattens a name-indexed tool set into the
// provider-agnostic definitions injected into a streaming request.
func toolDefinitionsFromModels(toolsByName map[string]*models.Tool) []llm.ToolDefinition {
	if len(toolsByName) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(toolsByName))
	for _, t := range toolsByName {
		defs = append(defs, llm.ToolDefinitionFromModel(t))
	}
	return defs
}

// openAIMessagesToInternalChat converts wire chat messages to the llm
// package's own Message shape, used only for the streaming call signature.
func openAIMessagesToInternalChat(messages []openai.ChatCompletionMessage) []llm.Message {
	result := make([]llm.Message, len(messages))
	for i, m := range messages {
		msg := llm.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: llm.ToolCallFunc{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		result[i] = msg
	}
	return result
}

// openAIStreamChunk is the minimal chat.completion.chunk shape the proxy
// emits; it omits fields clients don't need to observe deltas correctly.
type openAIStreamChunk struct {
	ID      string                    `json:"id"`
	Object  string                    `json:"object"`
	Model   string                    `json:"model"`
	Choices []openAIStreamChunkChoice `json:"choices"`
}

type openAIStreamChunkChoice struct {
	Index        int                          `json:"index"`
	Delta        openai.ChatCompletionMessage `json:"delta"`
	FinishReason string                       `json:"finish_reason,omitempty"`
}

func writeOpenAIChunk(w io.Writer, id, model, content, finishReason string) {
	chunk := openAIStreamChunk{
		ID:     id,
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []openAIStreamChunkChoice{
			{Delta: openai.ChatCompletionMessage{Content: content}, FinishReason: finishReason},
		},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// dualLLMEventPayload carries one dual-LLM progress event inside an
// OpenAI-compatible chunk's extra top-level key; compliant clients ignore
// keys they don't recognize, so this rides alongside the normal delta shape.
type dualLLMEventPayload struct {
	Event      string   `json:"event"`
	ToolCallID string   `json:"tool_call_id,omitempty"`
	Question   string   `json:"question,omitempty"`
	Options    []string `json:"options,omitempty"`
	Answer     string   `json:"answer,omitempty"`
}

type openAIDualLLMChunk struct {
	ID             string               `json:"id"`
	Object         string               `json:"object"`
	Model          string               `json:"model"`
	Choices        []any                `json:"choices"`
	ArchestraEvent dualLLMEventPayload `json:"archestra_dual_llm"`
}

func writeOpenAIDualLLMEvent(w io.Writer, id, model string, payload dualLLMEventPayload) {
	chunk := openAIDualLLMChunk{
		ID:             id,
		Object:         "chat.completion.chunk",
		Model:          model,
		Choices:        []any{},
		ArchestraEvent: payload,
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeOpenAIToolCallChunk(w io.Writer, id, model string, toolCalls []llm.ToolCall) {
	wireCalls := make([]openai.ToolCall, len(toolCalls))
	for i, tc := range toolCalls {
		wireCalls[i] = openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	chunk := openAIStreamChunk{
		ID:     id,
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []openAIStreamChunkChoice{
			{Delta: openai.ChatCompletionMessage{ToolCalls: wireCalls}, FinishReason: "tool_calls"},
		},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
