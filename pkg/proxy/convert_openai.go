package proxy

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
)

// openAIMessagesToInternal converts an inbound chat completion's messages
// to the common internal Message shape used by the trust and invocation
// evaluators.
func openAIMessagesToInternal(messages []openai.ChatCompletionMessage) []models.Message {
	result := make([]models.Message, len(messages))
	for i, m := range messages {
		msg := models.Message{
			Role:       models.Role(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		result[i] = msg
	}
	return result
}

// internalMessagesToOpenAI converts the filtered/rewritten internal
// messages back to the wire shape relayed to the upstream provider.
func internalMessagesToOpenAI(messages []models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		result[i] = oaiMsg
	}
	return result
}

// openAIToolsToModels converts inbound request tool declarations into
// declared-tool rows, pending an endpoint assignment from the agent's
// managed tool set (§4.6 step 3 merges declared tools with managed ones;
// a declared tool the agent has not also registered as managed has no
// endpoint and can never be dispatched, only described to the model).
func openAIToolsToModels(tools []openai.Tool) []models.Tool {
	result := make([]models.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		var params map[string]any
		if raw, ok := t.Function.Parameters.(json.RawMessage); ok {
			_ = json.Unmarshal(raw, &params)
		} else if m, ok := t.Function.Parameters.(map[string]any); ok {
			params = m
		}
		result = append(result, models.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  params,
		})
	}
	return result
}

// modelsToolsToOpenAI converts the merged managed+declared tool set into
// the wire shape injected into the upstream request (§4.6 step 3,
// "ToolsInjected").
func modelsToolsToOpenAI(tools []*models.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		def := llm.ToolDefinitionFromModel(t)
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

// usageFromOpenAI extracts token counts for quota and audit accounting.
func usageFromOpenAI(usage openai.Usage) (inputTokens, outputTokens int) {
	return usage.PromptTokens, usage.CompletionTokens
}
