package proxy

import (
	"encoding/json"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
)

// anthropicMessagesToInternal converts an inbound Messages API request's
// messages, plus its top-level system prompt, to the common internal
// Message shape used by the trust and invocation evaluators. Anthropic
// carries the system prompt outside the message list, so it is surfaced
// here as a synthetic leading system message and stripped back out by
// internalMessagesToAnthropic.
func anthropicMessagesToInternal(system string, messages []anthropic.Message) []models.Message {
	result := make([]models.Message, 0, len(messages)+1)
	if system != "" {
		result = append(result, models.Message{Role: models.RoleSystem, Content: system})
	}

	for _, m := range messages {
		msg := models.Message{Role: models.Role(m.Role)}
		for _, block := range m.Content {
			switch block.Type {
			case anthropic.MessagesContentTypeText:
				if block.Text != nil {
					msg.Content += *block.Text
				}
			case anthropic.MessagesContentTypeToolUse:
				args, _ := json.Marshal(block.Input)
				msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
			case anthropic.MessagesContentTypeToolResult:
				if block.ToolUseID != nil {
					msg.ToolCallID = *block.ToolUseID
				}
				if block.Content != nil {
					msg.Content = contentFromToolResult(block)
				}
			}
		}
		result = append(result, msg)
	}
	return result
}

// contentFromToolResult flattens a tool_result content block's own content
// list down to plain text, since the internal Message shape carries tool
// output as a single string.
func contentFromToolResult(block anthropic.MessageContent) string {
	if block.Content == nil {
		return ""
	}
	var text string
	for _, c := range block.Content {
		if c.Text != nil {
			text += *c.Text
		}
	}
	if text != "" {
		return text
	}
	raw, _ := json.Marshal(block.Content)
	return string(raw)
}

// internalMessagesToAnthropic converts the filtered/rewritten internal
// messages back to the Messages API wire shape, splitting the leading
// synthetic system message back out to its own field.
func internalMessagesToAnthropic(messages []models.Message) (system string, wire []anthropic.Message) {
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			system = m.Content
		case models.RoleTool:
			wire = append(wire, anthropic.Message{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewToolResultMessageContent(m.ToolCallID, m.Content, false),
				},
			})
		case models.RoleAssistant:
			content := make([]anthropic.MessageContent, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(m.Content))
			}
			for _, tc := range m.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(tc.Arguments)))
			}
			wire = append(wire, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
		default:
			wire = append(wire, anthropic.NewUserTextMessage(m.Content))
		}
	}
	return system, wire
}

// anthropicToolsToModels converts inbound Messages API tool declarations
// into declared-tool rows, mirroring openAIToolsToModels.
func anthropicToolsToModels(tools []anthropic.ToolDefinition) []models.Tool {
	result := make([]models.Tool, 0, len(tools))
	for _, t := range tools {
		params, _ := t.InputSchema.(map[string]any)
		result = append(result, models.Tool{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return result
}

// modelsToolsToAnthropic converts the merged managed+declared tool set into
// the Messages API tool schema injected during ToolsInjected.
func modelsToolsToAnthropic(tools []*models.Tool) []anthropic.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = llm.ToolDefinitionFromModel(t)
	}
	return llm.ToAnthropicTools(defs)
}

// usageFromAnthropic extracts token counts for quota and audit accounting.
func usageFromAnthropic(usage anthropic.MessagesUsage) (inputTokens, outputTokens int) {
	return usage.InputTokens, usage.OutputTokens
}
