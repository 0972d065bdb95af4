package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the discriminant of a conversational Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a proposed invocation of a tool, carried on an assistant Message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is the common internal shape that inbound Anthropic and OpenAI
// request bodies are converted to before policy evaluation. It is a
// discriminated union over Role: tool_calls is only meaningful on assistant
// messages, and tool_call_id only on tool messages.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// InteractionType identifies what kind of proxy event an Interaction records.
type InteractionType string

const (
	InteractionTypeAnthropicCompletion InteractionType = "anthropic:completion"
	InteractionTypeAnthropicRefusal    InteractionType = "anthropic:refusal"
	InteractionTypeOpenAICompletion    InteractionType = "openai:completion"
	InteractionTypeOpenAIRefusal       InteractionType = "openai:refusal"
	InteractionTypeToolResult          InteractionType = "tool_result"
)

// Interaction is one persisted audit record: one inbound tool-result
// message classification, or one completed request/response pair. It is
// created exactly once and never mutated.
type Interaction struct {
	ID           uuid.UUID       `json:"id"`
	AgentID      uuid.UUID       `json:"agentId"`
	ChatID       *string         `json:"chatId,omitempty"`
	Type         InteractionType `json:"type"`
	Request      []byte          `json:"request,omitempty"`
	Response     []byte          `json:"response,omitempty"`
	InputTokens  int             `json:"inputTokens"`
	OutputTokens int             `json:"outputTokens"`
	Content      []byte          `json:"content,omitempty"`
	Trusted      bool            `json:"trusted"`
	Blocked      bool            `json:"blocked"`
	Reason       string          `json:"reason,omitempty"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
