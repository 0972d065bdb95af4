package models

import (
	"time"

	"github.com/google/uuid"
)

// LLMConversationRole distinguishes a primary-model call from a
// secondary-model (dual-LLM) call in the per-iteration log.
type LLMConversationRole string

const (
	LLMConversationRolePrimary   LLMConversationRole = "primary"
	LLMConversationRoleSecondary LLMConversationRole = "secondary"
)

// LLMConversationStatus values for LLMConversation.Status.
const (
	LLMConversationStatusPending = "pending"
	LLMConversationStatusSuccess = "success"
	LLMConversationStatusError   = "error"
)

// LLMConversation is one upstream LLM call, logged verbatim: the primary
// model's completion call, or the secondary model's constrained
// choose_option call made during the dual-LLM pass. One Interaction can
// correspond to several LLMConversation rows when a completion loops
// through multiple tool-call iterations.
type LLMConversation struct {
	ID        uuid.UUID           `json:"id"`
	AgentID   uuid.UUID           `json:"agentId"`
	ChatID    *string             `json:"chatId,omitempty"`
	Role      LLMConversationRole `json:"role"`
	Iteration int                 `json:"iteration"`

	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`

	RequestMessages []any    `json:"requestMessages"`
	RequestTools    []any    `json:"requestTools,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`

	ResponseContent   string `json:"responseContent,omitempty"`
	ResponseToolCalls []any  `json:"responseToolCalls,omitempty"`

	PromptTokens     *int `json:"promptTokens,omitempty"`
	CompletionTokens *int `json:"completionTokens,omitempty"`
	TotalTokens      *int `json:"totalTokens,omitempty"`
	DurationMs       int  `json:"durationMs"`

	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
