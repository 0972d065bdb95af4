package models

import "github.com/google/uuid"

// Tool is a named capability the model may invoke, backed by an MCP
// endpoint. Tools are upserted by (agentId, name); re-declaring does not
// change trust defaults.
type Tool struct {
	ID                                   uuid.UUID      `json:"id"`
	AgentID                              uuid.UUID      `json:"agentId"`
	Name                                 string         `json:"name"`
	Description                          string         `json:"description"`
	Parameters                           map[string]any `json:"parameters"`
	Endpoint                             string         `json:"endpoint"`
	AllowUsageWhenUntrustedDataIsPresent bool           `json:"allowUsageWhenUntrustedDataIsPresent"`
	DataIsTrustedByDefault               bool           `json:"dataIsTrustedByDefault"`
}

// TrustAction is the action a TrustedDataPolicy applies when its condition matches.
type TrustAction string

const (
	TrustActionMarkTrusted TrustAction = "mark_as_trusted"
	TrustActionBlockAlways TrustAction = "block_always"
)

// TrustedDataPolicy is an attribute-path rule evaluated against a tool
// result's JSON content to classify it as trusted or blocked.
type TrustedDataPolicy struct {
	ID            uuid.UUID   `json:"id"`
	ToolID        uuid.UUID   `json:"toolId"`
	AttributePath string      `json:"attributePath"`
	Operator      Operator    `json:"operator"`
	Value         string      `json:"value"`
	Action        TrustAction `json:"action"`
	Description   string      `json:"description"`
}

// AgentTrustedDataPolicy records that an agent has opted in to a policy.
type AgentTrustedDataPolicy struct {
	AgentID  uuid.UUID `json:"agentId"`
	PolicyID uuid.UUID `json:"policyId"`
}

// InvocationAction is the action a ToolInvocationPolicy applies when triggered.
type InvocationAction string

const (
	InvocationActionRequireTrustedContext InvocationAction = "require_trusted_context"
	InvocationActionBlockAlways           InvocationAction = "block_always"
)

// ToolInvocationPolicy decides, per proposed tool call, whether to allow or
// refuse invocation.
type ToolInvocationPolicy struct {
	ID          uuid.UUID        `json:"id"`
	AgentID     uuid.UUID        `json:"agentId"`
	ToolName    string           `json:"toolName"`
	Condition   string           `json:"condition"`
	Action      InvocationAction `json:"action"`
	Description string           `json:"description"`
}
