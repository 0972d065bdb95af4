package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptType distinguishes a system prompt from a regular prompt.
type PromptType string

const (
	PromptTypeSystem  PromptType = "system"
	PromptTypeRegular PromptType = "regular"
)

// Prompt is a versioned block of prompt content. Updating a prompt
// deactivates the current row and inserts a new row with version+1,
// parentPromptId=old.id, isActive=true. For any (orgId, name, type) triple,
// exactly one row has isActive=true.
type Prompt struct {
	ID             uuid.UUID  `json:"id"`
	OrgID          uuid.UUID  `json:"orgId"`
	Name           string     `json:"name"`
	Type           PromptType `json:"type"`
	Content        string     `json:"content"`
	Version        int        `json:"version"`
	ParentPromptID *uuid.UUID `json:"parentPromptId,omitempty"`
	IsActive       bool       `json:"isActive"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// AgentPrompt binds a Prompt to an Agent at a given position. Replacing an
// agent's prompt set is an atomic delete-then-insert: the system prompt, if
// present, is written with order=0, and each regular prompt with
// order=i+1 in input order.
type AgentPrompt struct {
	ID       uuid.UUID `json:"id"`
	AgentID  uuid.UUID `json:"agentId"`
	PromptID uuid.UUID `json:"promptId"`
	Order    int       `json:"order"`
}
