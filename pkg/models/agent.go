package models

import "github.com/google/uuid"

// Label is a key/value pair attached to an Agent.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Agent is a named configuration bundle that owns tools, prompts, and
// policies; the unit of policy scoping.
type Agent struct {
	ID      uuid.UUID   `json:"id"`
	Name    string      `json:"name"`
	Labels  []Label     `json:"labels"`
	TeamIDs []uuid.UUID `json:"teamIds"`
}

// Team groups agents for quota and policy scoping at a level between the
// individual agent and the organization.
type Team struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Name           string    `json:"name"`
}
