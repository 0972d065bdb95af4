package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the scoping level a Limit applies to.
type EntityType string

const (
	EntityTypeOrganization EntityType = "organization"
	EntityTypeTeam         EntityType = "team"
	EntityTypeAgent        EntityType = "agent"
)

// LimitType names the kind of quota a Limit enforces. Only token_cost
// exists today.
type LimitType string

const (
	LimitTypeTokenCost LimitType = "token_cost"
)

// Limit is a quota bound on spend, scoped to an organization, team, or
// agent and optionally to a single model. CurrentUsage* accumulate from
// LastCleanup (or creation) until the next reset sweep zeroes them.
type Limit struct {
	ID                   uuid.UUID  `json:"id"`
	EntityType           EntityType `json:"entityType"`
	EntityID             uuid.UUID  `json:"entityId"`
	LimitType            LimitType  `json:"limitType"`
	Model                *string    `json:"model,omitempty"`
	LimitValue           float64    `json:"limitValue"`
	CurrentUsageTokensIn  int64     `json:"currentUsageTokensIn"`
	CurrentUsageTokensOut int64     `json:"currentUsageTokensOut"`
	LastCleanup          *time.Time `json:"lastCleanup,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// TokenPrice is the dollar cost per million tokens for a model, used to
// convert token counts into the dollar unit that LimitValue is expressed in.
type TokenPrice struct {
	Model                string  `json:"model"`
	PricePerMillionInput  float64 `json:"pricePerMillionInput"`
	PricePerMillionOutput float64 `json:"pricePerMillionOutput"`
}

// Cost returns the dollar cost of inputTokens/outputTokens at this price.
func (p TokenPrice) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*p.PricePerMillionInput +
		float64(outputTokens)/1_000_000*p.PricePerMillionOutput
}
