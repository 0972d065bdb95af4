package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/database"
	"github.com/archestra-ai/gateway/pkg/models"
)

// ToolInvocationPolicyRepository provides data access for tool-invocation
// policies.
type ToolInvocationPolicyRepository struct {
	db *database.DB
}

// NewToolInvocationPolicyRepository constructs a ToolInvocationPolicyRepository.
func NewToolInvocationPolicyRepository(db *database.DB) *ToolInvocationPolicyRepository {
	return &ToolInvocationPolicyRepository{db: db}
}

// PoliciesForTool returns the invocation policies configured for an agent's
// tool, by name. Satisfies pkg/invocation.PolicyLookup.
func (r *ToolInvocationPolicyRepository) PoliciesForTool(ctx context.Context, agentID uuid.UUID, toolName string) ([]models.ToolInvocationPolicy, error) {
	query := `
		SELECT id, agent_id, tool_name, condition, action, description
		FROM tool_invocation_policies
		WHERE agent_id = $1 AND tool_name = $2`

	rows, err := r.db.Query(ctx, query, agentID, toolName)
	if err != nil {
		return nil, fmt.Errorf("repositories: query tool invocation policies: %w", err)
	}
	defer rows.Close()

	var policies []models.ToolInvocationPolicy
	for rows.Next() {
		var p models.ToolInvocationPolicy
		if err := rows.Scan(&p.ID, &p.AgentID, &p.ToolName, &p.Condition, &p.Action, &p.Description); err != nil {
			return nil, fmt.Errorf("repositories: scan tool invocation policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// Create inserts a tool-invocation policy.
func (r *ToolInvocationPolicyRepository) Create(ctx context.Context, policy *models.ToolInvocationPolicy) error {
	query := `
		INSERT INTO tool_invocation_policies (agent_id, tool_name, condition, action, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return r.db.QueryRow(ctx, query, policy.AgentID, policy.ToolName, policy.Condition, policy.Action, policy.Description).Scan(&policy.ID)
}

// Delete removes a tool-invocation policy.
func (r *ToolInvocationPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM tool_invocation_policies WHERE id = $1`, policyID)
	if err != nil {
		return fmt.Errorf("repositories: delete tool invocation policy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
