package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/database"
	"github.com/archestra-ai/gateway/pkg/models"
)

// TrustedDataPolicyRepository provides data access for trusted-data
// policies and their opt-in by agent.
type TrustedDataPolicyRepository struct {
	db *database.DB
}

// NewTrustedDataPolicyRepository constructs a TrustedDataPolicyRepository.
func NewTrustedDataPolicyRepository(db *database.DB) *TrustedDataPolicyRepository {
	return &TrustedDataPolicyRepository{db: db}
}

func scanTrustedDataPolicy(row pgx.Row) (models.TrustedDataPolicy, error) {
	var p models.TrustedDataPolicy
	err := row.Scan(&p.ID, &p.ToolID, &p.AttributePath, &p.Operator, &p.Value, &p.Action, &p.Description)
	return p, err
}

// PoliciesForAgentTool returns the trusted-data policies an agent has
// opted in to for a given tool. Satisfies pkg/trust.PolicyLookup.
func (r *TrustedDataPolicyRepository) PoliciesForAgentTool(ctx context.Context, agentID, toolID uuid.UUID) ([]models.TrustedDataPolicy, error) {
	query := `
		SELECT p.id, p.tool_id, p.attribute_path, p.operator, p.value, p.action, p.description
		FROM trusted_data_policies p
		JOIN agent_trusted_data_policies a ON a.policy_id = p.id
		WHERE a.agent_id = $1 AND p.tool_id = $2`

	rows, err := r.db.Query(ctx, query, agentID, toolID)
	if err != nil {
		return nil, fmt.Errorf("repositories: query trusted data policies: %w", err)
	}
	defer rows.Close()

	var policies []models.TrustedDataPolicy
	for rows.Next() {
		p, err := scanTrustedDataPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("repositories: scan trusted data policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// Create inserts a trusted-data policy bound to a tool.
func (r *TrustedDataPolicyRepository) Create(ctx context.Context, policy *models.TrustedDataPolicy) error {
	query := `
		INSERT INTO trusted_data_policies (tool_id, attribute_path, operator, value, action, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return r.db.QueryRow(ctx, query, policy.ToolID, policy.AttributePath, policy.Operator, policy.Value, policy.Action, policy.Description).Scan(&policy.ID)
}

// Delete removes a trusted-data policy.
func (r *TrustedDataPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM trusted_data_policies WHERE id = $1`, policyID)
	if err != nil {
		return fmt.Errorf("repositories: delete trusted data policy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// OptIn records that an agent has opted in to a trusted-data policy.
func (r *TrustedDataPolicyRepository) OptIn(ctx context.Context, agentID, policyID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agent_trusted_data_policies (agent_id, policy_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, agentID, policyID)
	if err != nil {
		return fmt.Errorf("repositories: opt in to trusted data policy: %w", err)
	}
	return nil
}

// OptOut removes an agent's opt-in to a trusted-data policy.
func (r *TrustedDataPolicyRepository) OptOut(ctx context.Context, agentID, policyID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM agent_trusted_data_policies WHERE agent_id = $1 AND policy_id = $2`, agentID, policyID)
	if err != nil {
		return fmt.Errorf("repositories: opt out of trusted data policy: %w", err)
	}
	return nil
}
