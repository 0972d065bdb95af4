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

// ToolRepository provides data access for an agent's tool set.
type ToolRepository struct {
	db *database.DB
}

// NewToolRepository constructs a ToolRepository.
func NewToolRepository(db *database.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

const toolColumns = `id, agent_id, name, description, parameters, endpoint, allow_usage_when_untrusted_data_is_present, data_is_trusted_by_default`

func scanTool(row pgx.Row) (*models.Tool, error) {
	var t models.Tool
	var parameters []byte
	if err := row.Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &parameters, &t.Endpoint, &t.AllowUsageWhenUntrustedDataIsPresent, &t.DataIsTrustedByDefault); err != nil {
		return nil, err
	}
	if err := jsonUnmarshal(parameters, &t.Parameters); err != nil {
		return nil, fmt.Errorf("repositories: unmarshal tool parameters: %w", err)
	}
	return &t, nil
}

// ToolByName resolves a tool by its agent-scoped name. Satisfies
// pkg/invocation.ToolLookup.
func (r *ToolRepository) ToolByName(ctx context.Context, agentID uuid.UUID, name string) (*models.Tool, error) {
	query := fmt.Sprintf(`SELECT %s FROM tools WHERE agent_id = $1 AND name = $2`, toolColumns)
	tool, err := scanTool(r.db.QueryRow(ctx, query, agentID, name))
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: get tool by name: %w", err)
	}
	return tool, nil
}

// GetByID resolves a tool by ID.
func (r *ToolRepository) GetByID(ctx context.Context, toolID uuid.UUID) (*models.Tool, error) {
	query := fmt.Sprintf(`SELECT %s FROM tools WHERE id = $1`, toolColumns)
	tool, err := scanTool(r.db.QueryRow(ctx, query, toolID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: get tool by id: %w", err)
	}
	return tool, nil
}

// ListByAgent returns every tool declared for an agent.
func (r *ToolRepository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.Tool, error) {
	query := fmt.Sprintf(`SELECT %s FROM tools WHERE agent_id = $1 ORDER BY name`, toolColumns)
	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("repositories: list tools: %w", err)
	}
	defer rows.Close()

	var tools []*models.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("repositories: scan tool: %w", err)
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// Upsert inserts a tool declaration or, if one already exists for
// (agentId, name), leaves its trust defaults untouched and only refreshes
// description/parameters. Per §4.6 step 3, "re-declaring does not change
// trust defaults."
func (r *ToolRepository) Upsert(ctx context.Context, tool *models.Tool) error {
	query := `
		INSERT INTO tools (agent_id, name, description, parameters, endpoint, allow_usage_when_untrusted_data_is_present, data_is_trusted_by_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id, name) DO UPDATE
		SET description = EXCLUDED.description, parameters = EXCLUDED.parameters, endpoint = EXCLUDED.endpoint
		RETURNING id, allow_usage_when_untrusted_data_is_present, data_is_trusted_by_default`

	return r.db.QueryRow(ctx, query,
		tool.AgentID, tool.Name, tool.Description, jsonbValue(tool.Parameters), tool.Endpoint,
		tool.AllowUsageWhenUntrustedDataIsPresent, tool.DataIsTrustedByDefault,
	).Scan(&tool.ID, &tool.AllowUsageWhenUntrustedDataIsPresent, &tool.DataIsTrustedByDefault)
}

// Delete removes a tool and its attached policies (cascaded).
func (r *ToolRepository) Delete(ctx context.Context, toolID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM tools WHERE id = $1`, toolID)
	if err != nil {
		return fmt.Errorf("repositories: delete tool: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
