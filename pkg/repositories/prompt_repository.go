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

// PromptRepository provides data access for versioned prompts and their
// assignment to agents.
type PromptRepository struct {
	db *database.DB
}

// NewPromptRepository constructs a PromptRepository.
func NewPromptRepository(db *database.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

const promptColumns = `id, org_id, name, type, content, version, parent_prompt_id, is_active, created_by, created_at, updated_at`
const promptColumnsAliased = `p.id, p.org_id, p.name, p.type, p.content, p.version, p.parent_prompt_id, p.is_active, p.created_by, p.created_at, p.updated_at`

func scanPrompt(row pgx.Row) (models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Type, &p.Content, &p.Version, &p.ParentPromptID, &p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ActiveByName returns the currently active prompt for (orgId, name, type).
func (r *PromptRepository) ActiveByName(ctx context.Context, orgID uuid.UUID, name string, promptType models.PromptType) (*models.Prompt, error) {
	query := fmt.Sprintf(`SELECT %s FROM prompts WHERE org_id = $1 AND name = $2 AND type = $3 AND is_active`, promptColumns)
	p, err := scanPrompt(r.db.QueryRow(ctx, query, orgID, name, promptType))
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: get active prompt: %w", err)
	}
	return &p, nil
}

// Create inserts the first version of a new (orgId, name, type) prompt.
func (r *PromptRepository) Create(ctx context.Context, prompt *models.Prompt) error {
	prompt.Version = 1
	prompt.IsActive = true
	query := `
		INSERT INTO prompts (org_id, name, type, content, version, parent_prompt_id, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query, prompt.OrgID, prompt.Name, prompt.Type, prompt.Content, prompt.Version,
		prompt.ParentPromptID, prompt.IsActive, prompt.CreatedBy).Scan(&prompt.ID, &prompt.CreatedAt, &prompt.UpdatedAt)
}

// Update deactivates the current active prompt row and inserts a new row
// with version+1 and parentPromptId set to the deactivated row's id, per
// the versioned-update rule for prompts.
func (r *PromptRepository) Update(ctx context.Context, orgID uuid.UUID, name string, promptType models.PromptType, content, updatedBy string) (*models.Prompt, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repositories: begin prompt update: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanPrompt(tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM prompts WHERE org_id = $1 AND name = $2 AND type = $3 AND is_active FOR UPDATE`, promptColumns), orgID, name, promptType))
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: lock current prompt: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE prompts SET is_active = false, updated_at = now() WHERE id = $1`, current.ID); err != nil {
		return nil, fmt.Errorf("repositories: deactivate prompt: %w", err)
	}

	next := models.Prompt{
		OrgID:          orgID,
		Name:           name,
		Type:           promptType,
		Content:        content,
		Version:        current.Version + 1,
		ParentPromptID: &current.ID,
		IsActive:       true,
		CreatedBy:      updatedBy,
	}
	query := `
		INSERT INTO prompts (org_id, name, type, content, version, parent_prompt_id, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query, next.OrgID, next.Name, next.Type, next.Content, next.Version,
		next.ParentPromptID, next.IsActive, next.CreatedBy).Scan(&next.ID, &next.CreatedAt, &next.UpdatedAt); err != nil {
		return nil, fmt.Errorf("repositories: insert prompt version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repositories: commit prompt update: %w", err)
	}
	return &next, nil
}

// History returns every version of a (orgId, name, type) prompt, newest first.
func (r *PromptRepository) History(ctx context.Context, orgID uuid.UUID, name string, promptType models.PromptType) ([]models.Prompt, error) {
	query := fmt.Sprintf(`SELECT %s FROM prompts WHERE org_id = $1 AND name = $2 AND type = $3 ORDER BY version DESC`, promptColumns)
	rows, err := r.db.Query(ctx, query, orgID, name, promptType)
	if err != nil {
		return nil, fmt.Errorf("repositories: query prompt history: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("repositories: scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// PromptsForAgent returns the prompts bound to an agent, in order.
func (r *PromptRepository) PromptsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Prompt, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM prompts p
		JOIN agent_prompts ap ON ap.prompt_id = p.id
		WHERE ap.agent_id = $1
		ORDER BY ap."order"`, promptColumnsAliased)
	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("repositories: query agent prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("repositories: scan agent prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// SetAgentPrompts replaces an agent's prompt set atomically: delete
// everything bound to the agent, then insert the system prompt (if present)
// at order=0 and each regular prompt at order=i+1 in input order.
func (r *PromptRepository) SetAgentPrompts(ctx context.Context, agentID uuid.UUID, systemPromptID *uuid.UUID, regularPromptIDs []uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repositories: begin set agent prompts: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM agent_prompts WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("repositories: clear agent prompts: %w", err)
	}

	insert := `INSERT INTO agent_prompts (agent_id, prompt_id, "order") VALUES ($1, $2, $3)`
	if systemPromptID != nil {
		if _, err := tx.Exec(ctx, insert, agentID, *systemPromptID, 0); err != nil {
			return fmt.Errorf("repositories: insert system prompt binding: %w", err)
		}
	}
	for i, promptID := range regularPromptIDs {
		if _, err := tx.Exec(ctx, insert, agentID, promptID, i+1); err != nil {
			return fmt.Errorf("repositories: insert regular prompt binding: %w", err)
		}
	}

	return tx.Commit(ctx)
}
