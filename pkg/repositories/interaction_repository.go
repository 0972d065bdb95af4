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

// InteractionRepository provides data access for persisted interactions and
// the proposed-tool-call mapping used to resolve a tool message's
// originating tool without re-parsing provider response bodies.
type InteractionRepository struct {
	db    *database.DB
	tools *ToolRepository
}

// NewInteractionRepository constructs an InteractionRepository.
func NewInteractionRepository(db *database.DB, tools *ToolRepository) *InteractionRepository {
	return &InteractionRepository{db: db, tools: tools}
}

// Record persists any Interaction row (completion, refusal, or tool_result).
func (r *InteractionRepository) Record(ctx context.Context, interaction *models.Interaction) error {
	query := `
		INSERT INTO interactions (
			agent_id, chat_id, type, request, response, input_tokens, output_tokens,
			content, trusted, blocked, reason, tool_call_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`

	return r.db.QueryRow(ctx, query,
		interaction.AgentID, interaction.ChatID, interaction.Type, interaction.Request, interaction.Response,
		interaction.InputTokens, interaction.OutputTokens, interaction.Content,
		interaction.Trusted, interaction.Blocked, interaction.Reason, nullString(interaction.ToolCallID),
	).Scan(&interaction.ID, &interaction.CreatedAt)
}

// RecordToolResult persists a tool-result classification. Satisfies
// pkg/trust.InteractionRecorder.
func (r *InteractionRepository) RecordToolResult(ctx context.Context, interaction *models.Interaction) error {
	return r.Record(ctx, interaction)
}

// RecordProposedToolCalls remembers, for a chat, which tool a proposed
// tool_call_id refers to. Called when the orchestrator persists a
// completion interaction that proposes tool calls, so later tool-result
// messages in the same chat can resolve their originating tool.
func (r *InteractionRepository) RecordProposedToolCalls(ctx context.Context, chatID string, calls []models.ToolCall) error {
	for _, call := range calls {
		_, err := r.db.Exec(ctx, `
			INSERT INTO proposed_tool_calls (chat_id, tool_call_id, tool_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (chat_id, tool_call_id) DO NOTHING`, chatID, call.ID, call.Name)
		if err != nil {
			return fmt.Errorf("repositories: record proposed tool call: %w", err)
		}
	}
	return nil
}

// ResolveToolCall maps a tool_call_id seen in a chat back to the tool that
// was invoked. Satisfies pkg/trust.ToolCallResolver.
func (r *InteractionRepository) ResolveToolCall(ctx context.Context, agentID uuid.UUID, chatID, toolCallID string) (*models.Tool, error) {
	var toolName string
	err := r.db.QueryRow(ctx, `
		SELECT tool_name FROM proposed_tool_calls WHERE chat_id = $1 AND tool_call_id = $2`,
		chatID, toolCallID,
	).Scan(&toolName)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("repositories: no assistant tool_call %s found in chat %s: %w", toolCallID, chatID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: resolve tool call: %w", err)
	}

	return r.tools.ToolByName(ctx, agentID, toolName)
}

// ClassificationForToolCall returns the most recently persisted
// classification for a tool message. Satisfies pkg/trust.ClassificationStore.
func (r *InteractionRepository) ClassificationForToolCall(ctx context.Context, chatID, toolCallID string) (trusted, blocked, found bool, err error) {
	query := `
		SELECT trusted, blocked FROM interactions
		WHERE chat_id = $1 AND tool_call_id = $2 AND type = $3
		ORDER BY created_at DESC
		LIMIT 1`

	err = r.db.QueryRow(ctx, query, chatID, toolCallID, models.InteractionTypeToolResult).Scan(&trusted, &blocked)
	if err == pgx.ErrNoRows {
		return false, false, false, nil
	}
	if err != nil {
		return false, false, false, fmt.Errorf("repositories: lookup classification: %w", err)
	}
	return trusted, blocked, true, nil
}

// ListByChat returns every interaction recorded for a chat, in chronological
// order, used to reconstruct context for admin inspection.
func (r *InteractionRepository) ListByChat(ctx context.Context, chatID string) ([]*models.Interaction, error) {
	query := `
		SELECT id, agent_id, chat_id, type, request, response, input_tokens, output_tokens,
		       content, trusted, blocked, reason, tool_call_id, created_at
		FROM interactions
		WHERE chat_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("repositories: list interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*models.Interaction
	for rows.Next() {
		var i models.Interaction
		var toolCallID *string
		if err := rows.Scan(&i.ID, &i.AgentID, &i.ChatID, &i.Type, &i.Request, &i.Response, &i.InputTokens, &i.OutputTokens,
			&i.Content, &i.Trusted, &i.Blocked, &i.Reason, &toolCallID, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("repositories: scan interaction: %w", err)
		}
		i.ToolCallID = stringOrEmpty(toolCallID)
		interactions = append(interactions, &i)
	}
	return interactions, rows.Err()
}
