package repositories

import (
	"context"
	"fmt"

	"github.com/archestra-ai/gateway/pkg/database"
	"github.com/archestra-ai/gateway/pkg/models"
)

// LLMConversationRepository provides data access for the per-iteration LLM
// call log recorded alongside each Interaction.
type LLMConversationRepository struct {
	db *database.DB
}

// NewLLMConversationRepository constructs an LLMConversationRepository.
func NewLLMConversationRepository(db *database.DB) *LLMConversationRepository {
	return &LLMConversationRepository{db: db}
}

// Save inserts a new conversation record, typically before the upstream call
// is made so an in-flight call is observable with status 'pending'.
func (r *LLMConversationRepository) Save(ctx context.Context, conv *models.LLMConversation) error {
	if conv.Status == "" {
		conv.Status = models.LLMConversationStatusPending
	}

	query := `
		INSERT INTO llm_conversations (
			agent_id, chat_id, role, iteration, endpoint, model,
			request_messages, request_tools, temperature,
			response_content, response_tool_calls,
			prompt_tokens, completion_tokens, total_tokens, duration_ms,
			status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	return r.db.QueryRow(ctx, query,
		conv.AgentID, conv.ChatID, conv.Role, conv.Iteration, conv.Endpoint, conv.Model,
		jsonbValue(conv.RequestMessages), jsonbValue(conv.RequestTools), conv.Temperature,
		nullString(conv.ResponseContent), jsonbValue(conv.ResponseToolCalls),
		conv.PromptTokens, conv.CompletionTokens, conv.TotalTokens, conv.DurationMs,
		conv.Status, nullString(conv.ErrorMessage),
	).Scan(&conv.ID, &conv.CreatedAt)
}

// Complete updates a previously-saved record with its outcome. Called once
// the upstream call returns, whether it succeeded or failed.
func (r *LLMConversationRepository) Complete(ctx context.Context, conv *models.LLMConversation) error {
	query := `
		UPDATE llm_conversations
		SET response_content = $2,
		    response_tool_calls = $3,
		    prompt_tokens = $4,
		    completion_tokens = $5,
		    total_tokens = $6,
		    duration_ms = $7,
		    status = $8,
		    error_message = $9
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		conv.ID,
		nullString(conv.ResponseContent), jsonbValue(conv.ResponseToolCalls),
		conv.PromptTokens, conv.CompletionTokens, conv.TotalTokens, conv.DurationMs,
		conv.Status, nullString(conv.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("repositories: complete llm conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("repositories: llm conversation %s not found", conv.ID)
	}
	return nil
}

// ListByChat returns every logged call for a chat, in iteration order, used
// by the admin surface to inspect the exact bytes sent upstream for a
// request.
func (r *LLMConversationRepository) ListByChat(ctx context.Context, chatID string) ([]*models.LLMConversation, error) {
	query := `
		SELECT id, agent_id, chat_id, role, iteration, endpoint, model,
		       request_messages, request_tools, temperature,
		       response_content, response_tool_calls,
		       prompt_tokens, completion_tokens, total_tokens, duration_ms,
		       status, error_message, created_at
		FROM llm_conversations
		WHERE chat_id = $1
		ORDER BY iteration ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("repositories: list llm conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.LLMConversation
	for rows.Next() {
		conv, err := scanLLMConversationRow(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repositories: iterate llm conversations: %w", err)
	}
	return conversations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLLMConversationRow(row rowScanner) (*models.LLMConversation, error) {
	var conv models.LLMConversation
	var requestMessagesJSON, requestToolsJSON, responseToolCallsJSON []byte
	var responseContent, errorMessage *string

	err := row.Scan(
		&conv.ID, &conv.AgentID, &conv.ChatID, &conv.Role, &conv.Iteration, &conv.Endpoint, &conv.Model,
		&requestMessagesJSON, &requestToolsJSON, &conv.Temperature,
		&responseContent, &responseToolCallsJSON,
		&conv.PromptTokens, &conv.CompletionTokens, &conv.TotalTokens, &conv.DurationMs,
		&conv.Status, &errorMessage, &conv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repositories: scan llm conversation: %w", err)
	}

	conv.ResponseContent = stringOrEmpty(responseContent)
	conv.ErrorMessage = stringOrEmpty(errorMessage)

	if err := jsonUnmarshal(requestMessagesJSON, &conv.RequestMessages); err != nil {
		return nil, fmt.Errorf("repositories: unmarshal request_messages: %w", err)
	}
	if err := jsonUnmarshal(requestToolsJSON, &conv.RequestTools); err != nil {
		return nil, fmt.Errorf("repositories: unmarshal request_tools: %w", err)
	}
	if err := jsonUnmarshal(responseToolCallsJSON, &conv.ResponseToolCalls); err != nil {
		return nil, fmt.Errorf("repositories: unmarshal response_tool_calls: %w", err)
	}

	return &conv, nil
}
