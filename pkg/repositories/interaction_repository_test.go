//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/models"
	"github.com/archestra-ai/gateway/pkg/testhelpers"
)

func TestInteractionRepository_ResolveToolCall(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	agents := NewAgentRepository(db)
	tools := NewToolRepository(db)
	interactions := NewInteractionRepository(db, tools)
	ctx := context.Background()

	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	tool := &models.Tool{AgentID: agent.ID, Name: "web_search", Parameters: map[string]any{}}
	if err := tools.Upsert(ctx, tool); err != nil {
		t.Fatalf("upsert tool: %v", err)
	}

	chatID := "chat-" + uuid.New().String()
	if err := interactions.RecordProposedToolCalls(ctx, chatID, []models.ToolCall{
		{ID: "call_1", Name: "web_search", Arguments: `{"query":"go generics"}`},
	}); err != nil {
		t.Fatalf("RecordProposedToolCalls: %v", err)
	}

	resolved, err := interactions.ResolveToolCall(ctx, agent.ID, chatID, "call_1")
	if err != nil {
		t.Fatalf("ResolveToolCall: %v", err)
	}
	if resolved.ID != tool.ID {
		t.Errorf("expected tool %s, got %s", tool.ID, resolved.ID)
	}
}

func TestInteractionRepository_ResolveToolCall_UnknownReturnsNotFound(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	tools := NewToolRepository(db)
	interactions := NewInteractionRepository(db, tools)

	_, err := interactions.ResolveToolCall(context.Background(), uuid.New(), "chat-missing", "call_missing")
	if err == nil {
		t.Fatal("expected error for unknown tool call")
	}
	if !isNotFound(err) {
		t.Errorf("expected error wrapping ErrNotFound, got %v", err)
	}
}

func isNotFound(err error) bool {
	for err != nil {
		if err == apperrors.ErrNotFound {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestInteractionRepository_RecordAndClassify(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	agents := NewAgentRepository(db)
	interactions := NewInteractionRepository(db, NewToolRepository(db))
	ctx := context.Background()

	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	chatID := "chat-" + uuid.New().String()
	toolCallID := "call_1"

	_, _, found, err := interactions.ClassificationForToolCall(ctx, chatID, toolCallID)
	if err != nil {
		t.Fatalf("ClassificationForToolCall (before record): %v", err)
	}
	if found {
		t.Fatal("expected no classification before any record")
	}

	interaction := &models.Interaction{
		AgentID:    agent.ID,
		ChatID:     &chatID,
		Type:       models.InteractionTypeToolResult,
		Content:    []byte(`{"sender":{"domain":"trusted.example.com"}}`),
		Trusted:    true,
		Blocked:    false,
		ToolCallID: toolCallID,
	}
	if err := interactions.RecordToolResult(ctx, interaction); err != nil {
		t.Fatalf("RecordToolResult: %v", err)
	}

	trusted, blocked, found, err := interactions.ClassificationForToolCall(ctx, chatID, toolCallID)
	if err != nil {
		t.Fatalf("ClassificationForToolCall: %v", err)
	}
	if !found {
		t.Fatal("expected classification to be found")
	}
	if !trusted || blocked {
		t.Errorf("expected trusted=true blocked=false, got trusted=%v blocked=%v", trusted, blocked)
	}
}

func TestInteractionRepository_ListByChat(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	agents := NewAgentRepository(db)
	interactions := NewInteractionRepository(db, NewToolRepository(db))
	ctx := context.Background()

	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	chatID := "chat-" + uuid.New().String()
	for i := 0; i < 3; i++ {
		interaction := &models.Interaction{
			AgentID: agent.ID,
			ChatID:  &chatID,
			Type:    models.InteractionTypeAnthropicCompletion,
		}
		if err := interactions.Record(ctx, interaction); err != nil {
			t.Fatalf("Record #%d: %v", i, err)
		}
	}

	list, err := interactions.ListByChat(ctx, chatID)
	if err != nil {
		t.Fatalf("ListByChat: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 interactions, got %d", len(list))
	}
}
