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

func TestToolInvocationPolicyRepository_CreateAndLookup(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	agents := NewAgentRepository(db)
	policies := NewToolInvocationPolicyRepository(db)
	ctx := context.Background()

	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	policy := &models.ToolInvocationPolicy{
		AgentID:     agent.ID,
		ToolName:    "send_email",
		Condition:   "",
		Action:      models.InvocationActionRequireTrustedContext,
		Description: "sending email requires a trusted context",
	}
	if err := policies.Create(ctx, policy); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if policy.ID == uuid.Nil {
		t.Fatal("expected ID to be set")
	}

	got, err := policies.PoliciesForTool(ctx, agent.ID, "send_email")
	if err != nil {
		t.Fatalf("PoliciesForTool: %v", err)
	}
	if len(got) != 1 || got[0].Action != models.InvocationActionRequireTrustedContext {
		t.Fatalf("expected one require_trusted_context policy, got %v", got)
	}
}

func TestToolInvocationPolicyRepository_PoliciesForTool_Empty(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	policies := NewToolInvocationPolicyRepository(db)

	got, err := policies.PoliciesForTool(context.Background(), uuid.New(), "nonexistent_tool")
	if err != nil {
		t.Fatalf("PoliciesForTool: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no policies, got %d", len(got))
	}
}

func TestToolInvocationPolicyRepository_Delete(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	agents := NewAgentRepository(db)
	policies := NewToolInvocationPolicyRepository(db)
	ctx := context.Background()

	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	policy := &models.ToolInvocationPolicy{
		AgentID:  agent.ID,
		ToolName: "delete_file",
		Action:   models.InvocationActionBlockAlways,
	}
	if err := policies.Create(ctx, policy); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := policies.Delete(ctx, policy.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := policies.Delete(ctx, policy.ID); err != apperrors.ErrNotFound {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
