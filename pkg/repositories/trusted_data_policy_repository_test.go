//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/archestra-ai/gateway/pkg/models"
	"github.com/archestra-ai/gateway/pkg/testhelpers"
)

func TestTrustedDataPolicyRepository_OptInAndLookup(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	agents := NewAgentRepository(db)
	tools := NewToolRepository(db)
	policies := NewTrustedDataPolicyRepository(db)
	ctx := context.Background()

	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	tool := &models.Tool{AgentID: agent.ID, Name: "search_email", Parameters: map[string]any{}}
	if err := tools.Upsert(ctx, tool); err != nil {
		t.Fatalf("upsert tool: %v", err)
	}

	policy := &models.TrustedDataPolicy{
		ToolID:        tool.ID,
		AttributePath: "sender.domain",
		Operator:      models.OperatorEqual,
		Value:         "trusted.example.com",
		Action:        models.TrustActionMarkTrusted,
		Description:   "trust mail from the corp domain",
	}
	if err := policies.Create(ctx, policy); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	// Not opted in yet: lookup returns nothing.
	got, err := policies.PoliciesForAgentTool(ctx, agent.ID, tool.ID)
	if err != nil {
		t.Fatalf("PoliciesForAgentTool: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no policies before opt-in, got %d", len(got))
	}

	if err := policies.OptIn(ctx, agent.ID, policy.ID); err != nil {
		t.Fatalf("OptIn: %v", err)
	}

	got, err = policies.PoliciesForAgentTool(ctx, agent.ID, tool.ID)
	if err != nil {
		t.Fatalf("PoliciesForAgentTool after opt-in: %v", err)
	}
	if len(got) != 1 || got[0].ID != policy.ID {
		t.Fatalf("expected [%s], got %v", policy.ID, got)
	}

	if err := policies.OptOut(ctx, agent.ID, policy.ID); err != nil {
		t.Fatalf("OptOut: %v", err)
	}

	got, err = policies.PoliciesForAgentTool(ctx, agent.ID, tool.ID)
	if err != nil {
		t.Fatalf("PoliciesForAgentTool after opt-out: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no policies after opt-out, got %d", len(got))
	}
}
