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

func TestOrganizationRepository_CreateAndGetByID(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	orgs := NewOrganizationRepository(db)
	ctx := context.Background()

	org := &models.Organization{Name: "org-" + uuid.New().String(), LimitCleanupInterval: models.LimitCleanupInterval24Hours}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := orgs.OrganizationByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("OrganizationByID: %v", err)
	}
	if got.Name != org.Name {
		t.Errorf("expected name %q, got %q", org.Name, got.Name)
	}
	if got.LimitCleanupInterval != models.LimitCleanupInterval24Hours {
		t.Errorf("expected cleanup interval 24h, got %q", got.LimitCleanupInterval)
	}
}

func TestOrganizationRepository_Create_DefaultsCleanupInterval(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	orgs := NewOrganizationRepository(db)
	ctx := context.Background()

	org := &models.Organization{Name: "org-" + uuid.New().String()}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if org.LimitCleanupInterval != models.DefaultLimitCleanupInterval {
		t.Errorf("expected default cleanup interval, got %q", org.LimitCleanupInterval)
	}
}

func TestOrganizationRepository_OrganizationByID_NotFound(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	orgs := NewOrganizationRepository(db)

	_, err := orgs.OrganizationByID(context.Background(), uuid.New())
	if err != apperrors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrganizationRepository_AddAndRemoveAgentFromTeam(t *testing.T) {
	db := testhelpers.GetGatewayDB(t).DB
	orgs := NewOrganizationRepository(db)
	agents := NewAgentRepository(db)
	ctx := context.Background()

	org := &models.Organization{Name: "org-" + uuid.New().String()}
	if err := orgs.Create(ctx, org); err != nil {
		t.Fatalf("create org: %v", err)
	}
	team := &models.Team{OrganizationID: org.ID, Name: "team-" + uuid.New().String()}
	if err := orgs.CreateTeam(ctx, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	agent := &models.Agent{Name: "agent-" + uuid.New().String()}
	if err := agents.Create(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if err := orgs.AddAgentToTeam(ctx, agent.ID, team.ID); err != nil {
		t.Fatalf("AddAgentToTeam: %v", err)
	}
	teamIDs, err := agents.TeamIDsForAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("TeamIDsForAgent: %v", err)
	}
	if len(teamIDs) != 1 {
		t.Fatalf("expected 1 team, got %d", len(teamIDs))
	}

	if err := orgs.RemoveAgentFromTeam(ctx, agent.ID, team.ID); err != nil {
		t.Fatalf("RemoveAgentFromTeam: %v", err)
	}
	teamIDs, err = agents.TeamIDsForAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("TeamIDsForAgent (after remove): %v", err)
	}
	if len(teamIDs) != 0 {
		t.Fatalf("expected 0 teams after removal, got %d", len(teamIDs))
	}
}
