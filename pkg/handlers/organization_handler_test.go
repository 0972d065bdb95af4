package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/models"
)

type fakeOrganizations struct {
	createdOrg   *models.Organization
	createdTeam  *models.Team
	addedAgent   uuid.UUID
	addedTeam    uuid.UUID
	removedAgent uuid.UUID
	removedTeam  uuid.UUID
	err          error
}

func (f *fakeOrganizations) Create(ctx context.Context, org *models.Organization) error {
	if f.err != nil {
		return f.err
	}
	f.createdOrg = org
	return nil
}

func (f *fakeOrganizations) CreateTeam(ctx context.Context, team *models.Team) error {
	if f.err != nil {
		return f.err
	}
	f.createdTeam = team
	return nil
}

func (f *fakeOrganizations) AddAgentToTeam(ctx context.Context, agentID, teamID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.addedAgent, f.addedTeam = agentID, teamID
	return nil
}

func (f *fakeOrganizations) RemoveAgentFromTeam(ctx context.Context, agentID, teamID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.removedAgent, f.removedTeam = agentID, teamID
	return nil
}

func newTestOrganizationHandler(orgs OrganizationRepository) *OrganizationHandler {
	return NewOrganizationHandler(orgs, zap.NewNop())
}

func TestOrganizationHandler_Create_RequiresName(t *testing.T) {
	h := newTestOrganizationHandler(&fakeOrganizations{})

	body, _ := json.Marshal(models.Organization{})
	req := httptest.NewRequest(http.MethodPost, "/admin/organizations", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrganizationHandler_Create_Succeeds(t *testing.T) {
	store := &fakeOrganizations{}
	h := newTestOrganizationHandler(store)

	body, _ := json.Marshal(models.Organization{Name: "Acme"})
	req := httptest.NewRequest(http.MethodPost, "/admin/organizations", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.createdOrg == nil || store.createdOrg.Name != "Acme" {
		t.Fatalf("expected organization named Acme, got %+v", store.createdOrg)
	}
}

func TestOrganizationHandler_CreateTeam_SetsOrganizationIDFromPath(t *testing.T) {
	store := &fakeOrganizations{}
	h := newTestOrganizationHandler(store)

	orgID := uuid.New()
	body, _ := json.Marshal(models.Team{Name: "Platform"})
	req := httptest.NewRequest(http.MethodPost, "/admin/organizations/"+orgID.String()+"/teams", bytes.NewReader(body))
	req.SetPathValue("orgId", orgID.String())
	rec := httptest.NewRecorder()

	h.CreateTeam(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.createdTeam == nil || store.createdTeam.OrganizationID != orgID {
		t.Fatalf("expected team scoped to org %s, got %+v", orgID, store.createdTeam)
	}
}

func TestOrganizationHandler_CreateTeam_InvalidOrgID(t *testing.T) {
	h := newTestOrganizationHandler(&fakeOrganizations{})

	req := httptest.NewRequest(http.MethodPost, "/admin/organizations/not-a-uuid/teams", bytes.NewReader([]byte(`{"name":"Platform"}`)))
	req.SetPathValue("orgId", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.CreateTeam(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrganizationHandler_AddAgentToTeam(t *testing.T) {
	store := &fakeOrganizations{}
	h := newTestOrganizationHandler(store)

	teamID, agentID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/admin/teams/"+teamID.String()+"/agents/"+agentID.String(), nil)
	req.SetPathValue("teamId", teamID.String())
	req.SetPathValue("agentId", agentID.String())
	rec := httptest.NewRecorder()

	h.AddAgentToTeam(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if store.addedAgent != agentID || store.addedTeam != teamID {
		t.Fatalf("expected agent %s added to team %s, got agent=%s team=%s", agentID, teamID, store.addedAgent, store.addedTeam)
	}
}

func TestOrganizationHandler_RemoveAgentFromTeam(t *testing.T) {
	store := &fakeOrganizations{}
	h := newTestOrganizationHandler(store)

	teamID, agentID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/admin/teams/"+teamID.String()+"/agents/"+agentID.String(), nil)
	req.SetPathValue("teamId", teamID.String())
	req.SetPathValue("agentId", agentID.String())
	rec := httptest.NewRecorder()

	h.RemoveAgentFromTeam(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if store.removedAgent != agentID || store.removedTeam != teamID {
		t.Fatalf("expected agent %s removed from team %s, got agent=%s team=%s", agentID, teamID, store.removedAgent, store.removedTeam)
	}
}
