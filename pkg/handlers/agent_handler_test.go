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

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/models"
)

type fakeAgents struct {
	created *models.Agent
	byID    *models.Agent
	err     error
}

func (f *fakeAgents) Create(ctx context.Context, agent *models.Agent) error {
	if f.err != nil {
		return f.err
	}
	f.created = agent
	return nil
}

func (f *fakeAgents) GetByID(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	return f.byID, f.err
}

type fakeAdminTools struct {
	byID     *models.Tool
	byAgent  []*models.Tool
	upserted *models.Tool
	err      error
}

func (f *fakeAdminTools) GetByID(ctx context.Context, toolID uuid.UUID) (*models.Tool, error) {
	return f.byID, f.err
}

func (f *fakeAdminTools) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.Tool, error) {
	return f.byAgent, f.err
}

func (f *fakeAdminTools) Upsert(ctx context.Context, tool *models.Tool) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = tool
	return nil
}

func (f *fakeAdminTools) Delete(ctx context.Context, toolID uuid.UUID) error {
	return f.err
}

func newTestAgentHandler(agents AgentRepository, tools ToolRepository) *AgentHandler {
	return NewAgentHandler(agents, tools, zap.NewNop())
}

func TestAgentHandler_Create_RequiresName(t *testing.T) {
	h := newTestAgentHandler(&fakeAgents{}, &fakeAdminTools{})

	req := httptest.NewRequest(http.MethodPost, "/admin/agents", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAgentHandler_Create_Succeeds(t *testing.T) {
	store := &fakeAgents{}
	h := newTestAgentHandler(store, &fakeAdminTools{})

	body, _ := json.Marshal(createAgentRequest{Name: "billing-bot"})
	req := httptest.NewRequest(http.MethodPost, "/admin/agents", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created == nil || store.created.Name != "billing-bot" {
		t.Fatalf("expected agent named billing-bot, got %+v", store.created)
	}
}

func TestAgentHandler_Get_NotFound(t *testing.T) {
	h := newTestAgentHandler(&fakeAgents{err: apperrors.ErrNotFound}, &fakeAdminTools{})

	agentID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/agents/"+agentID.String(), nil)
	req.SetPathValue("agentId", agentID.String())
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAgentHandler_UpsertTool_RequiresName(t *testing.T) {
	h := newTestAgentHandler(&fakeAgents{}, &fakeAdminTools{})

	agentID, toolID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/admin/agents/"+agentID.String()+"/tools/"+toolID.String(), bytes.NewReader([]byte(`{}`)))
	req.SetPathValue("agentId", agentID.String())
	req.SetPathValue("toolId", toolID.String())
	rec := httptest.NewRecorder()

	h.UpsertTool(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAgentHandler_UpsertTool_SetsPathIDs(t *testing.T) {
	store := &fakeAdminTools{}
	h := newTestAgentHandler(&fakeAgents{}, store)

	agentID, toolID := uuid.New(), uuid.New()
	body, _ := json.Marshal(models.Tool{Name: "search"})
	req := httptest.NewRequest(http.MethodPut, "/admin/agents/"+agentID.String()+"/tools/"+toolID.String(), bytes.NewReader(body))
	req.SetPathValue("agentId", agentID.String())
	req.SetPathValue("toolId", toolID.String())
	rec := httptest.NewRecorder()

	h.UpsertTool(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.upserted == nil || store.upserted.ID != toolID || store.upserted.AgentID != agentID {
		t.Fatalf("expected tool scoped to agent %s and tool %s, got %+v", agentID, toolID, store.upserted)
	}
}

func TestAgentHandler_DeleteTool_InvalidID(t *testing.T) {
	h := newTestAgentHandler(&fakeAgents{}, &fakeAdminTools{})

	req := httptest.NewRequest(http.MethodDelete, "/admin/agents/x/tools/not-a-uuid", nil)
	req.SetPathValue("toolId", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.DeleteTool(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
