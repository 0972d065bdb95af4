package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/models"
)

// AgentRepository is the admin-facing agent repository surface. Declared
// here as a consumer-defined interface rather than depending on the
// concrete pkg/repositories type.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
}

// ToolRepository is the admin-facing tool repository surface.
type ToolRepository interface {
	GetByID(ctx context.Context, toolID uuid.UUID) (*models.Tool, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.Tool, error)
	Upsert(ctx context.Context, tool *models.Tool) error
	Delete(ctx context.Context, toolID uuid.UUID) error
}

// AgentHandler serves admin CRUD for agents and their declared tools.
// Prompt and agent-prompt assignment surfaces and front-end consumption of
// this API are out of scope; this exists only so the gateway can be
// administered without direct database access.
type AgentHandler struct {
	agents AgentRepository
	tools  ToolRepository
	logger *zap.Logger
}

// NewAgentHandler constructs an AgentHandler.
func NewAgentHandler(agents AgentRepository, tools ToolRepository, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{agents: agents, tools: tools, logger: logger.Named("handlers.agent")}
}

// RegisterRoutes registers the admin agent and tool routes on mux. Callers
// wrap these with auth middleware before registering.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/agents", h.Create)
	mux.HandleFunc("GET /admin/agents/{agentId}", h.Get)
	mux.HandleFunc("GET /admin/agents/{agentId}/tools", h.ListTools)
	mux.HandleFunc("PUT /admin/agents/{agentId}/tools/{toolId}", h.UpsertTool)
	mux.HandleFunc("DELETE /admin/agents/{agentId}/tools/{toolId}", h.DeleteTool)
}

type createAgentRequest struct {
	Name   string         `json:"name"`
	Labels []models.Label `json:"labels"`
}

// Create handles POST /admin/agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "name is required")
		return
	}

	agent := &models.Agent{Name: req.Name, Labels: req.Labels}
	if err := h.agents.Create(r.Context(), agent); err != nil {
		h.logger.Error("create agent failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create agent")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, agent)
}

// Get handles GET /admin/agents/{agentId}.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}

	agent, err := h.agents.GetByID(r.Context(), agentID)
	if err != nil {
		h.writeRepoError(w, err, "agent not found")
		return
	}
	_ = WriteJSON(w, http.StatusOK, agent)
}

// ListTools handles GET /admin/agents/{agentId}/tools.
func (h *AgentHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}

	tools, err := h.tools.ListByAgent(r.Context(), agentID)
	if err != nil {
		h.logger.Error("list tools failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to list tools")
		return
	}
	_ = WriteJSON(w, http.StatusOK, tools)
}

// UpsertTool handles PUT /admin/agents/{agentId}/tools/{toolId}: declares or
// updates a managed tool, the set §4.6 step 3 overlays onto inbound tool
// declarations.
func (h *AgentHandler) UpsertTool(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}
	toolID, err := uuid.Parse(r.PathValue("toolId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid tool ID format")
		return
	}

	var tool models.Tool
	if err := json.NewDecoder(r.Body).Decode(&tool); err != nil || tool.Name == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "name is required")
		return
	}
	tool.ID = toolID
	tool.AgentID = agentID

	if err := h.tools.Upsert(r.Context(), &tool); err != nil {
		h.logger.Error("upsert tool failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to upsert tool")
		return
	}
	_ = WriteJSON(w, http.StatusOK, &tool)
}

// DeleteTool handles DELETE /admin/agents/{agentId}/tools/{toolId}.
func (h *AgentHandler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	toolID, err := uuid.Parse(r.PathValue("toolId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid tool ID format")
		return
	}

	if err := h.tools.Delete(r.Context(), toolID); err != nil {
		h.writeRepoError(w, err, "failed to delete tool")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) writeRepoError(w http.ResponseWriter, err error, notFoundMessage string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = WriteError(w, http.StatusNotFound, ErrorTypeNotFound, notFoundMessage)
		return
	}
	h.logger.Error("repository call failed", zap.Error(err))
	_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "internal error")
}
