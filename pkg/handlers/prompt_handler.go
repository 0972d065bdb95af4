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

// PromptRepository is the admin-facing prompt repository surface.
type PromptRepository interface {
	ActiveByName(ctx context.Context, orgID uuid.UUID, name string, promptType models.PromptType) (*models.Prompt, error)
	Create(ctx context.Context, prompt *models.Prompt) error
	Update(ctx context.Context, orgID uuid.UUID, name string, promptType models.PromptType, content, updatedBy string) (*models.Prompt, error)
	History(ctx context.Context, orgID uuid.UUID, name string, promptType models.PromptType) ([]models.Prompt, error)
	SetAgentPrompts(ctx context.Context, agentID uuid.UUID, systemPromptID *uuid.UUID, regularPromptIDs []uuid.UUID) error
}

// PromptHandler serves admin CRUD for versioned prompts and their
// assignment to agents. Updates never overwrite a row in place; they
// deactivate the current version and insert the next one, preserving the
// linear version chain invariant.
type PromptHandler struct {
	prompts PromptRepository
	logger  *zap.Logger
}

// NewPromptHandler constructs a PromptHandler.
func NewPromptHandler(prompts PromptRepository, logger *zap.Logger) *PromptHandler {
	return &PromptHandler{prompts: prompts, logger: logger.Named("handlers.prompt")}
}

// RegisterRoutes registers the admin prompt routes on mux.
func (h *PromptHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/organizations/{orgId}/prompts", h.Create)
	mux.HandleFunc("GET /admin/organizations/{orgId}/prompts/{name}", h.GetActive)
	mux.HandleFunc("PUT /admin/organizations/{orgId}/prompts/{name}", h.Update)
	mux.HandleFunc("GET /admin/organizations/{orgId}/prompts/{name}/history", h.History)
	mux.HandleFunc("PUT /admin/agents/{agentId}/prompts", h.SetAgentPrompts)
}

type promptBody struct {
	Name    string            `json:"name"`
	Type    models.PromptType `json:"type"`
	Content string            `json:"content"`
}

// Create handles POST /admin/organizations/{orgId}/prompts.
func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("orgId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid organization ID format")
		return
	}

	var body promptBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" || body.Type == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "name and type are required")
		return
	}

	prompt := &models.Prompt{OrgID: orgID, Name: body.Name, Type: body.Type, Content: body.Content, CreatedBy: adminIdentity(r)}
	if err := h.prompts.Create(r.Context(), prompt); err != nil {
		h.logger.Error("create prompt failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create prompt")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, prompt)
}

// GetActive handles GET /admin/organizations/{orgId}/prompts/{name}.
func (h *PromptHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("orgId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid organization ID format")
		return
	}
	promptType := models.PromptType(r.URL.Query().Get("type"))
	if promptType == "" {
		promptType = models.PromptTypeRegular
	}

	prompt, err := h.prompts.ActiveByName(r.Context(), orgID, r.PathValue("name"), promptType)
	if err != nil {
		h.writeRepoError(w, err, "prompt not found")
		return
	}
	_ = WriteJSON(w, http.StatusOK, prompt)
}

// Update handles PUT /admin/organizations/{orgId}/prompts/{name}.
func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("orgId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid organization ID format")
		return
	}

	var body promptBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Type == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "type is required")
		return
	}

	prompt, err := h.prompts.Update(r.Context(), orgID, r.PathValue("name"), body.Type, body.Content, adminIdentity(r))
	if err != nil {
		h.writeRepoError(w, err, "prompt not found")
		return
	}
	_ = WriteJSON(w, http.StatusOK, prompt)
}

// History handles GET /admin/organizations/{orgId}/prompts/{name}/history.
func (h *PromptHandler) History(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("orgId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid organization ID format")
		return
	}
	promptType := models.PromptType(r.URL.Query().Get("type"))
	if promptType == "" {
		promptType = models.PromptTypeRegular
	}

	history, err := h.prompts.History(r.Context(), orgID, r.PathValue("name"), promptType)
	if err != nil {
		h.logger.Error("prompt history failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to load prompt history")
		return
	}
	_ = WriteJSON(w, http.StatusOK, history)
}

type setAgentPromptsRequest struct {
	SystemPromptID   *uuid.UUID  `json:"systemPromptId,omitempty"`
	RegularPromptIDs []uuid.UUID `json:"regularPromptIds"`
}

// SetAgentPrompts handles PUT /admin/agents/{agentId}/prompts: atomically
// replaces the agent's bound prompt set.
func (h *PromptHandler) SetAgentPrompts(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}

	var body setAgentPromptsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}

	if err := h.prompts.SetAgentPrompts(r.Context(), agentID, body.SystemPromptID, body.RegularPromptIDs); err != nil {
		h.logger.Error("set agent prompts failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to set agent prompts")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptHandler) writeRepoError(w http.ResponseWriter, err error, notFoundMessage string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = WriteError(w, http.StatusNotFound, ErrorTypeNotFound, notFoundMessage)
		return
	}
	h.logger.Error("repository call failed", zap.Error(err))
	_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "internal error")
}
