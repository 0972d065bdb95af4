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

// TrustedDataPolicyRepository is the admin-facing surface over §4.2's
// trusted-data policy store.
type TrustedDataPolicyRepository interface {
	PoliciesForAgentTool(ctx context.Context, agentID, toolID uuid.UUID) ([]models.TrustedDataPolicy, error)
	Create(ctx context.Context, policy *models.TrustedDataPolicy) error
	Delete(ctx context.Context, policyID uuid.UUID) error
	OptIn(ctx context.Context, agentID, policyID uuid.UUID) error
	OptOut(ctx context.Context, agentID, policyID uuid.UUID) error
}

// InvocationPolicyRepository is the admin-facing surface over §4.4's
// tool-invocation policy store.
type InvocationPolicyRepository interface {
	PoliciesForTool(ctx context.Context, agentID uuid.UUID, toolName string) ([]models.ToolInvocationPolicy, error)
	Create(ctx context.Context, policy *models.ToolInvocationPolicy) error
	Delete(ctx context.Context, policyID uuid.UUID) error
}

// PolicyHandler serves admin CRUD for trusted-data and tool-invocation
// policies.
type PolicyHandler struct {
	trustedData TrustedDataPolicyRepository
	invocation  InvocationPolicyRepository
	logger      *zap.Logger
}

// NewPolicyHandler constructs a PolicyHandler.
func NewPolicyHandler(trustedData TrustedDataPolicyRepository, invocation InvocationPolicyRepository, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{trustedData: trustedData, invocation: invocation, logger: logger.Named("handlers.policy")}
}

// RegisterRoutes registers the admin policy routes on mux.
func (h *PolicyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/agents/{agentId}/tools/{toolId}/trusted-data-policies", h.ListTrustedData)
	mux.HandleFunc("POST /admin/trusted-data-policies", h.CreateTrustedData)
	mux.HandleFunc("DELETE /admin/trusted-data-policies/{policyId}", h.DeleteTrustedData)
	mux.HandleFunc("POST /admin/agents/{agentId}/trusted-data-policies/{policyId}/opt-in", h.OptIn)
	mux.HandleFunc("POST /admin/agents/{agentId}/trusted-data-policies/{policyId}/opt-out", h.OptOut)

	mux.HandleFunc("GET /admin/agents/{agentId}/tools/{toolName}/invocation-policies", h.ListInvocation)
	mux.HandleFunc("POST /admin/invocation-policies", h.CreateInvocation)
	mux.HandleFunc("DELETE /admin/invocation-policies/{policyId}", h.DeleteInvocation)
}

// ListTrustedData handles GET /admin/agents/{agentId}/tools/{toolId}/trusted-data-policies.
func (h *PolicyHandler) ListTrustedData(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}
	toolID, err := uuid.Parse(r.PathValue("toolId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid tool ID format")
		return
	}
	policies, err := h.trustedData.PoliciesForAgentTool(r.Context(), agentID, toolID)
	if err != nil {
		h.logger.Error("list trusted data policies failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to list policies")
		return
	}
	_ = WriteJSON(w, http.StatusOK, policies)
}

// CreateTrustedData handles POST /admin/trusted-data-policies.
func (h *PolicyHandler) CreateTrustedData(w http.ResponseWriter, r *http.Request) {
	var policy models.TrustedDataPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}
	if policy.ToolID == uuid.Nil || policy.AttributePath == "" || policy.Action == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "toolId, attributePath, and action are required")
		return
	}
	if err := h.trustedData.Create(r.Context(), &policy); err != nil {
		h.logger.Error("create trusted data policy failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create policy")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, policy)
}

// DeleteTrustedData handles DELETE /admin/trusted-data-policies/{policyId}.
func (h *PolicyHandler) DeleteTrustedData(w http.ResponseWriter, r *http.Request) {
	policyID, err := uuid.Parse(r.PathValue("policyId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid policy ID format")
		return
	}
	if err := h.trustedData.Delete(r.Context(), policyID); err != nil {
		h.writeRepoError(w, err, "policy not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OptIn handles POST /admin/agents/{agentId}/trusted-data-policies/{policyId}/opt-in.
func (h *PolicyHandler) OptIn(w http.ResponseWriter, r *http.Request) {
	h.setOptIn(w, r, h.trustedData.OptIn)
}

// OptOut handles POST /admin/agents/{agentId}/trusted-data-policies/{policyId}/opt-out.
func (h *PolicyHandler) OptOut(w http.ResponseWriter, r *http.Request) {
	h.setOptIn(w, r, h.trustedData.OptOut)
}

func (h *PolicyHandler) setOptIn(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, agentID, policyID uuid.UUID) error) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}
	policyID, err := uuid.Parse(r.PathValue("policyId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid policy ID format")
		return
	}
	if err := fn(r.Context(), agentID, policyID); err != nil {
		h.writeRepoError(w, err, "policy not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInvocation handles GET /admin/agents/{agentId}/tools/{toolName}/invocation-policies.
func (h *PolicyHandler) ListInvocation(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}
	policies, err := h.invocation.PoliciesForTool(r.Context(), agentID, r.PathValue("toolName"))
	if err != nil {
		h.logger.Error("list invocation policies failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to list policies")
		return
	}
	_ = WriteJSON(w, http.StatusOK, policies)
}

// CreateInvocation handles POST /admin/invocation-policies.
func (h *PolicyHandler) CreateInvocation(w http.ResponseWriter, r *http.Request) {
	var policy models.ToolInvocationPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}
	if policy.AgentID == uuid.Nil || policy.ToolName == "" || policy.Action == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "agentId, toolName, and action are required")
		return
	}
	if err := h.invocation.Create(r.Context(), &policy); err != nil {
		h.logger.Error("create invocation policy failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create policy")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, policy)
}

// DeleteInvocation handles DELETE /admin/invocation-policies/{policyId}.
func (h *PolicyHandler) DeleteInvocation(w http.ResponseWriter, r *http.Request) {
	policyID, err := uuid.Parse(r.PathValue("policyId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid policy ID format")
		return
	}
	if err := h.invocation.Delete(r.Context(), policyID); err != nil {
		h.writeRepoError(w, err, "policy not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PolicyHandler) writeRepoError(w http.ResponseWriter, err error, notFoundMessage string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = WriteError(w, http.StatusNotFound, ErrorTypeNotFound, notFoundMessage)
		return
	}
	h.logger.Error("repository call failed", zap.Error(err))
	_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "internal error")
}
