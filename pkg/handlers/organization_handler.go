package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/models"
)

// OrganizationRepository is the admin-facing surface over the organization
// and team store.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	CreateTeam(ctx context.Context, team *models.Team) error
	AddAgentToTeam(ctx context.Context, agentID, teamID uuid.UUID) error
	RemoveAgentFromTeam(ctx context.Context, agentID, teamID uuid.UUID) error
}

// OrganizationHandler serves admin CRUD for organizations, teams, and team
// membership.
type OrganizationHandler struct {
	orgs   OrganizationRepository
	logger *zap.Logger
}

// NewOrganizationHandler constructs an OrganizationHandler.
func NewOrganizationHandler(orgs OrganizationRepository, logger *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs, logger: logger.Named("handlers.organization")}
}

// RegisterRoutes registers the admin organization routes on mux.
func (h *OrganizationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/organizations", h.Create)
	mux.HandleFunc("POST /admin/organizations/{orgId}/teams", h.CreateTeam)
	mux.HandleFunc("PUT /admin/teams/{teamId}/agents/{agentId}", h.AddAgentToTeam)
	mux.HandleFunc("DELETE /admin/teams/{teamId}/agents/{agentId}", h.RemoveAgentFromTeam)
}

// Create handles POST /admin/organizations.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var org models.Organization
	if err := json.NewDecoder(r.Body).Decode(&org); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}
	if org.Name == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "name is required")
		return
	}
	if err := h.orgs.Create(r.Context(), &org); err != nil {
		h.logger.Error("create organization failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create organization")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, org)
}

// CreateTeam handles POST /admin/organizations/{orgId}/teams.
func (h *OrganizationHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("orgId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid organization ID format")
		return
	}
	var team models.Team
	if err := json.NewDecoder(r.Body).Decode(&team); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}
	team.OrganizationID = orgID
	if team.Name == "" {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "name is required")
		return
	}
	if err := h.orgs.CreateTeam(r.Context(), &team); err != nil {
		h.logger.Error("create team failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create team")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, team)
}

// AddAgentToTeam handles PUT /admin/teams/{teamId}/agents/{agentId}.
func (h *OrganizationHandler) AddAgentToTeam(w http.ResponseWriter, r *http.Request) {
	teamID, agentID, ok := h.parseTeamAgent(w, r)
	if !ok {
		return
	}
	if err := h.orgs.AddAgentToTeam(r.Context(), agentID, teamID); err != nil {
		h.logger.Error("add agent to team failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to add agent to team")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveAgentFromTeam handles DELETE /admin/teams/{teamId}/agents/{agentId}.
func (h *OrganizationHandler) RemoveAgentFromTeam(w http.ResponseWriter, r *http.Request) {
	teamID, agentID, ok := h.parseTeamAgent(w, r)
	if !ok {
		return
	}
	if err := h.orgs.RemoveAgentFromTeam(r.Context(), agentID, teamID); err != nil {
		h.logger.Error("remove agent from team failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to remove agent from team")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrganizationHandler) parseTeamAgent(w http.ResponseWriter, r *http.Request) (teamID, agentID uuid.UUID, ok bool) {
	teamID, err := uuid.Parse(r.PathValue("teamId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid team ID format")
		return uuid.Nil, uuid.Nil, false
	}
	agentID, ok = ParseAgentID(w, r, h.logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return teamID, agentID, true
}
