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

// LimitRepository is the admin-facing quota limit repository surface.
type LimitRepository interface {
	LimitsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Limit, error)
	LimitsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.Limit, error)
	LimitsForOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Limit, error)
	Create(ctx context.Context, limit *models.Limit) error
	Delete(ctx context.Context, limitID uuid.UUID) error
	UpsertTokenPrice(ctx context.Context, price models.TokenPrice) error
}

// LimitHandler serves admin CRUD for quota limits and model token prices,
// the administrative surface over §4.5's enforcement layer.
type LimitHandler struct {
	limits LimitRepository
	logger *zap.Logger
}

// NewLimitHandler constructs a LimitHandler.
func NewLimitHandler(limits LimitRepository, logger *zap.Logger) *LimitHandler {
	return &LimitHandler{limits: limits, logger: logger.Named("handlers.limit")}
}

// RegisterRoutes registers the admin limit routes on mux.
func (h *LimitHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/agents/{agentId}/limits", h.ListForAgent)
	mux.HandleFunc("GET /admin/teams/{teamId}/limits", h.ListForTeam)
	mux.HandleFunc("GET /admin/organizations/{orgId}/limits", h.ListForOrganization)
	mux.HandleFunc("POST /admin/limits", h.Create)
	mux.HandleFunc("DELETE /admin/limits/{limitId}", h.Delete)
	mux.HandleFunc("PUT /admin/token-prices/{model}", h.UpsertTokenPrice)
}

// ListForAgent handles GET /admin/agents/{agentId}/limits.
func (h *LimitHandler) ListForAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := ParseAgentID(w, r, h.logger)
	if !ok {
		return
	}
	limits, err := h.limits.LimitsForAgent(r.Context(), agentID)
	h.writeLimits(w, limits, err)
}

// ListForTeam handles GET /admin/teams/{teamId}/limits.
func (h *LimitHandler) ListForTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuid.Parse(r.PathValue("teamId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid team ID format")
		return
	}
	limits, err := h.limits.LimitsForTeam(r.Context(), teamID)
	h.writeLimits(w, limits, err)
}

// ListForOrganization handles GET /admin/organizations/{orgId}/limits.
func (h *LimitHandler) ListForOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("orgId"))
	if err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid organization ID format")
		return
	}
	limits, err := h.limits.LimitsForOrganization(r.Context(), orgID)
	h.writeLimits(w, limits, err)
}

func (h *LimitHandler) writeLimits(w http.ResponseWriter, limits []models.Limit, err error) {
	if err != nil {
		h.logger.Error("list limits failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to list limits")
		return
	}
	_ = WriteJSON(w, http.StatusOK, limits)
}

// Create handles POST /admin/limits.
func (h *LimitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var limit models.Limit
	if err := json.NewDecoder(r.Body).Decode(&limit); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}
	if limit.EntityType == "" || limit.LimitType == "" || limit.LimitValue <= 0 {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "entityType, limitType, and a positive limitValue are required")
		return
	}

	if err := h.limits.Create(r.Context(), &limit); err != nil {
		h.logger.Error("create limit failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to create limit")
		return
	}
	_ = WriteJSON(w, http.StatusCreated, limit)
}

// Delete handles DELETE /admin/limits/{limitId}.
func (h *LimitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	limitID, ok := ParseLimitID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.limits.Delete(r.Context(), limitID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = WriteError(w, http.StatusNotFound, ErrorTypeNotFound, "limit not found")
			return
		}
		h.logger.Error("delete limit failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to delete limit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tokenPriceRequest struct {
	PricePerMillionInput  float64 `json:"pricePerMillionInput"`
	PricePerMillionOutput float64 `json:"pricePerMillionOutput"`
}

// UpsertTokenPrice handles PUT /admin/token-prices/{model}.
func (h *LimitHandler) UpsertTokenPrice(w http.ResponseWriter, r *http.Request) {
	var body tokenPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = WriteError(w, http.StatusBadRequest, ErrorTypeValidation, "invalid request body")
		return
	}

	price := models.TokenPrice{
		Model:                 r.PathValue("model"),
		PricePerMillionInput:  body.PricePerMillionInput,
		PricePerMillionOutput: body.PricePerMillionOutput,
	}
	if err := h.limits.UpsertTokenPrice(r.Context(), price); err != nil {
		h.logger.Error("upsert token price failed", zap.Error(err))
		_ = WriteError(w, http.StatusInternalServerError, ErrorTypeAPI, "failed to upsert token price")
		return
	}
	_ = WriteJSON(w, http.StatusOK, price)
}
