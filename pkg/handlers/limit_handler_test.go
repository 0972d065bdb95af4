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

type fakeLimits struct {
	forAgent        []models.Limit
	forTeam         []models.Limit
	forOrganization []models.Limit
	created         *models.Limit
	upsertedPrice   models.TokenPrice
	err             error
}

func (f *fakeLimits) LimitsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Limit, error) {
	return f.forAgent, f.err
}

func (f *fakeLimits) LimitsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.Limit, error) {
	return f.forTeam, f.err
}

func (f *fakeLimits) LimitsForOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Limit, error) {
	return f.forOrganization, f.err
}

func (f *fakeLimits) Create(ctx context.Context, limit *models.Limit) error {
	if f.err != nil {
		return f.err
	}
	f.created = limit
	return nil
}

func (f *fakeLimits) Delete(ctx context.Context, limitID uuid.UUID) error {
	return f.err
}

func (f *fakeLimits) UpsertTokenPrice(ctx context.Context, price models.TokenPrice) error {
	if f.err != nil {
		return f.err
	}
	f.upsertedPrice = price
	return nil
}

func newTestLimitHandler(limits LimitRepository) *LimitHandler {
	return NewLimitHandler(limits, zap.NewNop())
}

func TestLimitHandler_ListForAgent(t *testing.T) {
	agentID := uuid.New()
	store := &fakeLimits{forAgent: []models.Limit{{EntityType: models.EntityTypeAgent, EntityID: agentID}}}
	h := newTestLimitHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/admin/agents/"+agentID.String()+"/limits", nil)
	req.SetPathValue("agentId", agentID.String())
	rec := httptest.NewRecorder()

	h.ListForAgent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLimitHandler_ListForTeam_InvalidID(t *testing.T) {
	h := newTestLimitHandler(&fakeLimits{})

	req := httptest.NewRequest(http.MethodGet, "/admin/teams/not-a-uuid/limits", nil)
	req.SetPathValue("teamId", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.ListForTeam(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLimitHandler_Create_RequiresPositiveLimitValue(t *testing.T) {
	h := newTestLimitHandler(&fakeLimits{})

	limit := models.Limit{EntityType: models.EntityTypeAgent, EntityID: uuid.New(), LimitType: models.LimitTypeTokenCost, LimitValue: 0}
	body, _ := json.Marshal(limit)
	req := httptest.NewRequest(http.MethodPost, "/admin/limits", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLimitHandler_Create_Succeeds(t *testing.T) {
	store := &fakeLimits{}
	h := newTestLimitHandler(store)

	limit := models.Limit{EntityType: models.EntityTypeOrganization, EntityID: uuid.New(), LimitType: models.LimitTypeTokenCost, LimitValue: 100}
	body, _ := json.Marshal(limit)
	req := httptest.NewRequest(http.MethodPost, "/admin/limits", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created == nil || store.created.LimitValue != 100 {
		t.Fatalf("expected limit value 100, got %+v", store.created)
	}
}

func TestLimitHandler_Delete_NotFound(t *testing.T) {
	h := newTestLimitHandler(&fakeLimits{err: apperrors.ErrNotFound})

	limitID := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/admin/limits/"+limitID.String(), nil)
	req.SetPathValue("limitId", limitID.String())
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLimitHandler_UpsertTokenPrice(t *testing.T) {
	store := &fakeLimits{}
	h := newTestLimitHandler(store)

	body, _ := json.Marshal(tokenPriceRequest{PricePerMillionInput: 3, PricePerMillionOutput: 15})
	req := httptest.NewRequest(http.MethodPut, "/admin/token-prices/gpt-4o-mini", bytes.NewReader(body))
	req.SetPathValue("model", "gpt-4o-mini")
	rec := httptest.NewRecorder()

	h.UpsertTokenPrice(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.upsertedPrice.Model != "gpt-4o-mini" || store.upsertedPrice.PricePerMillionInput != 3 {
		t.Fatalf("expected price for gpt-4o-mini with input 3, got %+v", store.upsertedPrice)
	}
}
