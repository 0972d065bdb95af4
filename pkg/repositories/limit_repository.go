package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/database"
	"github.com/archestra-ai/gateway/pkg/models"
)

// LimitRepository provides data access for quota limits and model token
// prices.
type LimitRepository struct {
	db *database.DB
}

// NewLimitRepository constructs a LimitRepository.
func NewLimitRepository(db *database.DB) *LimitRepository {
	return &LimitRepository{db: db}
}

const limitColumns = `id, entity_type, entity_id, limit_type, model, limit_value, current_usage_tokens_in, current_usage_tokens_out, last_cleanup, updated_at`

func scanLimit(row pgx.Row) (models.Limit, error) {
	var l models.Limit
	err := row.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.LimitType, &l.Model, &l.LimitValue,
		&l.CurrentUsageTokensIn, &l.CurrentUsageTokensOut, &l.LastCleanup, &l.UpdatedAt)
	return l, err
}

func (r *LimitRepository) limitsForEntity(ctx context.Context, entityType models.EntityType, entityID uuid.UUID) ([]models.Limit, error) {
	query := fmt.Sprintf(`SELECT %s FROM limits WHERE entity_type = $1 AND entity_id = $2`, limitColumns)
	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("repositories: query limits: %w", err)
	}
	defer rows.Close()

	var limits []models.Limit
	for rows.Next() {
		l, err := scanLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("repositories: scan limit: %w", err)
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

// LimitsForAgent satisfies pkg/quota.LimitLookup.
func (r *LimitRepository) LimitsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Limit, error) {
	return r.limitsForEntity(ctx, models.EntityTypeAgent, agentID)
}

// LimitsForTeam satisfies pkg/quota.LimitLookup.
func (r *LimitRepository) LimitsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.Limit, error) {
	return r.limitsForEntity(ctx, models.EntityTypeTeam, teamID)
}

// LimitsForOrganization satisfies pkg/quota.LimitLookup.
func (r *LimitRepository) LimitsForOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Limit, error) {
	return r.limitsForEntity(ctx, models.EntityTypeOrganization, orgID)
}

// PriceForModel resolves a model's per-million-token dollar price. Satisfies
// pkg/quota.TokenPriceLookup.
func (r *LimitRepository) PriceForModel(ctx context.Context, model string) (models.TokenPrice, bool, error) {
	var p models.TokenPrice
	query := `SELECT model, price_per_million_input, price_per_million_output FROM token_prices WHERE model = $1`
	err := r.db.QueryRow(ctx, query, model).Scan(&p.Model, &p.PricePerMillionInput, &p.PricePerMillionOutput)
	if err == pgx.ErrNoRows {
		return models.TokenPrice{}, false, nil
	}
	if err != nil {
		return models.TokenPrice{}, false, fmt.Errorf("repositories: lookup token price: %w", err)
	}
	return p, true, nil
}

// IncrementUsage atomically adds tokensIn/tokensOut to a limit's usage
// counters. Satisfies pkg/quota.LimitStore.
func (r *LimitRepository) IncrementUsage(ctx context.Context, limitID uuid.UUID, tokensIn, tokensOut int64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE limits
		SET current_usage_tokens_in = current_usage_tokens_in + $2,
		    current_usage_tokens_out = current_usage_tokens_out + $3,
		    updated_at = now()
		WHERE id = $1`, limitID, tokensIn, tokensOut)
	if err != nil {
		return fmt.Errorf("repositories: increment limit usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ResetUsage zeroes a limit's usage counters and records the cleanup time.
// Satisfies pkg/quota.LimitStore.
func (r *LimitRepository) ResetUsage(ctx context.Context, limitID uuid.UUID, now time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE limits
		SET current_usage_tokens_in = 0, current_usage_tokens_out = 0, last_cleanup = $2, updated_at = $2
		WHERE id = $1`, limitID, now)
	if err != nil {
		return fmt.Errorf("repositories: reset limit usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Create inserts a new limit.
func (r *LimitRepository) Create(ctx context.Context, limit *models.Limit) error {
	query := `
		INSERT INTO limits (entity_type, entity_id, limit_type, model, limit_value)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, current_usage_tokens_in, current_usage_tokens_out, last_cleanup, updated_at`

	return r.db.QueryRow(ctx, query, limit.EntityType, limit.EntityID, limit.LimitType, limit.Model, limit.LimitValue).
		Scan(&limit.ID, &limit.CurrentUsageTokensIn, &limit.CurrentUsageTokensOut, &limit.LastCleanup, &limit.UpdatedAt)
}

// Delete removes a limit.
func (r *LimitRepository) Delete(ctx context.Context, limitID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM limits WHERE id = $1`, limitID)
	if err != nil {
		return fmt.Errorf("repositories: delete limit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// UpsertTokenPrice inserts or refreshes a model's token price.
func (r *LimitRepository) UpsertTokenPrice(ctx context.Context, price models.TokenPrice) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO token_prices (model, price_per_million_input, price_per_million_output)
		VALUES ($1, $2, $3)
		ON CONFLICT (model) DO UPDATE
		SET price_per_million_input = EXCLUDED.price_per_million_input,
		    price_per_million_output = EXCLUDED.price_per_million_output`,
		price.Model, price.PricePerMillionInput, price.PricePerMillionOutput)
	if err != nil {
		return fmt.Errorf("repositories: upsert token price: %w", err)
	}
	return nil
}
