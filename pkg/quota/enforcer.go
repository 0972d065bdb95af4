// Package quota implements the quota enforcement layer: a pre-flight check
// against an agent's governing token-cost limits, a best-effort reset sweep,
// and a fire-and-forget post-completion usage update.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/audit"
	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
)

// LimitLookup resolves the Limit rows governing an agent, its teams, and an
// organization.
type LimitLookup interface {
	LimitsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Limit, error)
	LimitsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.Limit, error)
	LimitsForOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Limit, error)
}

// AgentScopeResolver resolves the team and organization scope an agent
// belongs to, used to walk the agent -> teams -> organization priority chain.
type AgentScopeResolver interface {
	TeamIDsForAgent(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error)
	// FirstOrganizationWithLimit returns the organization an agent with no
	// teams falls back to, per §4.5 "fall back to the first organization
	// with a limit".
	FirstOrganizationWithLimit(ctx context.Context) (uuid.UUID, bool, error)
	OrganizationIDForTeam(ctx context.Context, teamID uuid.UUID) (uuid.UUID, error)
}

// TokenPriceLookup resolves the dollar-cost-per-million-tokens for a model.
type TokenPriceLookup interface {
	PriceForModel(ctx context.Context, model string) (models.TokenPrice, bool, error)
}

// OrganizationLookup resolves an Organization by ID, used by the reset sweep
// to find the configured cleanup interval.
type OrganizationLookup interface {
	OrganizationByID(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
}

// LimitStore applies the post-update usage increment and the reset sweep.
type LimitStore interface {
	IncrementUsage(ctx context.Context, limitID uuid.UUID, tokensIn, tokensOut int64) error
	ResetUsage(ctx context.Context, limitID uuid.UUID, now time.Time) error
}

// Refusal is the quota-exceeded refusal pair, identical in shape to the
// tool-invocation refusal but tagged type="token_cost".
type Refusal struct {
	AuditPayload string
	UserMessage  string
	EntityType   models.EntityType
	EntityID     uuid.UUID
}

// scopedLimit pairs a Limit with the priority rank of the scope it came
// from, so ties across scopes can be broken in favor of the agent.
type scopedLimit struct {
	limit    models.Limit
	priority int // 0 = agent, 1 = team, 2 = organization
}

// Enforcer is the quota pre-check / post-update / reset-sweep engine.
type Enforcer struct {
	limits   LimitLookup
	scopes   AgentScopeResolver
	prices   TokenPriceLookup
	orgs     OrganizationLookup
	store    LimitStore
	auditor  *audit.SecurityAuditor
	pool     *llm.WorkerPool
	logger   *zap.Logger
}

// NewEnforcer constructs a quota Enforcer. The worker pool bounds the
// concurrency of background post-update writes the same way pkg/llm's
// WorkerPool bounds concurrent upstream calls.
func NewEnforcer(limits LimitLookup, scopes AgentScopeResolver, prices TokenPriceLookup, orgs OrganizationLookup, store LimitStore, auditor *audit.SecurityAuditor, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		limits:  limits,
		scopes:  scopes,
		prices:  prices,
		orgs:    orgs,
		store:   store,
		auditor: auditor,
		pool:    llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger),
		logger:  logger.Named("quota"),
	}
}

// PreCheck runs the reset sweep and then evaluates the agent's governing
// limits. It returns a Refusal for the highest-priority exceeded limit, or
// nil if none are exceeded.
func (e *Enforcer) PreCheck(ctx context.Context, agentID uuid.UUID, model string) (*Refusal, error) {
	scoped, orgID, err := e.governingLimits(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if orgID != uuid.Nil {
		e.sweep(ctx, orgID, scoped)
	}

	var exceeded *scopedLimit
	for i := range scoped {
		ok, err := e.isExceeded(ctx, scoped[i].limit, model)
		if err != nil {
			e.logger.Warn("policy_match_failure evaluating limit", zap.String("limit_id", scoped[i].limit.ID.String()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if exceeded == nil || scoped[i].priority < exceeded.priority {
			exceeded = &scoped[i]
		}
	}

	if exceeded == nil {
		return nil, nil
	}

	refusal := e.refuse(ctx, agentID, *exceeded)
	return refusal, nil
}

func (e *Enforcer) governingLimits(ctx context.Context, agentID uuid.UUID) ([]scopedLimit, uuid.UUID, error) {
	var scoped []scopedLimit

	agentLimits, err := e.limits.LimitsForAgent(ctx, agentID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("quota: loading agent limits: %w", err)
	}
	for _, l := range agentLimits {
		if l.LimitType == models.LimitTypeTokenCost {
			scoped = append(scoped, scopedLimit{limit: l, priority: 0})
		}
	}

	teamIDs, err := e.scopes.TeamIDsForAgent(ctx, agentID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("quota: resolving agent teams: %w", err)
	}

	var orgID uuid.UUID
	if len(teamIDs) == 0 {
		org, found, err := e.scopes.FirstOrganizationWithLimit(ctx)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("quota: resolving fallback organization: %w", err)
		}
		if found {
			orgID = org
		}
	} else {
		for _, teamID := range teamIDs {
			teamLimits, err := e.limits.LimitsForTeam(ctx, teamID)
			if err != nil {
				return nil, uuid.Nil, fmt.Errorf("quota: loading team limits: %w", err)
			}
			for _, l := range teamLimits {
				if l.LimitType == models.LimitTypeTokenCost {
					scoped = append(scoped, scopedLimit{limit: l, priority: 1})
				}
			}
		}
		orgID, err = e.scopes.OrganizationIDForTeam(ctx, teamIDs[0])
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("quota: resolving organization for team: %w", err)
		}
	}

	if orgID != uuid.Nil {
		orgLimits, err := e.limits.LimitsForOrganization(ctx, orgID)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("quota: loading organization limits: %w", err)
		}
		for _, l := range orgLimits {
			if l.LimitType == models.LimitTypeTokenCost {
				scoped = append(scoped, scopedLimit{limit: l, priority: 2})
			}
		}
	}

	return scoped, orgID, nil
}

func (e *Enforcer) isExceeded(ctx context.Context, limit models.Limit, model string) (bool, error) {
	if limit.Model == nil {
		return limit.CurrentUsageTokensIn+limit.CurrentUsageTokensOut >= int64(limit.LimitValue), nil
	}

	price, found, err := e.prices.PriceForModel(ctx, *limit.Model)
	if err != nil {
		return false, fmt.Errorf("quota: loading price for model %s: %w", *limit.Model, err)
	}
	if !found {
		return false, fmt.Errorf("quota: no price configured for model %s", *limit.Model)
	}

	cost := price.Cost(limit.CurrentUsageTokensIn, limit.CurrentUsageTokensOut)
	return cost >= limit.LimitValue, nil
}

// sweep resets usage counters on any limit in scoped whose LastCleanup is
// null or older than the organization's configured cleanup interval. It is
// best-effort: a reset failure is logged and does not fail the pre-check.
func (e *Enforcer) sweep(ctx context.Context, orgID uuid.UUID, scoped []scopedLimit) {
	org, err := e.orgs.OrganizationByID(ctx, orgID)
	if err != nil {
		e.logger.Warn("policy_match_failure resolving organization for reset sweep", zap.Error(err))
		return
	}

	interval, ok := org.LimitCleanupInterval.Duration()
	if !ok {
		interval, _ = models.DefaultLimitCleanupInterval.Duration()
	}

	now := time.Now()
	for _, s := range scoped {
		if s.limit.LastCleanup != nil && now.Sub(*s.limit.LastCleanup) < interval {
			continue
		}
		if err := e.store.ResetUsage(ctx, s.limit.ID, now); err != nil {
			e.logger.Warn("policy_match_failure resetting limit usage", zap.String("limit_id", s.limit.ID.String()), zap.Error(err))
		}
	}
}

// SweepOrganization resets any organization-scoped limit whose cleanup
// interval has elapsed, independent of any in-flight request. It backs the
// periodic background sweep; agent- and team-scoped limits are instead
// swept lazily on each PreCheck, since reaching every agent's scope here
// would require walking every team membership up front for no benefit over
// the request-triggered path.
func (e *Enforcer) SweepOrganization(ctx context.Context, orgID uuid.UUID) error {
	limits, err := e.limits.LimitsForOrganization(ctx, orgID)
	if err != nil {
		return fmt.Errorf("quota: loading organization limits for sweep: %w", err)
	}
	scoped := make([]scopedLimit, len(limits))
	for i, l := range limits {
		scoped[i] = scopedLimit{limit: l, priority: 2}
	}
	e.sweep(ctx, orgID, scoped)
	return nil
}

func (e *Enforcer) refuse(ctx context.Context, agentID uuid.UUID, exceeded scopedLimit) *Refusal {
	userMessage := "This conversation has exceeded its usage quota."
	auditPayload := fmt.Sprintf(`<archestra-refusal type="token_cost" tool="" reason="%s">%s</archestra-refusal>`,
		exceeded.limit.ID, userMessage)

	e.auditor.LogQuotaExceeded(ctx, agentID, audit.QuotaExceededDetails{
		EntityType: string(exceeded.limit.EntityType),
		EntityID:   exceeded.limit.EntityID.String(),
		LimitValue: exceeded.limit.LimitValue,
	})

	return &Refusal{
		AuditPayload: auditPayload,
		UserMessage:  userMessage,
		EntityType:   exceeded.limit.EntityType,
		EntityID:     exceeded.limit.EntityID,
	}
}

// DispatchUpdate fires a background usage update for every limit matching
// (agent, agentID), (team, tᵢ) for each of the agent's teams, and
// (organization, orgID). Errors are logged and swallowed: a quota update
// must never fail a completed interaction.
func (e *Enforcer) DispatchUpdate(ctx context.Context, agentID uuid.UUID, tokensIn, tokensOut int64) {
	go func() {
		bgCtx := context.Background()

		scoped, _, err := e.governingLimits(bgCtx, agentID)
		if err != nil {
			e.logger.Warn("quota_update_failure resolving governing limits", zap.Error(err))
			return
		}
		if len(scoped) == 0 {
			return
		}

		items := make([]llm.WorkItem[struct{}], 0, len(scoped))
		for _, s := range scoped {
			limitID := s.limit.ID
			items = append(items, llm.WorkItem[struct{}]{
				ID: limitID.String(),
				Execute: func(ctx context.Context) (struct{}, error) {
					return struct{}{}, e.store.IncrementUsage(ctx, limitID, tokensIn, tokensOut)
				},
			})
		}

		results := llm.Process(bgCtx, e.pool, items, nil)
		for _, r := range results {
			if r.Err != nil {
				e.logger.Warn("quota_update_failure incrementing usage", zap.String("limit_id", r.ID), zap.Error(r.Err))
			}
		}
	}()
}
