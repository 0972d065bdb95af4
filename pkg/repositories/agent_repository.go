package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archestra-ai/gateway/pkg/apperrors"
	"github.com/archestra-ai/gateway/pkg/database"
	"github.com/archestra-ai/gateway/pkg/models"
)

// AgentRepository provides data access for agents and their team
// membership.
type AgentRepository struct {
	db *database.DB
}

// NewAgentRepository constructs an AgentRepository.
func NewAgentRepository(db *database.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new agent.
func (r *AgentRepository) Create(ctx context.Context, agent *models.Agent) error {
	query := `
		INSERT INTO agents (name, labels)
		VALUES ($1, $2)
		RETURNING id`

	return r.db.QueryRow(ctx, query, agent.Name, jsonbValue(agent.Labels)).Scan(&agent.ID)
}

// GetByID returns an agent by ID, including its team IDs.
func (r *AgentRepository) GetByID(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	var labels []byte

	query := `SELECT id, name, labels FROM agents WHERE id = $1`
	if err := r.db.QueryRow(ctx, query, agentID).Scan(&agent.ID, &agent.Name, &labels); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("repositories: get agent: %w", err)
	}
	if err := jsonUnmarshal(labels, &agent.Labels); err != nil {
		return nil, fmt.Errorf("repositories: unmarshal agent labels: %w", err)
	}

	teamIDs, err := r.TeamIDsForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	agent.TeamIDs = teamIDs

	return &agent, nil
}

// TeamIDsForAgent returns the team IDs an agent belongs to. Satisfies
// pkg/quota.AgentScopeResolver.
func (r *AgentRepository) TeamIDsForAgent(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT team_id FROM agent_teams WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("repositories: query agent teams: %w", err)
	}
	defer rows.Close()

	var teamIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repositories: scan team id: %w", err)
		}
		teamIDs = append(teamIDs, id)
	}
	return teamIDs, rows.Err()
}

// OrganizationIDForTeam returns the organization a team belongs to.
// Satisfies pkg/quota.AgentScopeResolver.
func (r *AgentRepository) OrganizationIDForTeam(ctx context.Context, teamID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT organization_id FROM teams WHERE id = $1`, teamID).Scan(&orgID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, apperrors.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("repositories: get team organization: %w", err)
	}
	return orgID, nil
}

// FirstOrganizationWithLimit returns the first organization that has at
// least one limit row, used as the fallback scope for an agent with no
// teams. Satisfies pkg/quota.AgentScopeResolver.
func (r *AgentRepository) FirstOrganizationWithLimit(ctx context.Context) (uuid.UUID, bool, error) {
	var orgID uuid.UUID
	query := `
		SELECT DISTINCT o.id
		FROM organizations o
		JOIN limits l ON l.entity_type = 'organization' AND l.entity_id = o.id
		ORDER BY o.id
		LIMIT 1`

	err := r.db.QueryRow(ctx, query).Scan(&orgID)
	if err == pgx.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("repositories: resolve fallback organization: %w", err)
	}
	return orgID, true, nil
}

// GetOrCreateDefaultAgent resolves the agent identified by name (typically
// derived from a request's user-agent header), creating it with no labels
// or team membership if it doesn't already exist. Per §4.6 step 1's
// "get-or-create default agent" routine.
func (r *AgentRepository) GetOrCreateDefaultAgent(ctx context.Context, name string) (*models.Agent, error) {
	var agent models.Agent
	var labels []byte

	err := r.db.QueryRow(ctx, `SELECT id, name, labels FROM agents WHERE name = $1`, name).Scan(&agent.ID, &agent.Name, &labels)
	if err == nil {
		if uErr := jsonUnmarshal(labels, &agent.Labels); uErr != nil {
			return nil, fmt.Errorf("repositories: unmarshal default agent labels: %w", uErr)
		}
		return &agent, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("repositories: lookup default agent: %w", err)
	}

	agent = models.Agent{Name: name, Labels: []models.Label{}}
	if err := r.Create(ctx, &agent); err != nil {
		return nil, fmt.Errorf("repositories: create default agent: %w", err)
	}
	return &agent, nil
}
