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

// OrganizationRepository provides data access for organizations and teams.
type OrganizationRepository struct {
	db *database.DB
}

// NewOrganizationRepository constructs an OrganizationRepository.
func NewOrganizationRepository(db *database.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// OrganizationByID resolves an organization by ID. Satisfies
// pkg/quota.OrganizationLookup.
func (r *OrganizationRepository) OrganizationByID(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	query := `SELECT id, name, limit_cleanup_interval FROM organizations WHERE id = $1`
	err := r.db.QueryRow(ctx, query, orgID).Scan(&org.ID, &org.Name, &org.LimitCleanupInterval)
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: get organization: %w", err)
	}
	return &org, nil
}

// ListAll returns every organization, used by the periodic quota reset
// sweep to find limits that haven't been touched by a live request
// recently enough for pkg/quota.Enforcer's lazy per-request sweep to reach.
func (r *OrganizationRepository) ListAll(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, limit_cleanup_interval FROM organizations`)
	if err != nil {
		return nil, fmt.Errorf("repositories: list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var org models.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.LimitCleanupInterval); err != nil {
			return nil, fmt.Errorf("repositories: scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// Create inserts a new organization.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.LimitCleanupInterval == "" {
		org.LimitCleanupInterval = models.DefaultLimitCleanupInterval
	}
	query := `
		INSERT INTO organizations (name, limit_cleanup_interval)
		VALUES ($1, $2)
		RETURNING id`
	return r.db.QueryRow(ctx, query, org.Name, org.LimitCleanupInterval).Scan(&org.ID)
}

// CreateTeam inserts a new team under an organization.
func (r *OrganizationRepository) CreateTeam(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (organization_id, name)
		VALUES ($1, $2)
		RETURNING id`
	return r.db.QueryRow(ctx, query, team.OrganizationID, team.Name).Scan(&team.ID)
}

// AddAgentToTeam records an agent's membership in a team.
func (r *OrganizationRepository) AddAgentToTeam(ctx context.Context, agentID, teamID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO agent_teams (agent_id, team_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, agentID, teamID)
	if err != nil {
		return fmt.Errorf("repositories: add agent to team: %w", err)
	}
	return nil
}

// RemoveAgentFromTeam removes an agent's membership in a team.
func (r *OrganizationRepository) RemoveAgentFromTeam(ctx context.Context, agentID, teamID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM agent_teams WHERE agent_id = $1 AND team_id = $2`, agentID, teamID)
	if err != nil {
		return fmt.Errorf("repositories: remove agent from team: %w", err)
	}
	return nil
}
