package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitestock/sitestock/internal/shared"
)

// Repository reads projects and memberships from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProject fetches a project by id.
func (r *Repository) GetProject(ctx context.Context, projectID string) (Project, error) {
	const query = `SELECT id, name, state FROM projects WHERE id = $1`
	var p Project
	if err := r.pool.QueryRow(ctx, query, projectID).Scan(&p.ID, &p.Name, &p.State); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("directory: project %s: %w", projectID, shared.ErrNotFound)
		}
		return Project{}, err
	}
	return p, nil
}

// GetRole resolves the role of a user on a project.
func (r *Repository) GetRole(ctx context.Context, projectID, userID string) (Role, error) {
	const query = `SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`
	var role string
	if err := r.pool.QueryRow(ctx, query, projectID, userID).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotMember
		}
		return "", err
	}
	return Role(role), nil
}

// MembersByRole lists project members holding any of the given roles.
func (r *Repository) MembersByRole(ctx context.Context, projectID string, roles ...Role) ([]Member, error) {
	const query = `
		SELECT pm.user_id, u.name, pm.role
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1 AND pm.role = ANY($2)
		ORDER BY u.name`
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, string(role))
	}
	rows, err := r.pool.Query(ctx, query, projectID, roleNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var role string
		if err := rows.Scan(&m.UserID, &m.Name, &role); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		members = append(members, m)
	}
	return members, rows.Err()
}
