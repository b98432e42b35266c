// Package directory resolves which users and roles hold administrative
// actions. Generators consume it read-only instead of querying the database
// themselves.
package directory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castellan-platform/castellan/internal/access"
)

// Repository answers superadmin membership questions from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SuperAdminUserIDs returns ids of users holding superuser access, either
// directly or via membership in a superadmin role.
func (r *Repository) SuperAdminUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM action_users WHERE action = $1
		UNION
		SELECT ur.user_id
		FROM user_roles ur
		JOIN action_roles ar ON ar.role_id = ur.role_id
		WHERE ar.action = $1
		ORDER BY 1`, access.SuperUserAction.Value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SuperAdminRoleIDs returns ids of roles granted superuser access.
func (r *Repository) SuperAdminRoleIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM action_roles WHERE action = $1 ORDER BY role_id`, access.SuperUserAction.Value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ModeratorUserIDs returns ids of users granted the moderation action,
// used by the worker to fan out moderation notifications.
func (r *Repository) ModeratorUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM action_users WHERE action = $1
		UNION
		SELECT ur.user_id
		FROM user_roles ur
		JOIN action_roles ar ON ar.role_id = ur.role_id
		WHERE ar.action = $1
		ORDER BY 1`, access.ModerationAction.Value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
