package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castellan-platform/castellan/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const groupColumns = `id, name, description, is_managed, created_at, updated_at`

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.IsManaged, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// GetGroupByName loads one group by its unique name.
func (r *Repository) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	return scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE name = $1`, name))
}

// CreateGroup inserts a group. A duplicate name surfaces as a field
// validation error.
func (r *Repository) CreateGroup(ctx context.Context, group *Group) (*Group, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO groups (name, description, is_managed, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+groupColumns, group.Name, group.Description, group.IsManaged)
	created, err := scanGroup(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.NewValidationError("name", "a role with this name already exists")
		}
		return nil, err
	}
	return created, nil
}

// UpdateGroup persists description and managed flag.
func (r *Repository) UpdateGroup(ctx context.Context, group *Group) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE groups SET description = $2, is_managed = $3, updated_at = NOW() WHERE id = $1`,
		group.ID, group.Description, group.IsManaged)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteGroup removes a group and its role assignments.
func (r *Repository) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AllGroups streams every group, used by the reindex job.
func (r *Repository) AllGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		var g Group
		err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.IsManaged, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
