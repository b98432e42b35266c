package users

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

const userColumns = `id, username, email, full_name, is_active, is_confirmed, is_blocked, visibility, email_visibility, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Active, &u.Confirmed, &u.Blocked, &u.Visibility, &u.EmailVisibility, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUser loads one user with their role names.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT g.name FROM groups g JOIN user_roles ur ON ur.role_id = g.id WHERE ur.user_id = $1 ORDER BY g.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		user.Roles = append(user.Roles, name)
	}
	return user, rows.Err()
}

// CreateUser inserts an active, confirmed account with the given password
// hash. Duplicate usernames or emails surface as a field validation error.
func (r *Repository) CreateUser(ctx context.Context, user *User, passwordHash string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, full_name, password_hash, is_active, is_confirmed, is_blocked, visibility, email_visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8, NOW(), NOW())
		RETURNING `+userColumns,
		user.Username, user.Email, user.FullName, passwordHash,
		user.Active, user.Confirmed, user.Visibility, user.EmailVisibility)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.NewValidationError("email", "an account with this email or username already exists")
		}
		return nil, err
	}
	return created, nil
}

// UpdateUser persists the mutable account fields.
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, full_name = $3, is_active = $4, is_confirmed = $5, is_blocked = $6,
		    visibility = $7, email_visibility = $8, updated_at = NOW()
		WHERE id = $1`,
		user.ID, user.Email, user.FullName, user.Active, user.Confirmed, user.Blocked,
		user.Visibility, user.EmailVisibility)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListUserGroups returns the groups assigned to a user.
func (r *Repository) ListUserGroups(ctx context.Context, userID int64) ([]GroupRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.description, g.is_managed
		FROM groups g
		JOIN user_roles ur ON ur.role_id = g.id
		WHERE ur.user_id = $1
		ORDER BY g.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []GroupRef
	for rows.Next() {
		var g GroupRef
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.IsManaged); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// AddUserGroup assigns a role; reports false when already assigned.
func (r *Repository) AddUserGroup(ctx context.Context, userID, roleID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListGroupUserIDs returns the ids of every member of a role.
func (r *Repository) ListGroupUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
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

// RemoveUserGroup removes a role; reports false when it was not assigned.
func (r *Repository) RemoveUserGroup(ctx context.Context, userID, roleID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AllUsers streams every account, used by the reindex job.
func (r *Repository) AllUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Active, &u.Confirmed, &u.Blocked, &u.Visibility, &u.EmailVisibility, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
