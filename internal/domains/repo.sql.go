package domains

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

const domainColumns = `id, domain, tld, status, category, flagged, flagged_source,
	num_users, num_active, num_inactive, created_at, updated_at`

func scanDomain(row pgx.Row) (*Domain, error) {
	var d Domain
	err := row.Scan(&d.ID, &d.Name, &d.TLD, &d.Status, &d.Category, &d.Flagged, &d.FlaggedSource,
		&d.NumUsers, &d.NumActive, &d.NumInactive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetDomain loads one domain by name.
func (r *Repository) GetDomain(ctx context.Context, name string) (*Domain, error) {
	return scanDomain(r.pool.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE domain = $1`, name))
}

// CreateDomain inserts a domain. A duplicate name surfaces as a field
// validation error.
func (r *Repository) CreateDomain(ctx context.Context, domain *Domain) (*Domain, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO domains (domain, tld, status, category, flagged, flagged_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+domainColumns,
		domain.Name, domain.TLD, domain.Status, domain.Category, domain.Flagged, domain.FlaggedSource)
	created, err := scanDomain(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.NewValidationError("domain", "this domain is already registered")
		}
		return nil, err
	}
	return created, nil
}

// UpdateDomain persists mutable moderation fields.
func (r *Repository) UpdateDomain(ctx context.Context, domain *Domain) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE domains
		SET status = $2, category = $3, flagged = $4, flagged_source = $5, updated_at = NOW()
		WHERE id = $1`,
		domain.ID, domain.Status, domain.Category, domain.Flagged, domain.FlaggedSource)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteDomain removes a domain.
func (r *Repository) DeleteDomain(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM domains WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AllDomains streams every domain, used by the reindex job.
func (r *Repository) AllDomains(ctx context.Context) ([]Domain, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Domain
	for rows.Next() {
		var d Domain
		err := rows.Scan(&d.ID, &d.Name, &d.TLD, &d.Status, &d.Category, &d.Flagged, &d.FlaggedSource,
			&d.NumUsers, &d.NumActive, &d.NumInactive, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
