package domains

import (
	"context"

	"github.com/castellan-platform/castellan/internal/search"
)

// RepositoryPort defines data access methods for email domains.
type RepositoryPort interface {
	GetDomain(ctx context.Context, name string) (*Domain, error)
	CreateDomain(ctx context.Context, domain *Domain) (*Domain, error)
	UpdateDomain(ctx context.Context, domain *Domain) error
	DeleteDomain(ctx context.Context, id int64) error
}

// Searcher executes a query filter against the domain search index.
type Searcher interface {
	SearchDomains(ctx context.Context, q search.Query) ([]Domain, error)
}
