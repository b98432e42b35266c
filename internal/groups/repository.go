package groups

import (
	"context"

	"github.com/castellan-platform/castellan/internal/search"
)

// RepositoryPort defines data access methods for groups.
type RepositoryPort interface {
	GetGroupByName(ctx context.Context, name string) (*Group, error)
	CreateGroup(ctx context.Context, group *Group) (*Group, error)
	UpdateGroup(ctx context.Context, group *Group) error
	DeleteGroup(ctx context.Context, id int64) error
}

// Searcher executes a query filter against the group search index.
type Searcher interface {
	SearchGroups(ctx context.Context, q search.Query) ([]Group, error)
}
