package groups

import (
	"context"

	"github.com/castellan-platform/castellan/internal/users"
)

// Lookup adapts the group repository to the lookup port the users service
// consumes for role assignment checks.
type Lookup struct {
	repo RepositoryPort
}

// NewLookup builds Lookup instance.
func NewLookup(repo RepositoryPort) *Lookup {
	return &Lookup{repo: repo}
}

// ByName resolves one group by its unique name.
func (l *Lookup) ByName(ctx context.Context, name string) (*users.GroupRef, error) {
	group, err := l.repo.GetGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return &users.GroupRef{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		IsManaged:   group.IsManaged,
	}, nil
}
