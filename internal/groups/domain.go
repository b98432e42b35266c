package groups

import (
	"time"

	"github.com/castellan-platform/castellan/internal/permissions"
)

// Group represents a role record. Managed groups have their lifecycle owned
// by administrators; unmanaged groups are open to regular users.
type Group struct {
	ID          int64
	Name        string
	Description string
	IsManaged   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resource snapshots the group for permission evaluation.
func (g *Group) Resource() *permissions.Resource {
	if g == nil {
		return nil
	}
	return &permissions.Resource{
		Kind:      permissions.KindGroup,
		ID:        g.ID,
		Name:      g.Name,
		IsManaged: g.IsManaged,
	}
}

// Document renders the group in the shape the search index stores.
func (g *Group) Document() map[string]any {
	return map[string]any{
		"id":         g.ID,
		"name":       g.Name,
		"is_managed": g.IsManaged,
	}
}
