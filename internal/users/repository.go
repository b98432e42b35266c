package users

import (
	"context"

	"github.com/castellan-platform/castellan/internal/search"
)

// RepositoryPort defines data access methods for user accounts.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, user *User, passwordHash string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUserGroups(ctx context.Context, userID int64) ([]GroupRef, error)
	ListGroupUserIDs(ctx context.Context, roleID int64) ([]int64, error)
	AddUserGroup(ctx context.Context, userID, roleID int64) (bool, error)
	RemoveUserGroup(ctx context.Context, userID, roleID int64) (bool, error)
}

// GroupLookup resolves group records by name. The groups service provides
// the production implementation.
type GroupLookup interface {
	ByName(ctx context.Context, name string) (*GroupRef, error)
}

// Searcher executes a query filter against the user search index. The
// filter is handed over verbatim; Castellan never interprets it.
type Searcher interface {
	SearchUsers(ctx context.Context, q search.Query) ([]User, error)
}

// Reindexer refreshes one account's search document after a committed
// write, so reads through search do not wait for the next full reindex.
type Reindexer interface {
	ReindexUser(ctx context.Context, id int64) error
}

// Tasks enqueues fire-and-forget background work triggered by account
// lifecycle changes.
type Tasks interface {
	EnqueuePasswordReset(ctx context.Context, userID int64, email string) error
	EnqueueModerationAction(ctx context.Context, userID int64, action string) error
}
