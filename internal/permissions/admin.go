package permissions

import (
	"context"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/search"
)

// SuperAdminDirectory answers which users and roles hold superadmin access.
// Implementations are read-only; generators stay pure functions of injected
// dependencies instead of reaching into ambient database state.
type SuperAdminDirectory interface {
	SuperAdminUserIDs(ctx context.Context) ([]int64, error)
	SuperAdminRoleIDs(ctx context.Context) ([]int64, error)
}

// AdministrationAction grants access to holders of a moderation action and,
// at search time, widens results to everything except superadmin-owned
// records. When the identity lacks the action the filter contributes
// nothing at all: denial is the job of the other rules in the policy list,
// never of this filter.
type AdministrationAction struct {
	generator
	action           access.Need
	recordsToExclude func(ctx context.Context) ([]int64, error)
}

// NewAdministrationUserAction hides superadmin users from non-superadmin
// moderators.
func NewAdministrationUserAction(directory SuperAdminDirectory) AdministrationAction {
	return AdministrationAction{
		action:           access.ModerationAction,
		recordsToExclude: directory.SuperAdminUserIDs,
	}
}

// NewAdministrationGroupAction hides superadmin roles from non-superadmin
// moderators.
func NewAdministrationGroupAction(directory SuperAdminDirectory) AdministrationAction {
	return AdministrationAction{
		action:           access.ModerationAction,
		recordsToExclude: directory.SuperAdminRoleIDs,
	}
}

func (g AdministrationAction) Needs(context.Context, Context) []access.Need {
	return []access.Need{g.action}
}

// QueryFilter returns match-all minus the superadmin-owned records for
// identities holding the action, and nil otherwise. A failed directory
// lookup also contributes nothing, which keeps search visibility closed.
func (g AdministrationAction) QueryFilter(ctx context.Context, e Context) search.Query {
	if !access.NewPermission(g.action).Allows(e.Identity) {
		return nil
	}
	excludeIDs, err := g.recordsToExclude(ctx)
	if err != nil {
		return nil
	}
	if len(excludeIDs) == 0 {
		return search.MatchAll{}
	}
	values := make([]any, len(excludeIDs))
	for i, id := range excludeIDs {
		values[i] = id
	}
	return search.And(search.MatchAll{}, search.Not(search.Terms{Field: "id", Values: values}))
}
