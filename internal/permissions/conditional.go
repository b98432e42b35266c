package permissions

import (
	"context"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/search"
)

// Conditional delegates to one of two generator lists depending on a
// predicate over the evaluation context. The predicate is evaluated fresh on
// every call; conditions depend on the record, so results are never cached
// across records.
type Conditional struct {
	then_     []Generator
	else_     []Generator
	condition func(ctx context.Context, e Context) bool
}

// NewConditional builds a conditional generator from an explicit predicate.
func NewConditional(condition func(ctx context.Context, e Context) bool, then_, else_ []Generator) Conditional {
	return Conditional{then_: then_, else_: else_, condition: condition}
}

func (c Conditional) branch(ctx context.Context, e Context) []Generator {
	if c.condition != nil && c.condition(ctx, e) {
		return c.then_
	}
	return c.else_
}

// Needs collects the granting needs of the selected branch.
func (c Conditional) Needs(ctx context.Context, e Context) []access.Need {
	var needs []access.Need
	for _, g := range c.branch(ctx, e) {
		needs = append(needs, g.Needs(ctx, e)...)
	}
	return needs
}

// Excludes collects the excluding needs of the selected branch.
func (c Conditional) Excludes(ctx context.Context, e Context) []access.Need {
	var excludes []access.Need
	for _, g := range c.branch(ctx, e) {
		excludes = append(excludes, g.Excludes(ctx, e)...)
	}
	return excludes
}

// QueryFilter returns the filter of the selected branch. Search-time
// evaluation has no record, so the predicate sees a nil resource.
func (c Conditional) QueryFilter(ctx context.Context, e Context) search.Query {
	return branchQuery(ctx, c.branch(ctx, e), e)
}

// branchQuery ORs the filters of a generator list; rules without a filter
// contribute nothing.
func branchQuery(ctx context.Context, gens []Generator, e Context) search.Query {
	var queries []search.Query
	for _, g := range gens {
		if q := g.QueryFilter(ctx, e); q != nil {
			queries = append(queries, q)
		}
	}
	return search.Or(queries...)
}

// IfPublic branches on a visibility preference of the record: the then_
// rules apply to public records, the else_ rules to restricted ones.
type IfPublic struct {
	Conditional
	field string
}

// NewIfPublic builds the conditional for the given preference field.
func NewIfPublic(field string, then_, else_ []Generator) IfPublic {
	g := IfPublic{field: field}
	g.then_ = then_
	g.else_ = else_
	g.condition = func(_ context.Context, e Context) bool {
		if e.Resource == nil {
			return false
		}
		return e.Resource.Visibility(field) == VisibilityPublic
	}
	return g
}

// NewIfPublicUser branches on the profile visibility preference.
func NewIfPublicUser(then_, else_ []Generator) IfPublic {
	return NewIfPublic("visibility", then_, else_)
}

// NewIfPublicEmail branches on the email visibility preference.
func NewIfPublicEmail(then_, else_ []Generator) IfPublic {
	return NewIfPublic("email_visibility", then_, else_)
}

// QueryFilter builds (public AND then) OR (restricted AND else), degrading
// gracefully when either side carries no filter.
func (g IfPublic) QueryFilter(ctx context.Context, e Context) search.Query {
	field := "preferences." + g.field
	qPublic := search.Match{Field: field, Value: VisibilityPublic}
	qRestricted := search.Match{Field: field, Value: VisibilityRestricted}
	thenQuery := branchQuery(ctx, g.then_, e)
	elseQuery := branchQuery(ctx, g.else_, e)

	switch {
	case thenQuery != nil && elseQuery != nil:
		return search.Or(search.And(qPublic, thenQuery), search.And(qRestricted, elseQuery))
	case thenQuery != nil:
		return search.And(qPublic, thenQuery)
	case elseQuery != nil:
		return search.Or(qPublic, search.And(qRestricted, elseQuery))
	default:
		return qPublic
	}
}

// IfGroupNotManaged applies the then_ rules to unmanaged groups and the
// else_ rules to managed ones.
type IfGroupNotManaged struct {
	Conditional
}

// NewIfGroupNotManaged builds the managed-group conditional.
func NewIfGroupNotManaged(then_, else_ []Generator) IfGroupNotManaged {
	g := IfGroupNotManaged{}
	g.then_ = then_
	g.else_ = else_
	g.condition = func(_ context.Context, e Context) bool {
		if e.Resource == nil {
			return false
		}
		return !e.Resource.IsManaged
	}
	return g
}

// QueryFilter narrows results to unmanaged groups matching the then_ filter.
// When the identity already satisfies the rule's own granting needs
// unconditionally, the filter skips straight to the else_ branch so a
// privileged identity's results are not incorrectly narrowed to unmanaged
// groups.
func (g IfGroupNotManaged) QueryFilter(ctx context.Context, e Context) search.Query {
	elseQuery := branchQuery(ctx, g.else_, e)

	perm := access.NewPermission(g.Conditional.Needs(ctx, e)...)
	if perm.Allows(e.Identity) {
		return elseQuery
	}

	qNotManaged := search.Match{Field: "is_managed", Value: false}
	return search.And(qNotManaged, branchQuery(ctx, g.then_, e))
}

// IfSuperAdmin applies the then_ rules when the identity itself holds the
// superuser action, or when the record at hand represents a superadmin user
// or role. Query filters only ever branch on the searching identity; the
// record-dependent half is unreachable at search time.
type IfSuperAdmin struct {
	Conditional
	directory SuperAdminDirectory
}

// NewIfSuperAdmin builds the superadmin conditional backed by the given
// directory.
func NewIfSuperAdmin(directory SuperAdminDirectory, then_, else_ []Generator) IfSuperAdmin {
	g := IfSuperAdmin{directory: directory}
	g.then_ = then_
	g.else_ = else_
	g.condition = func(ctx context.Context, e Context) bool {
		if identityIsSuperAdmin(e.Identity) {
			return true
		}
		return g.recordIsSuperAdmin(ctx, e.Resource)
	}
	return g
}

func identityIsSuperAdmin(identity access.Identity) bool {
	return access.NewPermission(access.SuperUserAction).Allows(identity)
}

// recordIsSuperAdmin reports whether the record is a superadmin role or a
// user holding superadmin access. Directory failures degrade to false.
func (g IfSuperAdmin) recordIsSuperAdmin(ctx context.Context, r *Resource) bool {
	if r == nil || g.directory == nil {
		return false
	}
	var (
		ids []int64
		err error
	)
	switch r.Kind {
	case KindGroup:
		ids, err = g.directory.SuperAdminRoleIDs(ctx)
	default:
		ids, err = g.directory.SuperAdminUserIDs(ctx)
	}
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == r.ID {
			return true
		}
	}
	return false
}

// QueryFilter branches on the searching identity only.
func (g IfSuperAdmin) QueryFilter(ctx context.Context, e Context) search.Query {
	if identityIsSuperAdmin(e.Identity) {
		return branchQuery(ctx, g.then_, e)
	}
	return branchQuery(ctx, g.else_, e)
}
