package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/search"
)

type stubDirectory struct {
	userIDs []int64
	roleIDs []int64
	err     error
}

func (s *stubDirectory) SuperAdminUserIDs(context.Context) ([]int64, error) {
	return s.userIDs, s.err
}

func (s *stubDirectory) SuperAdminRoleIDs(context.Context) ([]int64, error) {
	return s.roleIDs, s.err
}

func TestConditionalSelectsBranchPerRecord(t *testing.T) {
	ctx := context.Background()
	cond := NewConditional(
		func(_ context.Context, e Context) bool { return e.Resource != nil && e.Resource.ID == 1 },
		[]Generator{AnyUser{}},
		[]Generator{SystemProcess{}},
	)

	thenNeeds := cond.Needs(ctx, Context{Resource: &Resource{ID: 1}})
	assert.Equal(t, []access.Need{access.AnyUser}, thenNeeds)

	elseNeeds := cond.Needs(ctx, Context{Resource: &Resource{ID: 2}})
	assert.Equal(t, []access.Need{access.SystemProcess}, elseNeeds)
}

func TestIfPublicBranching(t *testing.T) {
	ctx := context.Background()
	g := NewIfPublicUser([]Generator{AnyUser{}}, []Generator{Self{}})

	public := Context{Resource: userResource(7, VisibilityPublic)}
	assert.Equal(t, []access.Need{access.AnyUser}, g.Needs(ctx, public))

	restricted := Context{Resource: userResource(7, VisibilityRestricted)}
	assert.Equal(t, []access.Need{access.UserNeed(7)}, g.Needs(ctx, restricted))

	missingField := Context{Resource: &Resource{Kind: KindUser, ID: 7}}
	assert.Equal(t, []access.Need{access.UserNeed(7)}, g.Needs(ctx, missingField))

	nilRecord := Context{}
	assert.Nil(t, g.Needs(ctx, nilRecord))
}

func TestIfPublicQueryFilterBothBranches(t *testing.T) {
	ctx := context.Background()
	g := NewIfPublicUser([]Generator{AnyUser{}}, []Generator{Self{}})

	q := g.QueryFilter(ctx, Context{Identity: member(7)})
	boolQ, ok := q.(search.Bool)
	require.True(t, ok)
	require.Len(t, boolQ.Should, 2)

	doc := func(id int64, vis string) map[string]any {
		return map[string]any{"id": id, "preferences.visibility": vis}
	}
	assert.True(t, search.Matches(q, doc(9, VisibilityPublic)))
	assert.True(t, search.Matches(q, doc(7, VisibilityRestricted)))
	assert.False(t, search.Matches(q, doc(9, VisibilityRestricted)))
}

func TestIfPublicQueryFilterThenOnly(t *testing.T) {
	ctx := context.Background()
	g := NewIfPublicUser([]Generator{AnyUser{}}, nil)

	q := g.QueryFilter(ctx, Context{Identity: member(7)})
	assert.True(t, search.Matches(q, map[string]any{"preferences.visibility": VisibilityPublic}))
	assert.False(t, search.Matches(q, map[string]any{"preferences.visibility": VisibilityRestricted}))
}

func TestIfPublicQueryFilterElseOnly(t *testing.T) {
	ctx := context.Background()
	g := NewIfPublicUser(nil, []Generator{Self{}})

	q := g.QueryFilter(ctx, Context{Identity: member(7)})
	assert.True(t, search.Matches(q, map[string]any{"id": int64(9), "preferences.visibility": VisibilityPublic}))
	assert.True(t, search.Matches(q, map[string]any{"id": int64(7), "preferences.visibility": VisibilityRestricted}))
	assert.False(t, search.Matches(q, map[string]any{"id": int64(9), "preferences.visibility": VisibilityRestricted}))
}

func TestIfPublicQueryFilterNoBranchFilters(t *testing.T) {
	ctx := context.Background()
	g := NewIfPublicUser(nil, nil)

	q := g.QueryFilter(ctx, Context{Identity: member(7)})
	assert.Equal(t, search.Match{Field: "preferences.visibility", Value: VisibilityPublic}, q)
}

func TestIfGroupNotManagedBranching(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{}
	g := NewIfGroupNotManaged([]Generator{AuthenticatedUser{}}, []Generator{NewAdministrationGroupAction(directory)})

	unmanaged := Context{Resource: &Resource{Kind: KindGroup, ID: 1, IsManaged: false}}
	assert.Equal(t, []access.Need{access.AuthenticatedUser}, g.Needs(ctx, unmanaged))

	managed := Context{Resource: &Resource{Kind: KindGroup, ID: 1, IsManaged: true}}
	assert.Equal(t, []access.Need{access.ModerationAction}, g.Needs(ctx, managed))

	// No record reads as managed, keeping search evaluation conservative.
	assert.Equal(t, []access.Need{access.ModerationAction}, g.Needs(ctx, Context{}))
}

func TestIfGroupNotManagedQueryFilterShortCircuit(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{roleIDs: []int64{3}}
	g := NewIfGroupNotManaged([]Generator{AuthenticatedUser{}}, []Generator{NewAdministrationGroupAction(directory)})

	// A group moderator skips the unmanaged narrowing and sees everything
	// except superadmin roles.
	moderator := member(1, access.ModerationAction)
	q := g.QueryFilter(ctx, Context{Identity: moderator})
	require.NotNil(t, q)
	assert.True(t, search.Matches(q, map[string]any{"id": int64(5), "is_managed": true}))
	assert.False(t, search.Matches(q, map[string]any{"id": int64(3), "is_managed": true}))

	// A regular user is narrowed to unmanaged groups.
	q = g.QueryFilter(ctx, Context{Identity: member(2)})
	require.NotNil(t, q)
	assert.True(t, search.Matches(q, map[string]any{"id": int64(5), "is_managed": false}))
	assert.False(t, search.Matches(q, map[string]any{"id": int64(5), "is_managed": true}))
}

func TestIfSuperAdminIdentityBranch(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{}
	g := NewIfSuperAdmin(directory, []Generator{NewAction(access.SuperUserAction)}, []Generator{AuthenticatedUser{}})

	super := member(1, access.SuperUserAction)
	assert.Equal(t, []access.Need{access.SuperUserAction}, g.Needs(ctx, Context{Identity: super}))

	regular := member(2)
	assert.Equal(t, []access.Need{access.AuthenticatedUser}, g.Needs(ctx, Context{Identity: regular}))
}

func TestIfSuperAdminRecordBranch(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{userIDs: []int64{7}, roleIDs: []int64{3}}
	g := NewIfSuperAdmin(directory, []Generator{NewAction(access.SuperUserAction)}, []Generator{AuthenticatedUser{}})

	superUserRecord := Context{Identity: member(2), Resource: &Resource{Kind: KindUser, ID: 7}}
	assert.Equal(t, []access.Need{access.SuperUserAction}, g.Needs(ctx, superUserRecord))

	superRoleRecord := Context{Identity: member(2), Resource: &Resource{Kind: KindGroup, ID: 3}}
	assert.Equal(t, []access.Need{access.SuperUserAction}, g.Needs(ctx, superRoleRecord))

	plainRecord := Context{Identity: member(2), Resource: &Resource{Kind: KindUser, ID: 9}}
	assert.Equal(t, []access.Need{access.AuthenticatedUser}, g.Needs(ctx, plainRecord))
}

func TestIfSuperAdminDirectoryErrorFailsClosed(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{userIDs: []int64{7}, err: errors.New("db down")}
	g := NewIfSuperAdmin(directory, []Generator{NewAction(access.SuperUserAction)}, []Generator{AuthenticatedUser{}})

	// The record cannot be confirmed as superadmin, so the else branch
	// applies rather than the wider then branch.
	e := Context{Identity: member(2), Resource: &Resource{Kind: KindUser, ID: 7}}
	assert.Equal(t, []access.Need{access.AuthenticatedUser}, g.Needs(ctx, e))
}

func TestIfSuperAdminQueryFilterBranchesOnIdentityOnly(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{}
	g := NewIfSuperAdmin(directory, []Generator{NewAction(access.SuperUserAction)}, []Generator{AuthenticatedUser{}})

	super := member(1, access.SuperUserAction)
	assert.Equal(t, search.MatchAll{}, g.QueryFilter(ctx, Context{Identity: super}))

	regular := member(2)
	assert.Equal(t, search.MatchAll{}, g.QueryFilter(ctx, Context{Identity: regular}))
}

func TestAdministrationActionQueryFilter(t *testing.T) {
	ctx := context.Background()
	directory := &stubDirectory{userIDs: []int64{7, 8}}
	g := NewAdministrationUserAction(directory)

	// Without the action the rule contributes nothing.
	assert.Nil(t, g.QueryFilter(ctx, Context{Identity: member(1)}))

	moderator := member(1, access.ModerationAction)
	q := g.QueryFilter(ctx, Context{Identity: moderator})
	require.NotNil(t, q)
	assert.True(t, search.Matches(q, map[string]any{"id": int64(5)}))
	assert.False(t, search.Matches(q, map[string]any{"id": int64(7)}))
	assert.False(t, search.Matches(q, map[string]any{"id": int64(8)}))
}

func TestAdministrationActionEmptyExcludes(t *testing.T) {
	ctx := context.Background()
	g := NewAdministrationUserAction(&stubDirectory{})

	q := g.QueryFilter(ctx, Context{Identity: member(1, access.ModerationAction)})
	assert.Equal(t, search.MatchAll{}, q)
}

func TestAdministrationActionDirectoryErrorYieldsNil(t *testing.T) {
	ctx := context.Background()
	g := NewAdministrationUserAction(&stubDirectory{err: errors.New("db down")})

	assert.Nil(t, g.QueryFilter(ctx, Context{Identity: member(1, access.ModerationAction)}))
}
