// Package permissions implements the rule-evaluation engine deciding, per
// action and per record, whether an identity is authorized, and turning the
// same rules into search-time query filters.
//
// A Generator is a stateless rule producing a set of granting needs, a set
// of excluding needs and an optional query filter. Generators never return
// errors; missing context degrades to empty results, and denial only ever
// comes from excluding needs or from a policy whose granting union stays
// empty.
package permissions

import (
	"context"
	"strconv"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/search"
)

// ResourceKind discriminates the record types generators inspect.
type ResourceKind string

// Resource kinds.
const (
	KindUser  ResourceKind = "user"
	KindGroup ResourceKind = "group"
)

// Visibility preference values.
const (
	VisibilityPublic     = "public"
	VisibilityRestricted = "restricted"
)

// Resource is a snapshot of the record a rule is evaluated against. The
// owning service builds it from its aggregate; generators never load state
// themselves.
type Resource struct {
	Kind        ResourceKind
	ID          int64
	Name        string
	IsManaged   bool
	Preferences map[string]string
	Roles       []string
}

// Visibility returns the named preference, defaulting to restricted.
func (r *Resource) Visibility(field string) string {
	if r == nil {
		return VisibilityRestricted
	}
	if v, ok := r.Preferences[field]; ok && v != "" {
		return v
	}
	return VisibilityRestricted
}

// Context carries the evaluation inputs for one rule check. Resource is nil
// for search-time evaluation. ActorID is set only by callers that need
// self-action prevention; it is a pointer so that zero and negative sentinel
// ids stay distinguishable from "absent".
type Context struct {
	Identity    access.Identity
	Resource    *Resource
	ActorID     *int64
	MemberTypes []string
}

// Generator is one composable permission rule.
type Generator interface {
	// Needs returns needs that grant access when any is provided.
	Needs(ctx context.Context, e Context) []access.Need
	// Excludes returns needs that revoke access when any is provided.
	// Excludes always win over needs.
	Excludes(ctx context.Context, e Context) []access.Need
	// QueryFilter expresses the rule as a search filter fragment, or nil
	// when the rule contributes no search-time constraint.
	QueryFilter(ctx context.Context, e Context) search.Query
}

// generator provides the degenerate defaults concrete rules override.
type generator struct{}

func (generator) Needs(context.Context, Context) []access.Need    { return nil }
func (generator) Excludes(context.Context, Context) []access.Need { return nil }
func (generator) QueryFilter(context.Context, Context) search.Query {
	return nil
}

// AnyUser grants access to anyone, including unauthenticated visitors.
type AnyUser struct{ generator }

func (AnyUser) Needs(context.Context, Context) []access.Need {
	return []access.Need{access.AnyUser}
}

func (AnyUser) QueryFilter(context.Context, Context) search.Query {
	return search.MatchAll{}
}

// AuthenticatedUser grants access to logged-in users.
type AuthenticatedUser struct{ generator }

func (AuthenticatedUser) Needs(context.Context, Context) []access.Need {
	return []access.Need{access.AuthenticatedUser}
}

func (AuthenticatedUser) QueryFilter(context.Context, Context) search.Query {
	return search.MatchAll{}
}

// SystemProcess grants access to the trusted non-interactive identity.
type SystemProcess struct{ generator }

func (SystemProcess) Needs(context.Context, Context) []access.Need {
	return []access.Need{access.SystemProcess}
}

func (SystemProcess) QueryFilter(context.Context, Context) search.Query {
	return search.MatchAll{}
}

// Self grants access to the user the record represents.
type Self struct{ generator }

func (Self) Needs(_ context.Context, e Context) []access.Need {
	if e.Resource == nil {
		return nil
	}
	return []access.Need{access.UserNeed(e.Resource.ID)}
}

func (Self) QueryFilter(_ context.Context, e Context) search.Query {
	for _, need := range e.Identity.Needs() {
		if need.Method == access.MethodID {
			return search.Term{Field: "id", Value: need.Value}
		}
	}
	return nil
}

// PreventSelf revokes access when the acting user targets their own record.
type PreventSelf struct{ generator }

func (PreventSelf) Excludes(_ context.Context, e Context) []access.Need {
	if e.Resource == nil || e.ActorID == nil {
		return nil
	}
	if *e.ActorID != e.Resource.ID {
		return nil
	}
	return []access.Need{access.UserNeed(e.Resource.ID)}
}

// DenyAll revokes access for everyone.
type DenyAll struct{ generator }

func (DenyAll) Excludes(context.Context, Context) []access.Need {
	return []access.Need{access.AnyUser}
}

// GroupsEnabled revokes access for everyone when group resources are
// disabled by configuration and the requested member type is one of the
// configured types. A system process is exempt at the policy level because
// it appears in its own generator.
type GroupsEnabled struct {
	generator
	enabled bool
	types   map[string]struct{}
}

// NewGroupsEnabled binds the runtime flag and the member types that require
// groups to be enabled.
func NewGroupsEnabled(enabled bool, memberTypes ...string) GroupsEnabled {
	types := make(map[string]struct{}, len(memberTypes))
	for _, t := range memberTypes {
		types[t] = struct{}{}
	}
	return GroupsEnabled{enabled: enabled, types: types}
}

func (g GroupsEnabled) Excludes(_ context.Context, e Context) []access.Need {
	if g.enabled {
		return nil
	}
	memberTypes := e.MemberTypes
	if len(memberTypes) == 0 {
		memberTypes = []string{"group"}
	}
	for _, m := range memberTypes {
		if _, ok := g.types[m]; ok {
			return []access.Need{access.AnyUser}
		}
	}
	return nil
}

// ProtectedGroupIdentifiers revokes access to groups whose id or name is on
// the configured protected list, unless the identity is the system process.
// Protected groups stay visible in search; only mutation is blocked, so the
// rule carries no query filter.
type ProtectedGroupIdentifiers struct {
	generator
	protected map[string]struct{}
}

// NewProtectedGroupIdentifiers binds the configured protected names.
func NewProtectedGroupIdentifiers(names []string) ProtectedGroupIdentifiers {
	protected := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			protected[n] = struct{}{}
		}
	}
	return ProtectedGroupIdentifiers{protected: protected}
}

func (g ProtectedGroupIdentifiers) Excludes(_ context.Context, e Context) []access.Need {
	if !g.isProtected(e.Resource) {
		return nil
	}
	if e.Identity.IsSystemProcess() {
		return nil
	}
	return []access.Need{access.AnyUser}
}

func (g ProtectedGroupIdentifiers) isProtected(r *Resource) bool {
	if r == nil || len(g.protected) == 0 {
		return false
	}
	if _, ok := g.protected[strconv.FormatInt(r.ID, 10)]; ok {
		return true
	}
	_, ok := g.protected[r.Name]
	return ok
}

// Action grants access to holders of a single administrative action.
type Action struct {
	generator
	action access.Need
}

// NewAction builds a generator around the given action need.
func NewAction(action access.Need) Action {
	return Action{action: action}
}

func (g Action) Needs(context.Context, Context) []access.Need {
	return []access.Need{g.action}
}

func (g Action) QueryFilter(_ context.Context, e Context) search.Query {
	if access.NewPermission(g.action).Allows(e.Identity) {
		return search.MatchAll{}
	}
	return nil
}
