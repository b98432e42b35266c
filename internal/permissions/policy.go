package permissions

import (
	"context"

	"github.com/castellan-platform/castellan/internal/access"
	"github.com/castellan-platform/castellan/internal/search"
	"github.com/castellan-platform/castellan/internal/shared"
)

// Action names shared by the resource policies.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionSearch = "search"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionReadEmail         = "read_email"
	ActionReadDetails       = "read_details"
	ActionReadAll           = "read_all"
	ActionReadSystemDetails = "read_system_details"
	ActionManage            = "manage"
	ActionSearchAll         = "search_all"
	ActionImpersonate       = "impersonate"
	ActionManageGroups      = "manage_groups"
)

// Config carries the runtime flags the policies depend on. It is built
// from application configuration and injected at construction time.
type Config struct {
	GroupsEnabled       bool
	ProtectedGroupNames []string
}

// Policy binds, per action name, an ordered list of generators for one
// resource type. Policies are stateless and safe to share across requests.
type Policy struct {
	name     string
	actions  map[string][]Generator
	observer DecisionObserver
}

// DecisionObserver receives every policy decision, for instrumentation.
type DecisionObserver func(policy, action string, allowed bool)

// NewPolicy builds a named policy from an action table.
func NewPolicy(name string, actions map[string][]Generator) *Policy {
	return &Policy{name: name, actions: actions}
}

// Name returns the resource type the policy guards.
func (p *Policy) Name() string { return p.name }

// Observe installs a decision observer and returns the policy.
func (p *Policy) Observe(fn DecisionObserver) *Policy {
	p.observer = fn
	return p
}

// Allows decides a single-record authorization: the identity must provide
// at least one need granted by a generator and none of the needs excluded
// by any generator. An action with no generators denies everyone.
func (p *Policy) Allows(ctx context.Context, action string, e Context) bool {
	allowed := p.decide(ctx, action, e)
	if p.observer != nil {
		p.observer(p.name, action, allowed)
	}
	return allowed
}

func (p *Policy) decide(ctx context.Context, action string, e Context) bool {
	gens := p.actions[action]
	if len(gens) == 0 {
		return false
	}
	perm := access.NewPermission()
	for _, g := range gens {
		perm.Grant(g.Needs(ctx, e)...)
		perm.Exclude(g.Excludes(ctx, e)...)
	}
	return perm.Allows(e.Identity)
}

// Require is Allows with the denial surfaced as ErrPermissionDenied.
func (p *Policy) Require(ctx context.Context, action string, e Context) error {
	if !p.Allows(ctx, action, e) {
		return shared.ErrPermissionDenied
	}
	return nil
}

// QueryFilter combines the generators' filters with logical AND: a record
// must satisfy every contributed constraint to appear in results. Rules
// without a filter (exclusion-only rules) contribute nothing here and act
// through Allows at single-record check time instead. A nil result means
// the policy imposes no search-time constraint.
func (p *Policy) QueryFilter(ctx context.Context, action string, e Context) search.Query {
	var queries []search.Query
	for _, g := range p.actions[action] {
		if q := g.QueryFilter(ctx, e); q != nil {
			queries = append(queries, q)
		}
	}
	return search.And(queries...)
}
