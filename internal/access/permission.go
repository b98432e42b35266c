package access

// Permission evaluates an identity against a set of granting needs and a set
// of excluding needs. An identity is allowed when it provides at least one
// granting need and none of the excluding needs. A permission with no
// granting needs denies everyone.
type Permission struct {
	needs    map[Need]struct{}
	excludes map[Need]struct{}
}

// NewPermission builds a permission granting the given needs.
func NewPermission(needs ...Need) Permission {
	p := Permission{
		needs:    make(map[Need]struct{}, len(needs)),
		excludes: make(map[Need]struct{}),
	}
	p.Grant(needs...)
	return p
}

// Grant adds granting needs.
func (p Permission) Grant(needs ...Need) {
	for _, n := range needs {
		p.needs[n] = struct{}{}
	}
}

// Exclude adds excluding needs. Excludes always win over grants.
func (p Permission) Exclude(needs ...Need) {
	for _, n := range needs {
		p.excludes[n] = struct{}{}
	}
}

// Allows reports whether the identity satisfies the permission.
func (p Permission) Allows(identity Identity) bool {
	for n := range p.excludes {
		if identity.Provides(n) {
			return false
		}
	}
	for n := range p.needs {
		if identity.Provides(n) {
			return true
		}
	}
	return false
}
