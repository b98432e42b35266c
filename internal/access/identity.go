package access

// Identity describes the acting principal for the duration of a request.
// It carries the set of needs the principal provides and is immutable once
// built by the authentication layer.
type Identity struct {
	ID       int64
	provides map[Need]struct{}
}

// NewIdentity builds an identity providing the given needs.
func NewIdentity(id int64, needs ...Need) Identity {
	provides := make(map[Need]struct{}, len(needs))
	for _, n := range needs {
		provides[n] = struct{}{}
	}
	return Identity{ID: id, provides: provides}
}

// SystemIdentity returns the trusted non-interactive identity. It provides
// only the system-process need: rules that deny everyone do so by excluding
// the any-user need, and the system process must stay exempt from those.
func SystemIdentity() Identity {
	return NewIdentity(0, SystemProcess)
}

// AnonymousIdentity returns an unauthenticated identity.
func AnonymousIdentity() Identity {
	return NewIdentity(0, AnyUser)
}

// Provides reports whether the identity carries the given need.
func (i Identity) Provides(n Need) bool {
	_, ok := i.provides[n]
	return ok
}

// Needs returns the needs provided by the identity.
func (i Identity) Needs() []Need {
	out := make([]Need, 0, len(i.provides))
	for n := range i.provides {
		out = append(out, n)
	}
	return out
}

// IsSystemProcess reports whether the identity is the system process.
func (i Identity) IsSystemProcess() bool {
	return i.Provides(SystemProcess)
}
