// Package access defines the atomic authorization facts (needs) carried by
// identities and the permission evaluator that decides whether an identity
// satisfies a rule built from grant/exclude need sets.
package access

import "strconv"

// Need is a single authorization fact, e.g. "user id 7" or "system process".
// Needs are compared by equality.
type Need struct {
	Method string
	Value  string
}

// Need methods.
const (
	MethodID         = "id"
	MethodRole       = "role"
	MethodAction     = "action"
	MethodSystemRole = "system_role"
)

// Well-known system-role needs.
var (
	AnyUser           = Need{Method: MethodSystemRole, Value: "any_user"}
	AuthenticatedUser = Need{Method: MethodSystemRole, Value: "authenticated_user"}
	SystemProcess     = Need{Method: MethodSystemRole, Value: "system_process"}
)

// Administrative action needs.
var (
	// ModerationAction gates user/group management endpoints.
	ModerationAction = ActionNeed("administration-moderation")
	// SuperUserAction marks unrestricted administrative access.
	SuperUserAction = ActionNeed("superuser-access")
)

// UserNeed returns the need identifying one specific user.
func UserNeed(id int64) Need {
	return Need{Method: MethodID, Value: strconv.FormatInt(id, 10)}
}

// RoleNeed returns the need granted by membership in a named role.
func RoleNeed(name string) Need {
	return Need{Method: MethodRole, Value: name}
}

// ActionNeed returns the need representing an administrative action.
func ActionNeed(name string) Need {
	return Need{Method: MethodAction, Value: name}
}
