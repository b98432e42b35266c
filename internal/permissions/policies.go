package permissions

import "github.com/castellan-platform/castellan/internal/access"

// NewUsersPolicy reproduces the user-resource action table. Interactive
// account mutation goes through the moderation actions; create/update/
// delete are reserved for the system process.
func NewUsersPolicy(cfg Config, directory SuperAdminDirectory) *Policy {
	userManager := NewAdministrationUserAction(directory)
	groupManager := NewAdministrationGroupAction(directory)
	superAdmin := NewAction(access.SuperUserAction)

	return NewPolicy("users", map[string][]Generator{
		ActionCreate: {SystemProcess{}},
		ActionRead: {
			userManager,
			NewIfPublicUser([]Generator{AnyUser{}}, []Generator{Self{}}),
			SystemProcess{},
		},
		ActionSearch: {AuthenticatedUser{}, SystemProcess{}},
		ActionUpdate: {SystemProcess{}},
		ActionDelete: {SystemProcess{}},

		ActionReadEmail: {
			userManager,
			NewIfPublicEmail([]Generator{AnyUser{}}, []Generator{Self{}}),
			SystemProcess{},
		},
		ActionReadDetails: {userManager, Self{}, SystemProcess{}},
		ActionReadAll:     {userManager, SystemProcess{}},

		ActionManage:            {userManager, PreventSelf{}, SystemProcess{}},
		ActionSearchAll:         {userManager, SystemProcess{}},
		ActionReadSystemDetails: {userManager, SystemProcess{}},
		ActionImpersonate: {
			NewIfSuperAdmin(directory, []Generator{superAdmin}, []Generator{userManager}),
			PreventSelf{},
			SystemProcess{},
		},
		ActionManageGroups: {
			NewIfSuperAdmin(directory, []Generator{superAdmin}, []Generator{groupManager}),
			SystemProcess{},
		},
	})
}

// NewGroupsPolicy reproduces the group-resource action table. Every action
// additionally requires group resources to be enabled for the "group"
// member type, except for the system process.
func NewGroupsPolicy(cfg Config, directory SuperAdminDirectory) *Policy {
	groupManager := NewAdministrationGroupAction(directory)
	superAdmin := NewAction(access.SuperUserAction)
	protected := NewProtectedGroupIdentifiers(cfg.ProtectedGroupNames)

	canAny := func() []Generator {
		return []Generator{NewGroupsEnabled(cfg.GroupsEnabled, "group"), SystemProcess{}}
	}

	return NewPolicy("groups", map[string][]Generator{
		ActionRead: append(canAny(),
			NewIfSuperAdmin(directory,
				[]Generator{superAdmin},
				[]Generator{NewIfGroupNotManaged([]Generator{AuthenticatedUser{}}, []Generator{groupManager})},
			),
		),
		ActionSearch: append(canAny(), AuthenticatedUser{}),
		ActionCreate: {protected, groupManager, SystemProcess{}},
		ActionUpdate: append(canAny(),
			protected,
			NewIfSuperAdmin(directory,
				[]Generator{superAdmin},
				[]Generator{NewIfGroupNotManaged([]Generator{DenyAll{}}, []Generator{groupManager})},
			),
		),
		ActionDelete: append(canAny(),
			protected,
			NewIfSuperAdmin(directory,
				[]Generator{superAdmin},
				[]Generator{NewIfGroupNotManaged([]Generator{DenyAll{}}, []Generator{groupManager})},
			),
			SystemProcess{},
		),
	})
}

// NewDomainsPolicy restricts every domain action to user moderators and the
// system process.
func NewDomainsPolicy(cfg Config, directory SuperAdminDirectory) *Policy {
	userManager := NewAdministrationUserAction(directory)

	return NewPolicy("domains", map[string][]Generator{
		ActionCreate: {userManager, SystemProcess{}},
		ActionRead:   {userManager, SystemProcess{}},
		ActionSearch: {userManager, SystemProcess{}},
		ActionUpdate: {userManager, SystemProcess{}},
		ActionDelete: {userManager, SystemProcess{}},
	})
}
