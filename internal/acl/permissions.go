// Package acl holds the closed role set and the static table of which roles
// may perform each protected action.
package acl

import "slices"

type requirementKind int

const (
	kindPublic requirementKind = iota
	kindExact
	kindSet
)

// Requirement is one of: public, an exact role, or a set of roles.
type Requirement struct {
	kind  requirementKind
	roles []Role
}

func Public() Requirement { return Requirement{kind: kindPublic} }

func Exact(role Role) Requirement {
	return Requirement{kind: kindExact, roles: []Role{role}}
}

func Set(roles ...Role) Requirement {
	return Requirement{kind: kindSet, roles: slices.Clone(roles)}
}

func (r Requirement) Allows(role Role) bool {
	switch r.kind {
	case kindPublic:
		return true
	case kindExact:
		return role == r.roles[0]
	default:
		return slices.Contains(r.roles, role)
	}
}

func Check(req Requirement, role Role) bool {
	return req.Allows(role)
}

// Permission names a protected action and the rule guarding it.
type Permission struct {
	Action      string
	Requirement Requirement
}

var privileged = Set(RoleOrganizer, RoleAdmin)

var (
	UpdateSelf            = Permission{Action: "update_self", Requirement: Public()}
	GetUserMinimalInfo    = Permission{Action: "get_user_minimal_info", Requirement: Public()}
	SearchUserMinimalInfo = Permission{Action: "search_user_minimal_info", Requirement: Public()}

	GetUserFullInfo = Permission{Action: "get_user_full_info", Requirement: privileged}
	UpdateAnyUser   = Permission{Action: "update_any_user", Requirement: privileged}
	BanUser         = Permission{Action: "ban_user", Requirement: privileged}

	DeleteUser = Permission{Action: "delete_user", Requirement: Exact(RoleAdmin)}
	UpdateRole = Permission{Action: "update_role", Requirement: Exact(RoleAdmin)}
)

func (p Permission) Allows(role Role) bool {
	return p.Requirement.Allows(role)
}
