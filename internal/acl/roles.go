package acl

import "fmt"

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleHelper    Role = "helper"
	RoleJudge     Role = "judge"
	RoleAdmin     Role = "admin"
)

var allRoles = []Role{RoleUser, RoleOrganizer, RoleHelper, RoleJudge, RoleAdmin}

func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
