package auth

import (
	"errors"
	"fmt"
	"slices"
)

type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleHR         Role = "hr"
	RoleAccounts   Role = "accounts"
	RoleEmployee   Role = "employee"
	RoleClient     Role = "client"
	RoleHOD        Role = "hod"
)

var ErrUnknownRole = errors.New("unknown role")

var allRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleHR,
	RoleAccounts,
	RoleEmployee,
	RoleClient,
	RoleHOD,
}

// AllRoles returns the closed role set in declaration order.
func AllRoles() []Role {
	return slices.Clone(allRoles)
}

// Roles builds an allowed-role set for route and menu tables.
func Roles(roles ...Role) []Role {
	return roles
}

func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
	return role, nil
}

func (r Role) Valid() bool {
	return slices.Contains(allRoles, r)
}

func (r Role) String() string {
	return string(r)
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

// IsAllowed decides whether the current role may use a resource guarded by
// the allowed set. A nil role is unauthenticated and never allowed; an empty
// set admits every authenticated role. Membership is exact, roles do not
// inherit from each other.
func IsAllowed(current *Role, allowed []Role) bool {
	if current == nil {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, *current)
}
