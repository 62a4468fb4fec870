package auth

import (
	"errors"
	"strings"
)

var ErrInvalidIdentity = errors.New("invalid identity")

type DepartmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Identity is the authenticated actor as returned by the login exchange and
// persisted by the portal.
type Identity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Role       Role           `json:"role"`
	Department *DepartmentRef `json:"department,omitempty"`
}

func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.Join(ErrInvalidIdentity, errors.New("id is required"))
	}
	if !i.Role.Valid() {
		return errors.Join(ErrInvalidIdentity, ErrUnknownRole)
	}
	return nil
}

// RoleRef returns a pointer suitable for IsAllowed.
func (i *Identity) RoleRef() *Role {
	if i == nil {
		return nil
	}
	role := i.Role
	return &role
}
