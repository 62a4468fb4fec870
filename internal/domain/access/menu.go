package access

import (
	"iter"
	"slices"

	"hrportal/internal/domain/auth"
)

// MenuEntry is one item of the side navigation. Roles mirrors the allowed set
// of the route at Path.
type MenuEntry struct {
	Label string      `json:"label"`
	Path  string      `json:"path"`
	Roles []auth.Role `json:"roles,omitempty"`
}

var menu = []MenuEntry{
	{Label: "Dashboard", Path: "/superadmin/dashboard", Roles: auth.Roles(auth.RoleSuperAdmin)},
	{Label: "Dashboard", Path: "/admin/dashboard", Roles: auth.Roles(auth.RoleAdmin)},
	{Label: "Dashboard", Path: "/hr/dashboard", Roles: auth.Roles(auth.RoleHR)},
	{Label: "Dashboard", Path: "/accounts/dashboard", Roles: auth.Roles(auth.RoleAccounts)},
	{Label: "Dashboard", Path: "/employee/dashboard", Roles: auth.Roles(auth.RoleEmployee)},
	{Label: "Dashboard", Path: "/client/dashboard", Roles: auth.Roles(auth.RoleClient)},
	{Label: "Dashboard", Path: "/hod/dashboard", Roles: auth.Roles(auth.RoleHOD)},
	{Label: "Users", Path: "/users", Roles: peopleOps},
	{Label: "Departments", Path: "/departments", Roles: departmentView},
	{Label: "Attendance", Path: "/attendance", Roles: staff},
	{Label: "Leaves", Path: "/leaves", Roles: staff},
	{Label: "Leave Approvals", Path: "/leaves/approvals", Roles: auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleHR, auth.RoleHOD)},
	{Label: "Clients", Path: "/clients", Roles: sales},
	{Label: "Leads", Path: "/leads", Roles: sales},
	{Label: "Projects", Path: "/projects", Roles: projectView},
	{Label: "Subscriptions", Path: "/subscriptions", Roles: billing},
	{Label: "Plan Builder", Path: "/subscriptions/plan-builder", Roles: management},
	{Label: "Billing", Path: "/billing", Roles: billing},
	{Label: "Access Matrix", Path: "/settings/access", Roles: management},
	{Label: "Profile", Path: "/profile"},
}

// Menu returns the static menu definition in display order.
func Menu() []MenuEntry {
	return slices.Clone(menu)
}

// VisibleMenu yields the entries of menu that role may open, in declared
// order. A nil role yields nothing.
func VisibleMenu(role *auth.Role, menu []MenuEntry) iter.Seq[MenuEntry] {
	return func(yield func(MenuEntry) bool) {
		for _, entry := range menu {
			if !auth.IsAllowed(role, entry.Roles) {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}
