// Package access holds the static authorization tables of the portal: which
// roles may open which view, what each role lands on, and what the side menu
// offers. Both the portal client and the API server read these tables so that
// route gating and menu visibility cannot drift apart.
package access

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/auth"
)

const (
	PathRoot         = "/"
	PathLogin        = "/login"
	PathUnauthorized = "/unauthorized"
)

var ErrMenuDrift = errors.New("menu entry diverges from route table")

// Route is one navigable view and the roles permitted to open it. An empty
// Roles set admits any authenticated identity.
type Route struct {
	Path   string      `json:"path"`
	View   string      `json:"view"`
	Roles  []auth.Role `json:"roles,omitempty"`
	Public bool        `json:"public,omitempty"`
}

var (
	management     = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin)
	peopleOps      = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleHR)
	departmentView = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleHR, auth.RoleHOD)
	staff          = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleHR, auth.RoleAccounts, auth.RoleEmployee, auth.RoleHOD)
	sales          = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleAccounts)
	billing        = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleAccounts, auth.RoleClient)
	projectView    = auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleHOD, auth.RoleEmployee, auth.RoleClient)
)

var routes = []Route{
	{Path: PathLogin, View: "login", Public: true},
	{Path: "/register", View: "register", Public: true},
	{Path: "/forgot-password", View: "forgot-password", Public: true},
	{Path: "/reset-password", View: "reset-password", Public: true},
	{Path: PathUnauthorized, View: "unauthorized", Public: true},

	{Path: PathRoot, View: "home"},
	{Path: "/profile", View: "profile"},

	{Path: "/superadmin/dashboard", View: "superadmin-dashboard", Roles: auth.Roles(auth.RoleSuperAdmin)},
	{Path: "/admin/dashboard", View: "admin-dashboard", Roles: auth.Roles(auth.RoleAdmin)},
	{Path: "/hr/dashboard", View: "hr-dashboard", Roles: auth.Roles(auth.RoleHR)},
	{Path: "/accounts/dashboard", View: "accounts-dashboard", Roles: auth.Roles(auth.RoleAccounts)},
	{Path: "/employee/dashboard", View: "employee-dashboard", Roles: auth.Roles(auth.RoleEmployee)},
	{Path: "/client/dashboard", View: "client-dashboard", Roles: auth.Roles(auth.RoleClient)},
	{Path: "/hod/dashboard", View: "hod-dashboard", Roles: auth.Roles(auth.RoleHOD)},

	{Path: "/users", View: "users", Roles: peopleOps},
	{Path: "/users/{id}", View: "user-detail", Roles: peopleOps},
	{Path: "/departments", View: "departments", Roles: departmentView},
	{Path: "/attendance", View: "attendance", Roles: staff},
	{Path: "/leaves", View: "leaves", Roles: staff},
	{Path: "/leaves/approvals", View: "leave-approvals", Roles: auth.Roles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleHR, auth.RoleHOD)},
	{Path: "/clients", View: "clients", Roles: sales},
	{Path: "/leads", View: "leads", Roles: sales},
	{Path: "/projects", View: "projects", Roles: projectView},
	{Path: "/projects/{id}", View: "project-detail", Roles: projectView},
	{Path: "/subscriptions", View: "subscriptions", Roles: billing},
	{Path: "/subscriptions/plan-builder", View: "plan-builder", Roles: management},
	{Path: "/billing", View: "billing", Roles: billing},
	{Path: "/settings/access", View: "access-matrix", Roles: management},
}

// Routes returns the static route table.
func Routes() []Route {
	return slices.Clone(routes)
}

var defaultPaths = map[auth.Role]string{
	auth.RoleSuperAdmin: "/superadmin/dashboard",
	auth.RoleAdmin:      "/admin/dashboard",
	auth.RoleHR:         "/hr/dashboard",
	auth.RoleAccounts:   "/accounts/dashboard",
	auth.RoleEmployee:   "/employee/dashboard",
	auth.RoleClient:     "/client/dashboard",
	auth.RoleHOD:        "/hod/dashboard",
}

// DefaultPath is the landing view for a role. Unrecognized roles land on the
// least privileged dashboard.
func DefaultPath(role auth.Role) string {
	if path, ok := defaultPaths[role]; ok {
		return path
	}
	return defaultPaths[auth.RoleEmployee]
}

var defaultMatcher = NewMatcher(routes)

// RolesFor returns the allowed-role set of the view at path, so API
// endpoints backing a view can be gated with the same set. Unknown paths
// return nil, which admits any authenticated role.
func RolesFor(path string) []auth.Role {
	route, ok := defaultMatcher.Match(path)
	if !ok {
		return nil
	}
	return slices.Clone(route.Roles)
}

// Matcher resolves concrete paths such as /projects/42 to their route.
type Matcher struct {
	mux    *chi.Mux
	byPath map[string]Route
}

func NewMatcher(table []Route) *Matcher {
	m := &Matcher{mux: chi.NewRouter(), byPath: make(map[string]Route, len(table))}
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, route := range table {
		m.mux.Get(route.Path, noop)
		m.byPath[route.Path] = route
	}
	return m
}

// Match resolves p after NormalizePath, so every spelling a browser router
// would render as the same view gets the same route.
func (m *Matcher) Match(p string) (Route, bool) {
	rctx := chi.NewRouteContext()
	if !m.mux.Match(rctx, http.MethodGet, NormalizePath(p)) {
		return Route{}, false
	}
	route, ok := m.byPath[rctx.RoutePattern()]
	return route, ok
}

// NormalizePath drops any query or fragment, collapses repeated and dot
// segments, and removes the trailing slash. The empty path is the root.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// ValidateMenu checks that every menu entry points at a known route with the
// same allowed-role set.
func ValidateMenu(menu []MenuEntry, table []Route) error {
	matcher := NewMatcher(table)
	var errs []error
	for _, entry := range menu {
		route, ok := matcher.Match(entry.Path)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q has no route", ErrMenuDrift, entry.Path))
			continue
		}
		if !sameRoles(entry.Roles, route.Roles) {
			errs = append(errs, fmt.Errorf("%w: %q allows %v, route allows %v", ErrMenuDrift, entry.Path, entry.Roles, route.Roles))
		}
	}
	return errors.Join(errs...)
}

func sameRoles(a, b []auth.Role) bool {
	if len(a) != len(b) {
		return false
	}
	for _, role := range a {
		if !slices.Contains(b, role) {
			return false
		}
	}
	return true
}
