package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/portal/session"
)

type fixedSource session.State

func (f fixedSource) State() session.State { return session.State(f) }

func rolePtr(r auth.Role) *auth.Role { return &r }

func paths(entries []access.MenuEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

var testMenu = []access.MenuEntry{
	{Label: "Users", Path: "/users", Roles: auth.Roles(auth.RoleAdmin, auth.RoleHR)},
	{Label: "Projects", Path: "/projects", Roles: auth.Roles(auth.RoleEmployee, auth.RoleHR)},
	{Label: "Billing", Path: "/billing", Roles: auth.Roles(auth.RoleAccounts)},
	{Label: "Profile", Path: "/profile"},
}

func TestVisibleKeepsDeclaredOrder(t *testing.T) {
	got := Collect(Visible(rolePtr(auth.RoleHR), testMenu))
	assert.Equal(t, []string{"/users", "/projects", "/profile"}, paths(got))
}

func TestVisibleNilRoleSeesNothing(t *testing.T) {
	assert.Empty(t, Collect(Visible(nil, testMenu)))
}

func TestVisibleUnrestrictedEntry(t *testing.T) {
	got := Collect(Visible(rolePtr(auth.RoleClient), testMenu))
	assert.Equal(t, []string{"/profile"}, paths(got))
}

func TestVisibleStopsEarly(t *testing.T) {
	var seen []string
	for entry := range Visible(rolePtr(auth.RoleHR), testMenu) {
		seen = append(seen, entry.Path)
		break
	}
	assert.Equal(t, []string{"/users"}, seen)
}

func TestForSession(t *testing.T) {
	signedIn := fixedSource{Session: &session.Session{Token: "t", Identity: auth.Identity{ID: "1", Role: auth.RoleAccounts}}}
	assert.Equal(t, []string{"/billing", "/profile"}, paths(Collect(ForSession(signedIn, testMenu))))

	assert.Empty(t, Collect(ForSession(fixedSource{}, testMenu)))

	loading := fixedSource{Loading: true, Session: signedIn.Session}
	assert.Empty(t, Collect(ForSession(loading, testMenu)))
}

func TestMenuMatchesRouteTable(t *testing.T) {
	require.NoError(t, access.ValidateMenu(access.Menu(), access.Routes()))

	routes := access.NewMatcher(access.Routes())
	for _, role := range auth.AllRoles() {
		r := role
		for entry := range Visible(&r, access.Menu()) {
			route, ok := routes.Match(entry.Path)
			require.True(t, ok, entry.Path)
			assert.True(t, auth.IsAllowed(&r, route.Roles), "%s sees %s but cannot open it", role, entry.Path)
		}
	}
}

func TestEveryRoleSeesOwnDashboard(t *testing.T) {
	for _, role := range auth.AllRoles() {
		r := role
		got := paths(Collect(Visible(&r, access.Menu())))
		assert.Contains(t, got, access.DefaultPath(role))
		assert.Contains(t, got, "/profile")
	}
}
