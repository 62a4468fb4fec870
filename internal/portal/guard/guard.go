// Package guard decides whether the current session may open a view.
package guard

import (
	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/portal/session"
)

type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateAllowed         State = "allowed"
	StateDenied          State = "denied"
)

// SessionSource is the read side of the session store.
type SessionSource interface {
	State() session.State
}

// Decision is the outcome for one path. Redirect is empty when the view
// should be rendered as requested.
type Decision struct {
	State    State
	Redirect string
	Route    access.Route
}

type Guard struct {
	src     SessionSource
	matcher *access.Matcher
}

func New(src SessionSource, routes []access.Route) *Guard {
	return &Guard{src: src, matcher: access.NewMatcher(routes)}
}

func (g *Guard) Evaluate(path string) Decision {
	route, ok := g.matcher.Match(path)
	if !ok {
		// unknown paths stay behind login
		route = access.Route{Path: access.NormalizePath(path)}
	}

	state := g.src.State()
	if state.Loading {
		return Decision{State: StateLoading, Route: route}
	}

	if route.Public {
		if state.Authenticated() {
			return Decision{State: StateAllowed, Route: route}
		}
		return Decision{State: StateUnauthenticated, Route: route}
	}

	if !state.Authenticated() {
		return Decision{State: StateUnauthenticated, Redirect: access.PathLogin, Route: route}
	}

	role := state.Role()
	if route.Path == access.PathRoot {
		return Decision{State: StateAllowed, Redirect: access.DefaultPath(*role), Route: route}
	}
	if !auth.IsAllowed(role, route.Roles) {
		return Decision{State: StateDenied, Redirect: access.PathUnauthorized, Route: route}
	}
	return Decision{State: StateAllowed, Route: route}
}

// Landing is where a freshly authenticated session should go.
func (g *Guard) Landing() string {
	role := g.src.State().Role()
	if role == nil {
		return access.PathLogin
	}
	return access.DefaultPath(*role)
}
