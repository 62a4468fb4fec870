// Package navigation filters the side menu down to what the current role may
// open. It uses the same predicate as the route guard.
package navigation

import (
	"iter"
	"slices"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/portal/session"
)

type SessionSource interface {
	State() session.State
}

// Visible yields the entries role may see, in declared order. A nil role
// yields nothing.
func Visible(role *auth.Role, menu []access.MenuEntry) iter.Seq[access.MenuEntry] {
	return access.VisibleMenu(role, menu)
}

// ForSession filters menu for whoever src currently holds. While the session
// is still loading nothing is shown.
func ForSession(src SessionSource, menu []access.MenuEntry) iter.Seq[access.MenuEntry] {
	state := src.State()
	if state.Loading {
		return Visible(nil, menu)
	}
	return Visible(state.Role(), menu)
}

func Collect(seq iter.Seq[access.MenuEntry]) []access.MenuEntry {
	return slices.Collect(seq)
}
