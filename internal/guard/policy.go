// Package guard decides what a protected route does with the current session:
// render, show the loading state, or redirect. The decision is a pure function
// so the policy is testable apart from any HTTP plumbing.
package guard

import (
	"net/url"

	"github.com/haulstack/console-gateway/internal/session"
)

type ActionKind int

const (
	ActionRender ActionKind = iota
	ActionShowLoading
	ActionRedirect
)

func (k ActionKind) String() string {
	switch k {
	case ActionRender:
		return "render"
	case ActionShowLoading:
		return "show_loading"
	default:
		return "redirect"
	}
}

// Action is a navigation verdict. Target is set only for redirects.
type Action struct {
	Kind   ActionKind
	Target string
}

const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Decide maps (isLoading, isAuthenticated, roles) to a navigation action:
//
//	loading                      -> show loading, never redirect
//	unauthenticated              -> redirect to /login?redirect=<currentPath>
//	authenticated, roles satisfy -> render
//	authenticated, roles missing -> redirect to /unauthorized
//
// The login redirect keeps the originating path so a successful sign-in can
// land the user where they were headed.
func Decide(snap session.Snapshot, required []string, currentPath string) Action {
	if snap.IsLoading {
		return Action{Kind: ActionShowLoading}
	}
	if !snap.IsAuthenticated {
		return Action{Kind: ActionRedirect, Target: LoginPath + "?redirect=" + url.QueryEscape(currentPath)}
	}
	if !snap.HasAnyRole(required...) {
		return Action{Kind: ActionRedirect, Target: UnauthorizedPath}
	}
	return Action{Kind: ActionRender}
}
