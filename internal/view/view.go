// Package view models what a signed-in browser is looking at.
//
// A client is always in one of three states. The current state travels with
// each request in the client's token and is handed explicitly to handlers.
//
//	LoggedOut --login--> Splash --start--> Dashboard
//	    ^                  |                   |
//	    +-----logout-------+-------logout------+
package view

import (
	"errors"
	"fmt"
)

// State is one of LoggedOut, Splash or Dashboard.
type State string

const (
	LoggedOut State = "logged_out"
	Splash    State = "splash"
	Dashboard State = "dashboard"
)

// Action is a user action that may move the client to another state.
type Action string

const (
	Login  Action = "login"
	Start  Action = "start"
	Logout Action = "logout"
)

// ErrInvalidTransition is returned for an action not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid view transition")

// Parse converts a token claim into a State.
func Parse(s string) (State, error) {
	switch st := State(s); st {
	case LoggedOut, Splash, Dashboard:
		return st, nil
	}
	return "", fmt.Errorf("unknown view state %q", s)
}

// Transition returns the state reached by applying a in from.
// Login must already have been authenticated by the caller.
func Transition(from State, a Action) (State, error) {
	switch {
	case from == LoggedOut && a == Login:
		return Splash, nil
	case from == Splash && a == Start:
		return Dashboard, nil
	case (from == Splash || from == Dashboard) && a == Logout:
		return LoggedOut, nil
	}
	return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, a, from)
}
