// Package session implements the command-driven session gate for an
// exercise capture.
//
// A StateMachine starts Idle, moves to Exercising on a command containing
// "start", to Finished on a command containing "stop", and back to
// Exercising on another "start". Matching is case-insensitive substring
// containment and only the branch belonging to the current state is
// checked, so "stop" is ignored while Idle and "restart" counts as a start.
// Reset forces Idle from any state.
package session
