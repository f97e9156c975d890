// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAccessDenied indicates a session or tenant attempted to operate on a
// proposal it does not own. Deliberately carries no detail about the real
// owner.
var ErrAccessDenied = errors.New("access denied")

// ErrInvalidTransition indicates an illegal proposal state change was
// attempted. This is a programming error, not a user error.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrBudgetExceeded indicates a trust tier's per-turn invocation cap was hit.
var ErrBudgetExceeded = errors.New("recursion budget exceeded")

// ErrSessionClosed indicates the target session is no longer active.
var ErrSessionClosed = errors.New("session closed")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrInvalidInput indicates a malformed or incomplete request.
var ErrInvalidInput = errors.New("invalid input")
