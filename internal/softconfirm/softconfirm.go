// Package softconfirm implements the bounded-risk confirmation window for
// soft-confirmed (T2) actions: silence within the window implies consent,
// while a natural-language objection cancels the pending action.
package softconfirm

import (
	"time"

	"github.com/steward-labs/steward/internal/domain/session"
)

// Windows maps a session type to its soft-confirm window length. User "think
// time" varies by task: a chat assistant gets seconds, a multi-step setup
// flow gets minutes.
type Windows struct {
	Chat  time.Duration
	Setup time.Duration
	Admin time.Duration
}

// DefaultWindows returns the per-surface defaults.
func DefaultWindows() Windows {
	return Windows{
		Chat:  30 * time.Second,
		Setup: 5 * time.Minute,
		Admin: 2 * time.Minute,
	}
}

// For returns the window length for the given session type.
func (w Windows) For(t session.Type) time.Duration {
	switch t {
	case session.TypeSetup:
		return w.Setup
	case session.TypeAdmin:
		return w.Admin
	default:
		return w.Chat
	}
}

// Deadline computes the confirm-window expiry for a proposal created at now.
func (w Windows) Deadline(t session.Type, now time.Time) time.Time {
	return now.Add(w.For(t))
}
