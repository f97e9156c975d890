// Package proposal defines the persisted state machine for tool requests
// that need user confirmation before they execute.
package proposal

import (
	"encoding/json"
	"time"

	"github.com/steward-labs/steward/internal/domain/tool"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	// StatusPending awaits confirmation or expiry.
	StatusPending Status = "pending"
	// StatusConfirmed is cleared to execute (user said yes, or the
	// soft-confirm window elapsed without objection).
	StatusConfirmed Status = "confirmed"
	// StatusExecuted means the tool ran successfully. Terminal.
	StatusExecuted Status = "executed"
	// StatusFailed means the user rejected it or execution failed. Terminal.
	StatusFailed Status = "failed"
	// StatusExpired means the window lapsed unconfirmed. Terminal.
	StatusExpired Status = "expired"
)

// Terminal reports whether s is an archival end state.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusExpired
}

// allowed is the single source of truth for legal transitions. Anything not
// listed here is a bug in the caller.
var allowed = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusFailed, StatusExpired},
	StatusConfirmed: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether from → to is a legal state change.
func CanTransition(from, to Status) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Proposal is one persisted T2/T3 tool request. Terminal proposals are never
// deleted: they are the audit trail for every side-effecting action the
// system declined or performed.
type Proposal struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	SessionID string          `json:"session_id"`
	ToolName  string          `json:"tool_name"`
	Tier      tool.TrustTier  `json:"tier"`
	Payload   json.RawMessage `json:"payload"`

	// Preview is the human-readable description shown to the user when
	// asking for (or announcing) the action.
	Preview string `json:"preview"`

	Status        Status     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	WindowExpires time.Time  `json:"confirm_window_expires_at"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
}

// WindowElapsed reports whether the soft-confirm window has passed at now.
func (p *Proposal) WindowElapsed(now time.Time) bool {
	return !p.WindowExpires.IsZero() && !now.Before(p.WindowExpires)
}
