// Package turn defines the request/response shapes of one conversational turn.
package turn

import (
	"encoding/json"

	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
)

// Request is one inbound user message.
type Request struct {
	TenantID    string       `json:"tenant_id"`
	SessionID   string       `json:"session_id,omitempty"`
	SessionType session.Type `json:"session_type"`
	Message     string       `json:"message"`
}

// Outcome records what happened to one requested tool call.
type Outcome struct {
	ToolName string          `json:"tool_name"`
	Tier     tool.TrustTier  `json:"tier"`
	Status   string          `json:"status"` // executed | proposed | rejected | failed | skipped
	Detail   string          `json:"detail,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// PendingConfirmation describes a proposal the user still has to act on.
type PendingConfirmation struct {
	ProposalID string         `json:"proposal_id"`
	ToolName   string         `json:"tool_name"`
	Tier       tool.TrustTier `json:"tier"`
	Preview    string         `json:"preview"`
	ExpiresAt  string         `json:"expires_at,omitempty"`
}

// BudgetStatus reports remaining per-tier headroom after the turn.
type BudgetStatus struct {
	Used      session.BudgetUsage `json:"used"`
	Remaining session.BudgetUsage `json:"remaining"`
	Exhausted []tool.TrustTier    `json:"exhausted,omitempty"`
}

// Result is the caller-facing outcome of HandleTurn.
type Result struct {
	SessionID            string                `json:"session_id"`
	Reply                string                `json:"reply"`
	Outcomes             []Outcome             `json:"outcomes,omitempty"`
	PendingConfirmations []PendingConfirmation `json:"pending_confirmations,omitempty"`
	Budget               BudgetStatus          `json:"budget_status"`
	Degraded             bool                  `json:"degraded,omitempty"`
}
