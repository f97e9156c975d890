package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/steward-labs/steward/internal/port/audit"
)

// Audit stream subjects. One subject per lifecycle transition keeps consumers
// able to filter without parsing payloads.
const (
	SubjectProposalCreated   = "proposals.created"
	SubjectProposalConfirmed = "proposals.confirmed"
	SubjectProposalExecuted  = "proposals.executed"
	SubjectProposalFailed    = "proposals.failed"
	SubjectProposalExpired   = "proposals.expired"
	SubjectSessionOpened     = "sessions.opened"
	SubjectSessionClosed     = "sessions.closed"
)

// AuditEvent is the durable record appended for every proposal transition and
// session open/close.
type AuditEvent struct {
	TenantID   string    `json:"tenant_id"`
	SessionID  string    `json:"session_id"`
	ProposalID string    `json:"proposal_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// publishAudit appends an event to the audit stream. Audit failures are
// logged, never fatal: losing one audit record must not abort the user's
// action.
func publishAudit(ctx context.Context, pub audit.Publisher, subject string, ev AuditEvent) {
	if pub == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal audit event", "subject", subject, "error", err)
		return
	}
	if err := pub.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish audit event", "subject", subject, "error", err)
	}
}
