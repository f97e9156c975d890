package broadcast

// Event types pushed to connected clients.
const (
	EventProposalPending   = "proposal.pending"
	EventProposalConfirmed = "proposal.confirmed"
	EventProposalExecuted  = "proposal.executed"
	EventProposalFailed    = "proposal.failed"
	EventProposalExpired   = "proposal.expired"
	EventConfirmPrompt     = "proposal.confirm_prompt"
	EventSessionClosed     = "session.closed"
)

// ProposalEvent is broadcast whenever a proposal changes state.
type ProposalEvent struct {
	ProposalID string `json:"proposal_id"`
	SessionID  string `json:"session_id"`
	ToolName   string `json:"tool_name"`
	Tier       string `json:"tier"`
	Status     string `json:"status"`
	Preview    string `json:"preview,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ConfirmPromptEvent asks the UI to render an approval card for a
// hard-confirm action.
type ConfirmPromptEvent struct {
	ProposalID string `json:"proposal_id"`
	SessionID  string `json:"session_id"`
	ToolName   string `json:"tool_name"`
	Preview    string `json:"preview"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// SessionClosedEvent is broadcast when a session ends, explicitly or by TTL.
type SessionClosedEvent struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
