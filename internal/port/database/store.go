// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
)

// Store is the port interface for proposal and session persistence. All
// mutations run in single-writer transactions with row-level locking in the
// implementation.
type Store interface {
	// Proposals
	CreateProposal(ctx context.Context, p *proposal.Proposal) (*proposal.Proposal, error)
	GetProposal(ctx context.Context, id string) (*proposal.Proposal, error)
	// ConfirmProposal transitions PENDING→CONFIRMED, but only for the
	// session that created the proposal. Ownership mismatch returns
	// domain.ErrAccessDenied; any other current status returns
	// domain.ErrInvalidTransition.
	ConfirmProposal(ctx context.Context, id, sessionID string) (*proposal.Proposal, error)
	// MarkProposalExecuted transitions CONFIRMED→EXECUTED. Idempotent:
	// re-invoking on an EXECUTED proposal is a no-op, supporting crash
	// resumption between confirm and execute.
	MarkProposalExecuted(ctx context.Context, id string, at time.Time) (*proposal.Proposal, error)
	// MarkProposalFailed transitions PENDING or CONFIRMED → FAILED with a
	// reason.
	MarkProposalFailed(ctx context.Context, id, reason string) (*proposal.Proposal, error)
	// RecordProposalExecution stamps the execution time of an optimistic
	// run on a still-PENDING proposal without changing its status.
	RecordProposalExecution(ctx context.Context, id string, at time.Time) error
	// ExpireProposals moves all PENDING proposals of the session whose
	// window deadline is at or before now to EXPIRED, returning them.
	ExpireProposals(ctx context.Context, tenantID, sessionID string, now time.Time) ([]proposal.Proposal, error)
	// ListPendingProposals filters strictly by session; tier "" means all
	// tiers.
	ListPendingProposals(ctx context.Context, tenantID, sessionID string, tier tool.TrustTier) ([]proposal.Proposal, error)
	// ListDuePendingProposals returns PENDING T2 proposals of the session
	// whose windows have elapsed (candidates for auto-confirm).
	ListDuePendingProposals(ctx context.Context, tenantID, sessionID string, now time.Time) ([]proposal.Proposal, error)

	// Sessions
	// EnsureActiveSession returns the active session for (tenant, type),
	// creating one if none exists. The second return reports whether the
	// session was created by this call. The partial unique index on active
	// sessions makes concurrent creation race-safe.
	EnsureActiveSession(ctx context.Context, tenantID string, st session.Type) (*session.Session, bool, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	UpdateSessionActivity(ctx context.Context, id string, usage session.BudgetUsage, at time.Time) error
	CloseSession(ctx context.Context, id string) error
	// CloseIdleSessions deactivates sessions with no activity since the
	// cutoff and returns their IDs.
	CloseIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)
}
