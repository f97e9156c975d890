// Package service implements the business logic: turn orchestration, the
// proposal lifecycle, and session management. Services depend only on ports
// and domain types.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/port/audit"
	"github.com/steward-labs/steward/internal/port/broadcast"
	"github.com/steward-labs/steward/internal/port/database"
	"github.com/steward-labs/steward/internal/softconfirm"
)

// ProposalService owns the proposal lifecycle. Every transition goes through
// here so the audit stream and connected clients always see the same story as
// the database.
type ProposalService struct {
	store       database.Store
	publisher   audit.Publisher
	broadcaster broadcast.Broadcaster
	windows     softconfirm.Windows
	now         func() time.Time // for testing
}

// NewProposalService wires the proposal lifecycle service. publisher and
// broadcaster may be nil (events are then skipped).
func NewProposalService(store database.Store, publisher audit.Publisher, broadcaster broadcast.Broadcaster, windows softconfirm.Windows) *ProposalService {
	return &ProposalService{
		store:       store,
		publisher:   publisher,
		broadcaster: broadcaster,
		windows:     windows,
		now:         time.Now,
	}
}

// Create persists a new PENDING proposal for the given tool call. The trust
// tier is copied from the tool at creation time, so a later re-tiering of the
// tool never reclassifies an in-flight proposal.
func (s *ProposalService) Create(ctx context.Context, sess *session.Session, t tool.Tool, call tool.Call, preview string) (*proposal.Proposal, error) {
	now := s.now()
	p := &proposal.Proposal{
		TenantID:      sess.TenantID,
		SessionID:     sess.ID,
		ToolName:      t.Name,
		Tier:          t.Tier,
		Payload:       call.Params,
		Preview:       preview,
		Status:        proposal.StatusPending,
		WindowExpires: s.windows.Deadline(sess.Type, now),
	}

	created, err := s.store.CreateProposal(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create proposal for %s: %w", t.Name, err)
	}

	s.emit(ctx, SubjectProposalCreated, broadcast.EventProposalPending, created, "")
	return created, nil
}

// Confirm transitions a PENDING proposal to CONFIRMED on behalf of sessionID.
// The store rejects the call with domain.ErrAccessDenied when sessionID does
// not own the proposal.
func (s *ProposalService) Confirm(ctx context.Context, proposalID, sessionID string) (*proposal.Proposal, error) {
	p, err := s.store.ConfirmProposal(ctx, proposalID, sessionID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, SubjectProposalConfirmed, broadcast.EventProposalConfirmed, p, "")
	return p, nil
}

// Reject fails a proposal on behalf of sessionID. Ownership is checked
// before the transition; a foreign session gets domain.ErrAccessDenied with
// no hint of who owns the proposal.
func (s *ProposalService) Reject(ctx context.Context, proposalID, sessionID, reason string) (*proposal.Proposal, error) {
	p, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.SessionID != sessionID {
		return nil, fmt.Errorf("reject proposal %s: %w", proposalID, domain.ErrAccessDenied)
	}
	return s.Fail(ctx, proposalID, reason)
}

// Fail transitions a proposal to FAILED with a reason.
func (s *ProposalService) Fail(ctx context.Context, proposalID, reason string) (*proposal.Proposal, error) {
	p, err := s.store.MarkProposalFailed(ctx, proposalID, reason)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, SubjectProposalFailed, broadcast.EventProposalFailed, p, reason)
	return p, nil
}

// MarkExecuted records a successful execution. Idempotent via the store.
func (s *ProposalService) MarkExecuted(ctx context.Context, proposalID string) (*proposal.Proposal, error) {
	p, err := s.store.MarkProposalExecuted(ctx, proposalID, s.now())
	if err != nil {
		return nil, err
	}
	s.emit(ctx, SubjectProposalExecuted, broadcast.EventProposalExecuted, p, "")
	return p, nil
}

// RecordOptimisticRun stamps the execution time of an optimistic run on a
// still-PENDING proposal.
func (s *ProposalService) RecordOptimisticRun(ctx context.Context, proposalID string) error {
	return s.store.RecordProposalExecution(ctx, proposalID, s.now())
}

// ExpireStale sweeps the session's overdue PENDING proposals to EXPIRED and
// returns them. Run at the start of every turn; a periodic reaper covers
// sessions that never see another turn.
func (s *ProposalService) ExpireStale(ctx context.Context, tenantID, sessionID string) ([]proposal.Proposal, error) {
	expired, err := s.store.ExpireProposals(ctx, tenantID, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	for i := range expired {
		s.emit(ctx, SubjectProposalExpired, broadcast.EventProposalExpired, &expired[i], "confirmation window elapsed")
	}
	return expired, nil
}

// FailPending fails all of the session's PENDING proposals (optionally
// filtered by tier) with the given reason. Used when the user rejects or the
// session closes. Returns the proposals that were failed.
func (s *ProposalService) FailPending(ctx context.Context, tenantID, sessionID string, tier tool.TrustTier, reason string) ([]proposal.Proposal, error) {
	pending, err := s.store.ListPendingProposals(ctx, tenantID, sessionID, tier)
	if err != nil {
		return nil, err
	}

	var failed []proposal.Proposal
	for i := range pending {
		p, err := s.Fail(ctx, pending[i].ID, reason)
		if err != nil {
			// Lost a race with expiry or confirmation; skip it.
			slog.Warn("fail pending proposal", "proposal_id", pending[i].ID, "error", err)
			continue
		}
		failed = append(failed, *p)
	}
	return failed, nil
}

// ListPending returns the session's PENDING proposals, oldest first.
func (s *ProposalService) ListPending(ctx context.Context, tenantID, sessionID string, tier tool.TrustTier) ([]proposal.Proposal, error) {
	return s.store.ListPendingProposals(ctx, tenantID, sessionID, tier)
}

// DuePending returns soft-confirm proposals whose windows elapsed without an
// objection, i.e. the auto-confirm candidates.
func (s *ProposalService) DuePending(ctx context.Context, tenantID, sessionID string) ([]proposal.Proposal, error) {
	return s.store.ListDuePendingProposals(ctx, tenantID, sessionID, s.now())
}

// Get returns one proposal by ID.
func (s *ProposalService) Get(ctx context.Context, proposalID string) (*proposal.Proposal, error) {
	return s.store.GetProposal(ctx, proposalID)
}

// PromptConfirm pushes an approval card for a hard-confirm proposal to the
// tenant's connected clients.
func (s *ProposalService) PromptConfirm(ctx context.Context, p *proposal.Proposal) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastEventToTenant(ctx, p.TenantID, broadcast.EventConfirmPrompt, broadcast.ConfirmPromptEvent{
		ProposalID: p.ID,
		SessionID:  p.SessionID,
		ToolName:   p.ToolName,
		Preview:    p.Preview,
		ExpiresAt:  p.WindowExpires.Format(time.RFC3339),
	})
}

func (s *ProposalService) emit(ctx context.Context, subject, eventType string, p *proposal.Proposal, reason string) {
	publishAudit(ctx, s.publisher, subject, AuditEvent{
		TenantID:   p.TenantID,
		SessionID:  p.SessionID,
		ProposalID: p.ID,
		ToolName:   p.ToolName,
		Tier:       string(p.Tier),
		Status:     string(p.Status),
		Reason:     reason,
		At:         s.now(),
	})

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEventToTenant(ctx, p.TenantID, eventType, broadcast.ProposalEvent{
			ProposalID: p.ID,
			SessionID:  p.SessionID,
			ToolName:   p.ToolName,
			Tier:       string(p.Tier),
			Status:     string(p.Status),
			Preview:    p.Preview,
			Reason:     reason,
		})
	}
}
