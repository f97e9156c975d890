package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/port/database"
)

var _ database.Store = (*mockStore)(nil)

// mockStore is an in-memory database.Store with the same transition and
// ownership semantics as the postgres adapter.
type mockStore struct {
	mu        sync.Mutex
	proposals map[string]*proposal.Proposal
	sessions  map[string]*session.Session
	seq       int
	now       func() time.Time
}

func newMockStore(now func() time.Time) *mockStore {
	return &mockStore{
		proposals: make(map[string]*proposal.Proposal),
		sessions:  make(map[string]*session.Session),
		now:       now,
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func copyProposal(p *proposal.Proposal) *proposal.Proposal {
	cp := *p
	if p.ExecutedAt != nil {
		at := *p.ExecutedAt
		cp.ExecutedAt = &at
	}
	return &cp
}

func (m *mockStore) CreateProposal(_ context.Context, p *proposal.Proposal) (*proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyProposal(p)
	cp.ID = m.nextID("p")
	cp.Status = proposal.StatusPending
	cp.CreatedAt = m.now()
	m.proposals[cp.ID] = cp
	return copyProposal(cp), nil
}

func (m *mockStore) GetProposal(_ context.Context, id string) (*proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("get proposal %s: %w", id, domain.ErrNotFound)
	}
	return copyProposal(p), nil
}

func (m *mockStore) ConfirmProposal(_ context.Context, id, sessionID string) (*proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("confirm proposal %s: %w", id, domain.ErrNotFound)
	}
	if p.SessionID != sessionID {
		return nil, fmt.Errorf("confirm proposal %s: %w", id, domain.ErrAccessDenied)
	}
	if p.Status != proposal.StatusPending {
		return nil, fmt.Errorf("confirm proposal %s: status %s: %w", id, p.Status, domain.ErrInvalidTransition)
	}
	p.Status = proposal.StatusConfirmed
	return copyProposal(p), nil
}

func (m *mockStore) MarkProposalExecuted(_ context.Context, id string, at time.Time) (*proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("mark proposal %s executed: %w", id, domain.ErrNotFound)
	}
	if p.Status == proposal.StatusExecuted {
		return copyProposal(p), nil
	}
	if p.Status != proposal.StatusConfirmed {
		return nil, fmt.Errorf("mark proposal %s executed: status %s: %w", id, p.Status, domain.ErrInvalidTransition)
	}
	p.Status = proposal.StatusExecuted
	if p.ExecutedAt == nil {
		p.ExecutedAt = &at
	}
	return copyProposal(p), nil
}

func (m *mockStore) MarkProposalFailed(_ context.Context, id, reason string) (*proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("mark proposal %s failed: %w", id, domain.ErrNotFound)
	}
	if !proposal.CanTransition(p.Status, proposal.StatusFailed) {
		return nil, fmt.Errorf("mark proposal %s failed: status %s: %w", id, p.Status, domain.ErrInvalidTransition)
	}
	p.Status = proposal.StatusFailed
	p.FailureReason = reason
	return copyProposal(p), nil
}

func (m *mockStore) RecordProposalExecution(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok || p.Status != proposal.StatusPending {
		return fmt.Errorf("record proposal %s execution: %w", id, domain.ErrNotFound)
	}
	p.ExecutedAt = &at
	return nil
}

func (m *mockStore) ExpireProposals(_ context.Context, tenantID, sessionID string, now time.Time) ([]proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []proposal.Proposal
	for _, p := range m.proposals {
		if p.TenantID == tenantID && p.SessionID == sessionID &&
			p.Status == proposal.StatusPending && !now.Before(p.WindowExpires) {
			p.Status = proposal.StatusExpired
			out = append(out, *copyProposal(p))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *mockStore) ListPendingProposals(_ context.Context, tenantID, sessionID string, tier tool.TrustTier) ([]proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []proposal.Proposal
	for _, p := range m.proposals {
		if p.TenantID == tenantID && p.SessionID == sessionID && p.Status == proposal.StatusPending &&
			(tier == "" || p.Tier == tier) {
			out = append(out, *copyProposal(p))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *mockStore) ListDuePendingProposals(_ context.Context, tenantID, sessionID string, now time.Time) ([]proposal.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []proposal.Proposal
	for _, p := range m.proposals {
		if p.TenantID == tenantID && p.SessionID == sessionID && p.Status == proposal.StatusPending &&
			p.Tier == tool.TierSoftConfirm && !now.Before(p.WindowExpires) {
			out = append(out, *copyProposal(p))
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(ps []proposal.Proposal) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

func (m *mockStore) EnsureActiveSession(_ context.Context, tenantID string, st session.Type) (*session.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.TenantID == tenantID && s.Type == st && s.Active {
			cp := *s
			return &cp, false, nil
		}
	}
	now := m.now()
	s := &session.Session{
		ID:             m.nextID("s"),
		TenantID:       tenantID,
		Type:           st,
		Active:         true,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[s.ID] = s
	cp := *s
	return &cp, true, nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) UpdateSessionActivity(_ context.Context, id string, usage session.BudgetUsage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.Active {
		return fmt.Errorf("update session %s activity: %w", id, domain.ErrNotFound)
	}
	s.TurnUsage = usage
	s.LastActivityAt = at
	return nil
}

func (m *mockStore) CloseSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.Active {
		return fmt.Errorf("close session %s: %w", id, domain.ErrNotFound)
	}
	s.Active = false
	return nil
}

func (m *mockStore) CloseIdleSessions(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, s := range m.sessions {
		if s.Active && s.LastActivityAt.Before(cutoff) {
			s.Active = false
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
