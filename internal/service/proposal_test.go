package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/softconfirm"
)

// capturingPublisher records audit events for assertions.
type capturingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturingPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturingPublisher) seen(subject string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

func testWindows() softconfirm.Windows {
	return softconfirm.Windows{Chat: 30 * time.Second, Setup: 5 * time.Minute, Admin: 2 * time.Minute}
}

func testSession(id, tenant string, st session.Type) *session.Session {
	return &session.Session{ID: id, TenantID: tenant, Type: st, Active: true}
}

func newProposalFixture(t *testing.T) (*ProposalService, *mockStore, *capturingPublisher, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newMockStore(clock.Now)
	pub := &capturingPublisher{}
	svc := NewProposalService(store, pub, nil, testWindows())
	svc.now = clock.Now
	return svc, store, pub, clock
}

func seedSession(store *mockStore, sess *session.Session) {
	store.mu.Lock()
	defer store.mu.Unlock()
	cp := *sess
	store.sessions[sess.ID] = &cp
}

func TestCreateSetsWindowBySurface(t *testing.T) {
	svc, _, pub, clock := newProposalFixture(t)
	tl := tool.Tool{Name: "update_dns", Tier: tool.TierSoftConfirm}
	call := tool.Call{ID: "c1", ToolName: "update_dns", Params: json.RawMessage(`{"zone":"a"}`)}

	cases := []struct {
		st   session.Type
		want time.Duration
	}{
		{session.TypeChat, 30 * time.Second},
		{session.TypeSetup, 5 * time.Minute},
		{session.TypeAdmin, 2 * time.Minute},
	}
	for _, tc := range cases {
		sess := testSession("s-"+string(tc.st), "acme", tc.st)
		p, err := svc.Create(context.Background(), sess, tl, call, "update dns")
		if err != nil {
			t.Fatalf("create for %s: %v", tc.st, err)
		}
		want := clock.Now().Add(tc.want)
		if !p.WindowExpires.Equal(want) {
			t.Fatalf("%s window expires %v, want %v", tc.st, p.WindowExpires, want)
		}
		if p.Tier != tool.TierSoftConfirm {
			t.Fatalf("tier %s, want T2", p.Tier)
		}
		if p.Status != proposal.StatusPending {
			t.Fatalf("status %s, want pending", p.Status)
		}
	}
	if !pub.seen(SubjectProposalCreated) {
		t.Fatal("creation should publish an audit event")
	}
}

func TestRejectRequiresOwnership(t *testing.T) {
	svc, store, _, _ := newProposalFixture(t)
	sess := testSession("s-owner", "acme", session.TypeChat)
	p, err := svc.Create(context.Background(), sess, tool.Tool{Name: "t", Tier: tool.TierHardConfirm},
		tool.Call{ToolName: "t"}, "t")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Reject(context.Background(), p.ID, "s-intruder", "nope"); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	got, _ := store.GetProposal(context.Background(), p.ID)
	if got.Status != proposal.StatusPending {
		t.Fatalf("foreign reject must not change state, status %s", got.Status)
	}

	rejected, err := svc.Reject(context.Background(), p.ID, "s-owner", "changed my mind")
	if err != nil {
		t.Fatalf("owner reject: %v", err)
	}
	if rejected.Status != proposal.StatusFailed || rejected.FailureReason != "changed my mind" {
		t.Fatalf("unexpected rejected proposal: %+v", rejected)
	}
}

func TestMarkExecutedIsIdempotent(t *testing.T) {
	svc, _, _, clock := newProposalFixture(t)
	sess := testSession("s-1", "acme", session.TypeChat)
	p, err := svc.Create(context.Background(), sess, tool.Tool{Name: "t", Tier: tool.TierSoftConfirm},
		tool.Call{ToolName: "t"}, "t")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), p.ID, "s-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	first, err := svc.MarkExecuted(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := svc.MarkExecuted(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("second mark executed: %v", err)
	}
	if !second.ExecutedAt.Equal(*first.ExecutedAt) {
		t.Fatalf("idempotent re-mark must keep the original timestamp: %v vs %v", second.ExecutedAt, first.ExecutedAt)
	}
	if second.Status != proposal.StatusExecuted {
		t.Fatalf("status %s, want executed", second.Status)
	}
}

func TestExpireStaleLeavesFreshProposals(t *testing.T) {
	svc, store, pub, clock := newProposalFixture(t)
	sess := testSession("s-1", "acme", session.TypeChat)

	old, err := svc.Create(context.Background(), sess, tool.Tool{Name: "a", Tier: tool.TierHardConfirm},
		tool.Call{ToolName: "a"}, "a")
	if err != nil {
		t.Fatalf("create old: %v", err)
	}
	clock.Advance(25 * time.Second)
	fresh, err := svc.Create(context.Background(), sess, tool.Tool{Name: "b", Tier: tool.TierHardConfirm},
		tool.Call{ToolName: "b"}, "b")
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	clock.Advance(6 * time.Second) // old is now past its window, fresh is not
	expired, err := svc.ExpireStale(context.Background(), "acme", "s-1")
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("unexpected expiry set: %+v", expired)
	}
	gotFresh, _ := store.GetProposal(context.Background(), fresh.ID)
	if gotFresh.Status != proposal.StatusPending {
		t.Fatalf("fresh proposal swept early, status %s", gotFresh.Status)
	}
	if !pub.seen(SubjectProposalExpired) {
		t.Fatal("expiry should publish an audit event")
	}
}

func TestTerminalProposalsAreNeverResurrected(t *testing.T) {
	svc, _, _, clock := newProposalFixture(t)
	sess := testSession("s-1", "acme", session.TypeChat)
	p, err := svc.Create(context.Background(), sess, tool.Tool{Name: "t", Tier: tool.TierHardConfirm},
		tool.Call{ToolName: "t"}, "t")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := svc.ExpireStale(context.Background(), "acme", "s-1"); err != nil {
		t.Fatalf("expire: %v", err)
	}

	if _, err := svc.Confirm(context.Background(), p.ID, "s-1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("confirming an expired proposal should fail with ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.Fail(context.Background(), p.ID, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("failing an expired proposal should fail with ErrInvalidTransition, got %v", err)
	}
}

func TestFailPendingFiltersByTier(t *testing.T) {
	svc, store, _, _ := newProposalFixture(t)
	sess := testSession("s-1", "acme", session.TypeChat)

	soft, _ := svc.Create(context.Background(), sess, tool.Tool{Name: "a", Tier: tool.TierSoftConfirm},
		tool.Call{ToolName: "a"}, "a")
	hard, _ := svc.Create(context.Background(), sess, tool.Tool{Name: "b", Tier: tool.TierHardConfirm},
		tool.Call{ToolName: "b"}, "b")

	failed, err := svc.FailPending(context.Background(), "acme", "s-1", tool.TierSoftConfirm, "user rejected")
	if err != nil {
		t.Fatalf("fail pending: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != soft.ID {
		t.Fatalf("unexpected failed set: %+v", failed)
	}
	gotHard, _ := store.GetProposal(context.Background(), hard.ID)
	if gotHard.Status != proposal.StatusPending {
		t.Fatalf("tier filter leaked, hard-confirm status %s", gotHard.Status)
	}
}
