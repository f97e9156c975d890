package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steward-labs/steward/internal/budget"
	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/domain/turn"
	"github.com/steward-labs/steward/internal/port/reasoner"
	"github.com/steward-labs/steward/internal/resilience"
	"github.com/steward-labs/steward/internal/softconfirm"
	"github.com/steward-labs/steward/internal/telemetry"
)

// historyLimit bounds the in-memory conversation window handed to the
// reasoner per session.
const historyLimit = 40

// Orchestrator runs one conversational turn end to end: settle due
// soft-confirms, sweep expired proposals, interpret confirmation intent,
// consult the reasoner, and dispatch the requested tool calls through the
// trust-tier controls.
type Orchestrator struct {
	registry  *tool.Registry
	reason    reasoner.Reasoner
	sessions  *SessionService
	proposals *ProposalService
	breakers  *resilience.Breakers

	caps        budget.Caps
	execTimeout time.Duration
	retry       resilience.RetryPolicy
	metrics     *telemetry.Metrics

	// turnLocks serializes turns per session; the budget tracker and
	// intent handling assume no interleaving within one session.
	turnLocks sync.Map // session ID -> *sync.Mutex

	histMu  sync.Mutex
	history map[string][]reasoner.HistoryEntry

	now func() time.Time // for testing
}

// OrchestratorConfig collects the orchestrator's collaborators and tunables.
type OrchestratorConfig struct {
	Registry  *tool.Registry
	Reasoner  reasoner.Reasoner
	Sessions  *SessionService
	Proposals *ProposalService
	Breakers  *resilience.Breakers

	Caps        budget.Caps
	ExecTimeout time.Duration
	Retry       resilience.RetryPolicy
	Metrics     *telemetry.Metrics
}

// NewOrchestrator wires the turn orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		registry:    cfg.Registry,
		reason:      cfg.Reasoner,
		sessions:    cfg.Sessions,
		proposals:   cfg.Proposals,
		breakers:    cfg.Breakers,
		caps:        cfg.Caps,
		execTimeout: cfg.ExecTimeout,
		retry:       cfg.Retry,
		metrics:     cfg.Metrics,
		history:     make(map[string][]reasoner.HistoryEntry),
		now:         time.Now,
	}
	if o.execTimeout <= 0 {
		o.execTimeout = 5 * time.Second
	}
	if o.retry.MaxTries == 0 {
		o.retry = resilience.DefaultRetryPolicy()
	}
	return o
}

// HandleTurn processes one inbound user message and returns what happened:
// the assistant reply, per-tool outcomes, pending confirmations, and the
// remaining per-tier budget.
func (o *Orchestrator) HandleTurn(ctx context.Context, req turn.Request) (*turn.Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("handle turn: empty message: %w", domain.ErrInvalidInput)
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("handle turn: missing tenant: %w", domain.ErrInvalidInput)
	}
	st := req.SessionType
	if st == "" {
		st = session.TypeChat
	}

	sess, err := o.resolveSession(ctx, req, st)
	if err != nil {
		return nil, err
	}

	mu := o.turnLock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := telemetry.StartTurnSpan(ctx, sess.TenantID, sess.ID)
	defer span.End()
	start := o.now()

	res := &turn.Result{SessionID: sess.ID}
	tracker := budget.NewTracker(o.caps)
	breaker := o.breakers.For(sess.ID)
	tc := tool.Context{
		TenantID:    sess.TenantID,
		SessionID:   sess.ID,
		SessionType: string(sess.Type),
		TurnID:      uuid.NewString(),
	}

	// Soft-confirm windows that elapsed without objection settle first:
	// the user's silence through this message already implied consent.
	o.settleDue(ctx, sess, breaker, tc, res)

	// Then everything overdue that did not settle (hard-confirms, and
	// soft-confirms blocked by an open breaker) lapses.
	o.sweepExpired(ctx, sess, res)

	if done := o.handleIntent(ctx, sess, req.Message, breaker, tc, res); done {
		o.finish(ctx, sess, tracker, res, req.Message, start)
		return res, nil
	}

	resp, err := o.callReasoner(ctx, sess, req.Message)
	if err != nil {
		slog.Error("reasoner call", "session_id", sess.ID, "error", err)
		res.Degraded = true
		res.Reply = "I couldn't work out what to do just now. Nothing was changed; please try again."
		o.finish(ctx, sess, tracker, res, req.Message, start)
		return res, nil
	}
	res.Reply = resp.ReplyText

	for _, call := range resp.ToolCalls {
		o.dispatch(ctx, sess, call, tracker, breaker, tc, res)
	}

	o.finish(ctx, sess, tracker, res, req.Message, start)
	return res, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, req turn.Request, st session.Type) (*session.Session, error) {
	if req.SessionID == "" {
		return o.sessions.EnsureActive(ctx, req.TenantID, st)
	}

	sess, err := o.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != req.TenantID {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, domain.ErrAccessDenied)
	}
	if !sess.Active {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, domain.ErrSessionClosed)
	}
	return sess, nil
}

// settleDue auto-confirms and executes soft-confirm proposals whose windows
// elapsed with no objection. With the breaker open they stay pending and
// lapse in the expiry sweep instead of executing into a failing backend.
func (o *Orchestrator) settleDue(ctx context.Context, sess *session.Session, breaker *resilience.Breaker, tc tool.Context, res *turn.Result) {
	due, err := o.proposals.DuePending(ctx, sess.TenantID, sess.ID)
	if err != nil {
		slog.Warn("list due proposals", "session_id", sess.ID, "error", err)
		return
	}

	for i := range due {
		p := &due[i]
		if !breaker.Allow() {
			o.countBreakerTrip(ctx)
			res.Degraded = true
			continue
		}
		confirmed, err := o.proposals.Confirm(ctx, p.ID, p.SessionID)
		if err != nil {
			slog.Warn("auto-confirm proposal", "proposal_id", p.ID, "error", err)
			continue
		}
		res.Outcomes = append(res.Outcomes, o.execConfirmed(ctx, confirmed, breaker, tc, "auto-confirmed after quiet window"))
	}
}

func (o *Orchestrator) sweepExpired(ctx context.Context, sess *session.Session, res *turn.Result) {
	expired, err := o.proposals.ExpireStale(ctx, sess.TenantID, sess.ID)
	if err != nil {
		slog.Warn("expire stale proposals", "session_id", sess.ID, "error", err)
		return
	}
	for i := range expired {
		o.countProposal(ctx, proposal.StatusExpired)
		res.Outcomes = append(res.Outcomes, turn.Outcome{
			ToolName: expired[i].ToolName,
			Tier:     expired[i].Tier,
			Status:   "failed",
			Detail:   "confirmation window expired",
		})
	}
}

// handleIntent resolves the message against pending proposals before the
// reasoner sees it. A rejection cancels everything pending; an affirmation
// releases a waiting hard-confirm. Whole-message intent that acted on a
// proposal ends the turn without a reasoner call.
func (o *Orchestrator) handleIntent(ctx context.Context, sess *session.Session, message string, breaker *resilience.Breaker, tc tool.Context, res *turn.Result) bool {
	if softconfirm.IsRejection(message) {
		failed, err := o.proposals.FailPending(ctx, sess.TenantID, sess.ID, "", "user rejected")
		if err != nil {
			slog.Warn("fail pending on rejection", "session_id", sess.ID, "error", err)
			return false
		}
		for i := range failed {
			o.countProposal(ctx, proposal.StatusFailed)
			res.Outcomes = append(res.Outcomes, turn.Outcome{
				ToolName: failed[i].ToolName,
				Tier:     failed[i].Tier,
				Status:   "rejected",
				Detail:   "cancelled at your request",
			})
		}
		if len(failed) > 0 {
			res.Reply = "Understood, I won't go ahead with that."
			return true
		}
		return false
	}

	if softconfirm.IsAffirmation(message) {
		pending, err := o.proposals.ListPending(ctx, sess.TenantID, sess.ID, tool.TierHardConfirm)
		if err != nil || len(pending) == 0 {
			return false
		}
		if !breaker.Allow() {
			o.countBreakerTrip(ctx)
			res.Degraded = true
			res.Reply = "That action is temporarily paused after repeated failures. Please try again shortly."
			return true
		}

		var lines []string
		for i := range pending {
			confirmed, err := o.proposals.Confirm(ctx, pending[i].ID, sess.ID)
			if err != nil {
				slog.Warn("confirm on affirmation", "proposal_id", pending[i].ID, "error", err)
				continue
			}
			out := o.execConfirmed(ctx, confirmed, breaker, tc, "confirmed by user")
			res.Outcomes = append(res.Outcomes, out)
			if out.Status == "executed" {
				lines = append(lines, fmt.Sprintf("Done: %s.", confirmed.Preview))
			} else {
				lines = append(lines, fmt.Sprintf("%s failed: %s.", confirmed.Preview, out.Detail))
			}
		}
		res.Reply = strings.Join(lines, " ")
		return true
	}

	return false
}

// dispatch routes one reasoner-requested tool call through the trust-tier
// controls: budget, breaker, then tier-specific execution or proposal.
func (o *Orchestrator) dispatch(ctx context.Context, sess *session.Session, call tool.Call, tracker *budget.Tracker, breaker *resilience.Breaker, tc tool.Context, res *turn.Result) {
	t, err := o.registry.Lookup(call.ToolName)
	if err != nil {
		res.Outcomes = append(res.Outcomes, turn.Outcome{
			ToolName: call.ToolName,
			Status:   "failed",
			Detail:   "unknown tool",
		})
		return
	}

	if err := tracker.Consume(t.Tier); err != nil {
		o.countBudgetRejection(ctx, t.Tier)
		res.Outcomes = append(res.Outcomes, turn.Outcome{
			ToolName: t.Name,
			Tier:     t.Tier,
			Status:   "skipped",
			Detail:   fmt.Sprintf("per-turn limit for %s actions reached", t.Tier),
		})
		return
	}

	if !breaker.Allow() {
		o.countBreakerTrip(ctx)
		res.Degraded = true
		res.Outcomes = append(res.Outcomes, turn.Outcome{
			ToolName: t.Name,
			Tier:     t.Tier,
			Status:   "skipped",
			Detail:   "temporarily paused after repeated failures",
		})
		return
	}

	ctx, span := telemetry.StartToolCallSpan(ctx, t.Name, string(t.Tier))
	defer span.End()

	switch t.Tier {
	case tool.TierAutonomous:
		res.Outcomes = append(res.Outcomes, o.runDirect(ctx, t, call, breaker, tc))
	case tool.TierSoftConfirm:
		o.propose(ctx, sess, t, call, breaker, tc, res)
	case tool.TierHardConfirm:
		p, err := o.proposals.Create(ctx, sess, t, call, previewFor(t, call))
		if err != nil {
			res.Outcomes = append(res.Outcomes, failedOutcome(t, "could not record the request"))
			return
		}
		o.proposals.PromptConfirm(ctx, p)
		res.Outcomes = append(res.Outcomes, turn.Outcome{
			ToolName: t.Name,
			Tier:     t.Tier,
			Status:   "proposed",
			Detail:   "waiting for your explicit confirmation",
		})
		res.PendingConfirmations = append(res.PendingConfirmations, pendingFrom(p))
	}
	o.countToolCall(ctx, t.Tier)
}

// runDirect executes an autonomous (T1) tool immediately.
func (o *Orchestrator) runDirect(ctx context.Context, t tool.Tool, call tool.Call, breaker *resilience.Breaker, tc tool.Context) turn.Outcome {
	result, err := o.runTool(ctx, t, tc, call.Params)
	if err != nil {
		breaker.RecordFailure()
		return failedOutcome(t, userFacingError(err))
	}
	if !result.Success {
		breaker.RecordFailure()
		return failedOutcome(t, result.Error)
	}
	breaker.RecordSuccess()
	return turn.Outcome{
		ToolName: t.Name,
		Tier:     t.Tier,
		Status:   "executed",
		Data:     result.Data,
	}
}

// propose creates a soft-confirm (T2) proposal. Reversible tools flagged for
// optimistic execution run immediately but stay cancellable until the window
// closes; everything else waits.
func (o *Orchestrator) propose(ctx context.Context, sess *session.Session, t tool.Tool, call tool.Call, breaker *resilience.Breaker, tc tool.Context, res *turn.Result) {
	p, err := o.proposals.Create(ctx, sess, t, call, previewFor(t, call))
	if err != nil {
		res.Outcomes = append(res.Outcomes, failedOutcome(t, "could not record the request"))
		return
	}

	if !t.ExecuteOptimistically {
		res.Outcomes = append(res.Outcomes, turn.Outcome{
			ToolName: t.Name,
			Tier:     t.Tier,
			Status:   "proposed",
			Detail:   fmt.Sprintf("will run at %s unless you object", p.WindowExpires.Format(time.Kitchen)),
		})
		res.PendingConfirmations = append(res.PendingConfirmations, pendingFrom(p))
		return
	}

	result, err := o.runTool(ctx, t, tc, call.Params)
	if err != nil || !result.Success {
		breaker.RecordFailure()
		detail := userFacingError(err)
		if err == nil {
			detail = result.Error
		}
		if _, ferr := o.proposals.Fail(ctx, p.ID, detail); ferr != nil {
			slog.Warn("fail optimistic proposal", "proposal_id", p.ID, "error", ferr)
		}
		o.countProposal(ctx, proposal.StatusFailed)
		res.Outcomes = append(res.Outcomes, failedOutcome(t, detail))
		return
	}

	breaker.RecordSuccess()
	if err := o.proposals.RecordOptimisticRun(ctx, p.ID); err != nil {
		slog.Warn("record optimistic run", "proposal_id", p.ID, "error", err)
	}
	res.Outcomes = append(res.Outcomes, turn.Outcome{
		ToolName: t.Name,
		Tier:     t.Tier,
		Status:   "executed",
		Detail:   fmt.Sprintf("done; say so before %s if you want it undone", p.WindowExpires.Format(time.Kitchen)),
		Data:     result.Data,
	})
	res.PendingConfirmations = append(res.PendingConfirmations, pendingFrom(p))
}

// execConfirmed runs a just-confirmed proposal and records the terminal
// state. A proposal whose tool already ran optimistically is only marked
// executed, never re-run.
func (o *Orchestrator) execConfirmed(ctx context.Context, p *proposal.Proposal, breaker *resilience.Breaker, tc tool.Context, detail string) turn.Outcome {
	if p.ExecutedAt != nil {
		if _, err := o.proposals.MarkExecuted(ctx, p.ID); err != nil {
			slog.Warn("mark optimistic proposal executed", "proposal_id", p.ID, "error", err)
		}
		o.countProposal(ctx, proposal.StatusExecuted)
		return turn.Outcome{ToolName: p.ToolName, Tier: p.Tier, Status: "executed", Detail: detail}
	}

	t, err := o.registry.Lookup(p.ToolName)
	if err != nil {
		reason := "tool is no longer available"
		if _, ferr := o.proposals.Fail(ctx, p.ID, reason); ferr != nil {
			slog.Warn("fail confirmed proposal", "proposal_id", p.ID, "error", ferr)
		}
		o.countProposal(ctx, proposal.StatusFailed)
		return turn.Outcome{ToolName: p.ToolName, Tier: p.Tier, Status: "failed", Detail: reason}
	}

	result, err := o.runTool(ctx, t, tc, p.Payload)
	if err != nil || !result.Success {
		breaker.RecordFailure()
		reason := userFacingError(err)
		if err == nil {
			reason = result.Error
		}
		if _, ferr := o.proposals.Fail(ctx, p.ID, reason); ferr != nil {
			slog.Warn("fail confirmed proposal", "proposal_id", p.ID, "error", ferr)
		}
		o.countProposal(ctx, proposal.StatusFailed)
		return turn.Outcome{ToolName: p.ToolName, Tier: p.Tier, Status: "failed", Detail: reason}
	}

	breaker.RecordSuccess()
	if _, err := o.proposals.MarkExecuted(ctx, p.ID); err != nil {
		slog.Warn("mark proposal executed", "proposal_id", p.ID, "error", err)
	}
	o.countProposal(ctx, proposal.StatusExecuted)
	return turn.Outcome{ToolName: p.ToolName, Tier: p.Tier, Status: "executed", Detail: detail, Data: result.Data}
}

// ConfirmProposal confirms and executes a proposal on behalf of sessionID,
// e.g. from the confirm button or an operator console. Returns the proposal
// in its terminal state.
func (o *Orchestrator) ConfirmProposal(ctx context.Context, proposalID, sessionID string) (*proposal.Proposal, error) {
	p, err := o.proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.SessionID != sessionID {
		return nil, fmt.Errorf("confirm proposal %s: %w", proposalID, domain.ErrAccessDenied)
	}

	breaker := o.breakers.For(p.SessionID)
	if !breaker.Allow() {
		o.countBreakerTrip(ctx)
		return nil, fmt.Errorf("confirm proposal %s: %w", proposalID, resilience.ErrCircuitOpen)
	}

	confirmed, err := o.proposals.Confirm(ctx, proposalID, sessionID)
	if err != nil {
		return nil, err
	}

	tc := tool.Context{
		TenantID:  confirmed.TenantID,
		SessionID: confirmed.SessionID,
		TurnID:    uuid.NewString(),
	}
	if sess, err := o.sessions.Get(ctx, confirmed.SessionID); err == nil {
		tc.SessionType = string(sess.Type)
	}

	o.execConfirmed(ctx, confirmed, breaker, tc, "confirmed by user")
	return o.proposals.Get(ctx, proposalID)
}

// RejectProposal fails a pending proposal on behalf of sessionID.
func (o *Orchestrator) RejectProposal(ctx context.Context, proposalID, sessionID string) (*proposal.Proposal, error) {
	p, err := o.proposals.Reject(ctx, proposalID, sessionID, "user rejected")
	if err != nil {
		return nil, err
	}
	o.countProposal(ctx, proposal.StatusFailed)
	return p, nil
}

// CloseSession ends a session explicitly and drops its in-memory state. It
// takes the session's turn lock first: a turn that already passed the active
// check may still be awaiting the reasoner, and closing under it would let
// that turn leave a fresh proposal behind after the close sweep.
func (o *Orchestrator) CloseSession(ctx context.Context, sessionID, reason string) error {
	mu := o.turnLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := o.sessions.Close(ctx, sessionID, reason, o.proposals); err != nil {
		return err
	}
	o.histMu.Lock()
	delete(o.history, sessionID)
	o.histMu.Unlock()
	o.turnLocks.Delete(sessionID)
	return nil
}

func (o *Orchestrator) callReasoner(ctx context.Context, sess *session.Session, message string) (*reasoner.Response, error) {
	ctx, span := telemetry.StartReasonerSpan(ctx, sess.ID)
	defer span.End()

	hist := append(o.historyFor(sess.ID), reasoner.HistoryEntry{Role: "user", Content: message})
	return o.reason.ProposeActions(ctx, reasoner.Request{
		History:       hist,
		SystemContext: "surface=" + string(sess.Type),
		Tools:         o.registry.All(),
	})
}

func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, tracker *budget.Tracker, res *turn.Result, userMessage string, start time.Time) {
	res.Budget = turn.BudgetStatus{
		Used:      tracker.Used(),
		Remaining: tracker.Remaining(),
		Exhausted: o.exhaustedTiers(tracker),
	}

	if err := o.sessions.Touch(ctx, sess, tracker.Used()); err != nil {
		slog.Warn("touch session", "session_id", sess.ID, "error", err)
	}

	o.appendHistory(sess.ID,
		reasoner.HistoryEntry{Role: "user", Content: userMessage},
		reasoner.HistoryEntry{Role: "assistant", Content: res.Reply},
	)

	if o.metrics != nil {
		o.metrics.Turns.Add(ctx, 1)
		o.metrics.TurnDuration.Record(ctx, o.now().Sub(start).Seconds())
	}
}

func (o *Orchestrator) exhaustedTiers(tracker *budget.Tracker) []tool.TrustTier {
	var out []tool.TrustTier
	for _, tier := range []tool.TrustTier{tool.TierAutonomous, tool.TierSoftConfirm, tool.TierHardConfirm} {
		if tracker.Exhausted(tier) {
			out = append(out, tier)
		}
	}
	return out
}

func (o *Orchestrator) turnLock(sessionID string) *sync.Mutex {
	mu, _ := o.turnLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (o *Orchestrator) historyFor(sessionID string) []reasoner.HistoryEntry {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	hist := o.history[sessionID]
	out := make([]reasoner.HistoryEntry, len(hist))
	copy(out, hist)
	return out
}

func (o *Orchestrator) appendHistory(sessionID string, entries ...reasoner.HistoryEntry) {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	hist := append(o.history[sessionID], entries...)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	o.history[sessionID] = hist
}

func (o *Orchestrator) countToolCall(ctx context.Context, tier tool.TrustTier) {
	if o.metrics == nil {
		return
	}
	o.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(tier))))
}

func (o *Orchestrator) countProposal(ctx context.Context, status proposal.Status) {
	if o.metrics == nil {
		return
	}
	o.metrics.ProposalOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (o *Orchestrator) countBreakerTrip(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	o.metrics.BreakerTrips.Add(ctx, 1)
}

func (o *Orchestrator) countBudgetRejection(ctx context.Context, tier tool.TrustTier) {
	if o.metrics == nil {
		return
	}
	o.metrics.BudgetRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(tier))))
}

func failedOutcome(t tool.Tool, detail string) turn.Outcome {
	return turn.Outcome{ToolName: t.Name, Tier: t.Tier, Status: "failed", Detail: detail}
}

func pendingFrom(p *proposal.Proposal) turn.PendingConfirmation {
	return turn.PendingConfirmation{
		ProposalID: p.ID,
		ToolName:   p.ToolName,
		Tier:       p.Tier,
		Preview:    p.Preview,
		ExpiresAt:  p.WindowExpires.Format(time.RFC3339),
	}
}
