// Package budget enforces per-turn, per-tier invocation caps.
//
// Counters are kept per trust tier rather than as one global depth counter so
// a chain of cheap T1 reads can never starve the single T2/T3 write a turn
// actually needs.
package budget

import (
	"fmt"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
)

// Caps holds the per-tier invocation limits for one turn.
type Caps struct {
	T1 int
	T2 int
	T3 int
}

// DefaultCaps are the tunable starting points: generous for reads, tight for
// soft-confirmed writes, one hard-confirmed action per turn.
func DefaultCaps() Caps {
	return Caps{T1: 10, T2: 3, T3: 1}
}

func (c Caps) forTier(tier tool.TrustTier) int {
	switch tier {
	case tool.TierAutonomous:
		return c.T1
	case tool.TierSoftConfirm:
		return c.T2
	case tool.TierHardConfirm:
		return c.T3
	}
	return 0
}

// Tracker counts invocations for a single turn. One Tracker per turn; turns
// within a session are serialized, so no locking is needed.
type Tracker struct {
	caps Caps
	used session.BudgetUsage
}

// NewTracker creates a tracker for one turn with the given caps.
func NewTracker(caps Caps) *Tracker {
	return &Tracker{caps: caps}
}

// Consume reserves one invocation of the given tier. Once the tier's cap is
// exceeded it returns domain.ErrBudgetExceeded and the orchestrator must halt
// further calls of that tier for the rest of the turn.
func (t *Tracker) Consume(tier tool.TrustTier) error {
	if t.usedFor(tier) >= t.caps.forTier(tier) {
		return fmt.Errorf("tier %s cap %d reached: %w", tier, t.caps.forTier(tier), domain.ErrBudgetExceeded)
	}
	t.used.Add(tier)
	return nil
}

// Exhausted reports whether the tier has no headroom left.
func (t *Tracker) Exhausted(tier tool.TrustTier) bool {
	return t.usedFor(tier) >= t.caps.forTier(tier)
}

// Used returns a copy of the usage counters.
func (t *Tracker) Used() session.BudgetUsage {
	return t.used
}

// Remaining returns per-tier headroom, never negative.
func (t *Tracker) Remaining() session.BudgetUsage {
	return session.BudgetUsage{
		T1: max(0, t.caps.T1-t.used.T1),
		T2: max(0, t.caps.T2-t.used.T2),
		T3: max(0, t.caps.T3-t.used.T3),
	}
}

func (t *Tracker) usedFor(tier tool.TrustTier) int {
	switch tier {
	case tool.TierAutonomous:
		return t.used.T1
	case tool.TierSoftConfirm:
		return t.used.T2
	case tool.TierHardConfirm:
		return t.used.T3
	}
	return 0
}
