// Package session defines the conversational unit owning proposals, budget
// usage, and breaker state.
package session

import (
	"time"

	"github.com/steward-labs/steward/internal/domain/tool"
)

// Type distinguishes product surfaces with different risk tolerances. The
// soft-confirm window length is keyed by this.
type Type string

const (
	TypeChat  Type = "chat"
	TypeSetup Type = "setup"
	TypeAdmin Type = "admin"
)

// BudgetUsage counts tool invocations by tier for the current turn.
type BudgetUsage struct {
	T1 int `json:"t1"`
	T2 int `json:"t2"`
	T3 int `json:"t3"`
}

// Add increments the counter for the given tier.
func (b *BudgetUsage) Add(tier tool.TrustTier) {
	switch tier {
	case tool.TierAutonomous:
		b.T1++
	case tool.TierSoftConfirm:
		b.T2++
	case tool.TierHardConfirm:
		b.T3++
	}
}

// Session is one isolated conversation. At most one active session exists
// per (tenant, type) — enforced by a partial unique index in the store.
type Session struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	Type           Type        `json:"session_type"`
	Active         bool        `json:"active"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	TurnUsage      BudgetUsage `json:"turn_budget_usage"`
}

// IdleSince reports whether the session has been inactive for at least ttl.
func (s *Session) IdleSince(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivityAt) >= ttl
}
