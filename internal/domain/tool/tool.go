// Package tool defines the tool catalog: trust tiers, executors, and the
// registry resolving tool names to their risk classification.
package tool

import (
	"context"
	"encoding/json"
	"time"
)

// TrustTier classifies how much autonomy a tool is granted.
type TrustTier string

const (
	// TierAutonomous (T1) executes immediately without user involvement.
	TierAutonomous TrustTier = "T1"
	// TierSoftConfirm (T2) creates a proposal that auto-confirms after a
	// bounded window unless the user objects.
	TierSoftConfirm TrustTier = "T2"
	// TierHardConfirm (T3) creates a proposal that executes only on an
	// explicit affirmative reply in a later turn.
	TierHardConfirm TrustTier = "T3"
)

// Valid reports whether t is one of the three known tiers.
func (t TrustTier) Valid() bool {
	switch t {
	case TierAutonomous, TierSoftConfirm, TierHardConfirm:
		return true
	}
	return false
}

// Context is the frozen view of the session handed to executors. Executors
// must treat it as an immutable message: all state changes flow back through
// the proposal and session stores, never through this value.
type Context struct {
	TenantID    string
	SessionID   string
	SessionType string
	TurnID      string
	Metadata    map[string]string
}

// Clone returns a deep copy so one executor's view can never alias another's.
func (c Context) Clone() Context {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Result is the outcome of one executor invocation.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Executor performs the tool's business logic. Implementations receive a
// frozen Context and the raw call params, and must honor ctx cancellation.
type Executor func(ctx context.Context, tc Context, params json.RawMessage) (Result, error)

// Tool is one registered capability. Immutable after registration.
type Tool struct {
	Name        string
	Description string
	Tier        TrustTier
	InputSchema json.RawMessage
	Execute     Executor

	// ExecuteOptimistically lets a reversible T2 tool run before its
	// soft-confirm window closes; a later rejection must be compensatable
	// by the tool itself. Defaults to false (defer until confirmed).
	ExecuteOptimistically bool

	// Timeout bounds one invocation. Zero means the orchestrator default.
	Timeout time.Duration
}

// Call is one invocation requested by the reasoner.
type Call struct {
	ID       string          `json:"id"`
	ToolName string          `json:"tool_name"`
	Params   json.RawMessage `json:"params"`
}
