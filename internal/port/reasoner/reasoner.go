// Package reasoner defines the port to the external LLM reasoner.
package reasoner

import (
	"context"

	"github.com/steward-labs/steward/internal/domain/tool"
)

// HistoryEntry is one prior exchange in the session, oldest first.
type HistoryEntry struct {
	Role    string `json:"role"` // "user" | "assistant" | "tool"
	Content string `json:"content"`
}

// Request carries the conversation state the reasoner needs to decide the
// next actions.
type Request struct {
	History       []HistoryEntry
	SystemContext string
	Tools         []tool.Tool
}

// Response is what the reasoner proposed: optional reply text plus zero or
// more requested tool invocations.
type Response struct {
	ReplyText string
	ToolCalls []tool.Call
}

// Reasoner is an opaque async black box; implementations must honor ctx
// cancellation and bound their own timeouts.
type Reasoner interface {
	ProposeActions(ctx context.Context, req Request) (*Response, error)
}
