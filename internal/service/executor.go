package service

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/resilience"
)

// runTool invokes one executor with a frozen copy of the session context, a
// per-attempt timeout, and bounded retry of transient failures. Validation
// and auth errors never retry.
func (o *Orchestrator) runTool(ctx context.Context, t tool.Tool, tc tool.Context, params json.RawMessage) (tool.Result, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = o.execTimeout
	}

	frozen := tc.Clone()
	return resilience.Retry(ctx, o.retry,
		func(err error) bool { return tool.Classify(err).Retryable() },
		func() (tool.Result, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			result, err := t.Execute(attemptCtx, frozen, params)
			if err != nil {
				return result, fmt.Errorf("execute %s: %w", t.Name, err)
			}
			return result, nil
		})
}

// previewFor renders the one-line description shown to the user when asking
// for (or announcing) an action.
func previewFor(t tool.Tool, call tool.Call) string {
	args := compactJSON(call.Params)
	if args == "" || args == "{}" || args == "null" {
		return t.Name
	}
	const maxArgs = 160
	if len(args) > maxArgs {
		cut := maxArgs
		for cut > 0 && !utf8.RuneStart(args[cut]) {
			cut--
		}
		args = args[:cut] + "..."
	}
	return t.Name + " " + args
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// userFacingError maps an execution error to a short message safe to show
// the user. Internal detail stays in the logs.
func userFacingError(err error) string {
	if err == nil {
		return ""
	}
	switch tool.Classify(err) {
	case tool.ClassValidation:
		return "the request was invalid"
	case tool.ClassRateLimit:
		return "the service is busy; it was retried and still refused"
	case tool.ClassAuth:
		return "not authorized for that action"
	case tool.ClassNetwork:
		return "the service did not respond in time"
	default:
		return "the action failed unexpectedly"
	}
}
