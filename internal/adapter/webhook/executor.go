// Package webhook implements tool executors that forward invocations to
// remote HTTP endpoints, so product teams can back registry tools with
// ordinary services instead of linking code into Steward.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/steward-labs/steward/internal/domain/tool"
)

const maxResponseBytes = 1 << 20

// Executor POSTs each invocation to one endpoint and decodes the tool result
// from the response body.
type Executor struct {
	endpoint   string
	httpClient *http.Client
}

// NewExecutor creates an executor for one endpoint. timeout bounds the HTTP
// call; zero leaves the bound to the orchestrator's per-attempt context.
func NewExecutor(endpoint string, timeout time.Duration) *Executor {
	return &Executor{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// invocation is the wire form of one tool call.
type invocation struct {
	TenantID    string          `json:"tenant_id"`
	SessionID   string          `json:"session_id"`
	SessionType string          `json:"session_type"`
	TurnID      string          `json:"turn_id"`
	Params      json.RawMessage `json:"params"`
}

// Execute forwards the call. Non-2xx statuses map onto the executor error
// classes so the orchestrator's retry and surfacing rules apply: 400 is
// validation, 401/403 auth, 429 rate limit, 502/503/504 network.
func (e *Executor) Execute(ctx context.Context, tc tool.Context, params json.RawMessage) (tool.Result, error) {
	body, err := json.Marshal(invocation{
		TenantID:    tc.TenantID,
		SessionID:   tc.SessionID,
		SessionType: tc.SessionType,
		TurnID:      tc.TurnID,
		Params:      params,
	})
	if err != nil {
		return tool.Result{}, fmt.Errorf("marshal invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return tool.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return tool.Result{}, tool.NewExecError(tool.ClassNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tool.Result{}, statusError(resp.StatusCode)
	}

	var result tool.Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return tool.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

func statusError(code int) error {
	err := fmt.Errorf("endpoint returned status %d", code)
	switch code {
	case http.StatusBadRequest:
		return tool.NewExecError(tool.ClassValidation, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return tool.NewExecError(tool.ClassAuth, err)
	case http.StatusTooManyRequests:
		return tool.NewExecError(tool.ClassRateLimit, err)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return tool.NewExecError(tool.ClassNetwork, err)
	}
	return tool.NewExecError(tool.ClassUnknown, err)
}
