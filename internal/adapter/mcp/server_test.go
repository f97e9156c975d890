package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	stmcp "github.com/steward-labs/steward/internal/adapter/mcp"
	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
)

// --- Mocks ---

type mockSessionReader struct {
	sessions map[string]*session.Session
}

func (m *mockSessionReader) Get(_ context.Context, id string) (*session.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

type mockProposalReader struct {
	pending []proposal.Proposal
	err     error
}

func (m *mockProposalReader) ListPending(_ context.Context, tenantID, sessionID string, tier tool.TrustTier) ([]proposal.Proposal, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []proposal.Proposal
	for _, p := range m.pending {
		if p.TenantID == tenantID && p.SessionID == sessionID && (tier == "" || p.Tier == tier) {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockProposalActor struct {
	confirmed []string
	rejected  []string
	err       error
}

func (m *mockProposalActor) ConfirmProposal(_ context.Context, proposalID, sessionID string) (*proposal.Proposal, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.confirmed = append(m.confirmed, proposalID)
	return &proposal.Proposal{ID: proposalID, SessionID: sessionID, Status: proposal.StatusExecuted}, nil
}

func (m *mockProposalActor) RejectProposal(_ context.Context, proposalID, sessionID string) (*proposal.Proposal, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.rejected = append(m.rejected, proposalID)
	return &proposal.Proposal{ID: proposalID, SessionID: sessionID, Status: proposal.StatusFailed}, nil
}

func callTool(t *testing.T, s *stmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tools := s.MCPServer().ListTools()
	st, ok := tools[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := st.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	cfg := stmcp.ServerConfig{
		Addr:    ":3001",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := stmcp.NewServer(cfg, stmcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestServerStartStop(t *testing.T) {
	cfg := stmcp.ServerConfig{
		Addr:    ":0",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := stmcp.NewServer(cfg, stmcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, stmcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	if len(tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools))
	}

	expectedTools := map[string]bool{
		"list_pending_proposals": false,
		"confirm_proposal":       false,
		"reject_proposal":        false,
		"get_session_status":     false,
	}
	for name := range tools {
		if _, ok := expectedTools[name]; ok {
			expectedTools[name] = true
		} else {
			t.Errorf("unexpected tool: %s", name)
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleListPendingProposals(t *testing.T) {
	deps := stmcp.ServerDeps{
		Sessions: &mockSessionReader{
			sessions: map[string]*session.Session{
				"s1": {ID: "s1", TenantID: "acme", Type: session.TypeChat, Active: true},
			},
		},
		Proposals: &mockProposalReader{
			pending: []proposal.Proposal{
				{ID: "p1", TenantID: "acme", SessionID: "s1", ToolName: "cancel_booking", Tier: tool.TierHardConfirm, Status: proposal.StatusPending},
				{ID: "p2", TenantID: "acme", SessionID: "s1", ToolName: "update_profile", Tier: tool.TierSoftConfirm, Status: proposal.StatusPending},
			},
		},
	}
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	result := callTool(t, s, "list_pending_proposals", map[string]any{"session_id": "s1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var pending []proposal.Proposal
	if err := json.Unmarshal([]byte(resultText(t, result)), &pending); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(pending))
	}

	result = callTool(t, s, "list_pending_proposals", map[string]any{"session_id": "s1", "tier": "T3"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	pending = nil
	if err := json.Unmarshal([]byte(resultText(t, result)), &pending); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "p1" {
		t.Fatalf("expected only p1, got %v", pending)
	}
}

func TestHandleListPendingProposalsBadTier(t *testing.T) {
	deps := stmcp.ServerDeps{
		Sessions:  &mockSessionReader{sessions: map[string]*session.Session{}},
		Proposals: &mockProposalReader{},
	}
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	result := callTool(t, s, "list_pending_proposals", map[string]any{"session_id": "s1", "tier": "T9"})
	if !result.IsError {
		t.Fatal("expected error result for unknown tier")
	}
}

func TestHandleConfirmProposal(t *testing.T) {
	actor := &mockProposalActor{}
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, stmcp.ServerDeps{Actor: actor})

	result := callTool(t, s, "confirm_proposal", map[string]any{"proposal_id": "p1", "session_id": "s1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var p proposal.Proposal
	if err := json.Unmarshal([]byte(resultText(t, result)), &p); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if p.Status != proposal.StatusExecuted {
		t.Fatalf("expected status %q, got %q", proposal.StatusExecuted, p.Status)
	}
	if len(actor.confirmed) != 1 || actor.confirmed[0] != "p1" {
		t.Fatalf("expected p1 confirmed, got %v", actor.confirmed)
	}
}

func TestHandleConfirmProposalDenied(t *testing.T) {
	actor := &mockProposalActor{err: domain.ErrAccessDenied}
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, stmcp.ServerDeps{Actor: actor})

	result := callTool(t, s, "confirm_proposal", map[string]any{"proposal_id": "p1", "session_id": "other"})
	if !result.IsError {
		t.Fatal("expected error result for denied confirmation")
	}
}

func TestHandleRejectProposal(t *testing.T) {
	actor := &mockProposalActor{}
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, stmcp.ServerDeps{Actor: actor})

	result := callTool(t, s, "reject_proposal", map[string]any{"proposal_id": "p2", "session_id": "s1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if len(actor.rejected) != 1 || actor.rejected[0] != "p2" {
		t.Fatalf("expected p2 rejected, got %v", actor.rejected)
	}
}

func TestHandleGetSessionStatus(t *testing.T) {
	deps := stmcp.ServerDeps{
		Sessions: &mockSessionReader{
			sessions: map[string]*session.Session{
				"s1": {ID: "s1", TenantID: "acme", Type: session.TypeSetup, Active: true},
			},
		},
	}
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	result := callTool(t, s, "get_session_status", map[string]any{"session_id": "s1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var sess session.Session
	if err := json.Unmarshal([]byte(resultText(t, result)), &sess); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if sess.Type != session.TypeSetup || !sess.Active {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestHandleMissingArgs(t *testing.T) {
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, stmcp.ServerDeps{
		Actor:    &mockProposalActor{},
		Sessions: &mockSessionReader{sessions: map[string]*session.Session{}},
	})

	result := callTool(t, s, "confirm_proposal", map[string]any{"session_id": "s1"})
	if !result.IsError {
		t.Fatal("expected error result for missing proposal_id")
	}

	result = callTool(t, s, "get_session_status", nil)
	if !result.IsError {
		t.Fatal("expected error result for missing session_id")
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := stmcp.NewServer(stmcp.ServerConfig{Name: "test", Version: "0.1.0"}, stmcp.ServerDeps{})

	result := callTool(t, s, "list_pending_proposals", map[string]any{"session_id": "s1"})
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}

	result = callTool(t, s, "confirm_proposal", map[string]any{"proposal_id": "p1", "session_id": "s1"})
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}
}
