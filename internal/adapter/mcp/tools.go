package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/steward-labs/steward/internal/domain/tool"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPendingProposalsTool(),
		s.confirmProposalTool(),
		s.rejectProposalTool(),
		s.getSessionStatusTool(),
	)
}

func (s *Server) listPendingProposalsTool() mcpserver.ServerTool {
	t := mcplib.NewTool("list_pending_proposals",
		mcplib.WithDescription("List proposals awaiting confirmation for a session"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session whose pending proposals to list"),
		),
		mcplib.WithString("tier",
			mcplib.Description("Restrict to one trust tier (T1, T2 or T3)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    t,
		Handler: s.handleListPendingProposals,
	}
}

func (s *Server) confirmProposalTool() mcpserver.ServerTool {
	t := mcplib.NewTool("confirm_proposal",
		mcplib.WithDescription("Confirm a pending proposal and execute its tool call"),
		mcplib.WithString("proposal_id",
			mcplib.Required(),
			mcplib.Description("The proposal to confirm"),
		),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session that owns the proposal"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    t,
		Handler: s.handleConfirmProposal,
	}
}

func (s *Server) rejectProposalTool() mcpserver.ServerTool {
	t := mcplib.NewTool("reject_proposal",
		mcplib.WithDescription("Reject a pending proposal so it never executes"),
		mcplib.WithString("proposal_id",
			mcplib.Required(),
			mcplib.Description("The proposal to reject"),
		),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session that owns the proposal"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    t,
		Handler: s.handleRejectProposal,
	}
}

func (s *Server) getSessionStatusTool() mcpserver.ServerTool {
	t := mcplib.NewTool("get_session_status",
		mcplib.WithDescription("Get the status of a session by ID"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    t,
		Handler: s.handleGetSessionStatus,
	}
}

func (s *Server) handleListPendingProposals(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sessions == nil || s.deps.Proposals == nil {
		return mcplib.NewToolResultError("proposal reader not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	tier, _ := args["tier"].(string)
	if tier != "" && !tool.TrustTier(tier).Valid() {
		return mcplib.NewToolResultError("tier must be T1, T2 or T3"), nil
	}
	sess, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get session %s", sessionID), err,
		), nil
	}
	pending, err := s.deps.Proposals.ListPending(ctx, sess.TenantID, sessionID, tool.TrustTier(tier))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list proposals", err), nil
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal proposals", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleConfirmProposal(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Actor == nil {
		return mcplib.NewToolResultError("proposal actor not configured"), nil
	}
	proposalID, sessionID, errResult := proposalArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	p, err := s.deps.Actor.ConfirmProposal(ctx, proposalID, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to confirm proposal %s", proposalID), err,
		), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal proposal", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleRejectProposal(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Actor == nil {
		return mcplib.NewToolResultError("proposal actor not configured"), nil
	}
	proposalID, sessionID, errResult := proposalArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	p, err := s.deps.Actor.RejectProposal(ctx, proposalID, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to reject proposal %s", proposalID), err,
		), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal proposal", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetSessionStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sessions == nil {
		return mcplib.NewToolResultError("session reader not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	sess, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get session %s", sessionID), err,
		), nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal session", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func proposalArgs(req mcplib.CallToolRequest) (proposalID, sessionID string, errResult *mcplib.CallToolResult) {
	args := req.GetArguments()
	proposalID, ok := args["proposal_id"].(string)
	if !ok || proposalID == "" {
		return "", "", mcplib.NewToolResultError("proposal_id is required")
	}
	sessionID, ok = args["session_id"].(string)
	if !ok || sessionID == "" {
		return "", "", mcplib.NewToolResultError("session_id is required")
	}
	return proposalID, sessionID, nil
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
