// Package mcp exposes an operator console over the Model Context Protocol:
// inspecting sessions, listing pending proposals, and confirming or rejecting
// them on behalf of the owning session.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
)

// ProposalReader lists pending proposals for a session.
type ProposalReader interface {
	ListPending(ctx context.Context, tenantID, sessionID string, tier tool.TrustTier) ([]proposal.Proposal, error)
}

// ProposalActor confirms or rejects proposals with full ownership checks.
type ProposalActor interface {
	ConfirmProposal(ctx context.Context, proposalID, sessionID string) (*proposal.Proposal, error)
	RejectProposal(ctx context.Context, proposalID, sessionID string) (*proposal.Proposal, error)
}

// SessionReader loads sessions by ID.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps holds the service dependencies for the MCP tools. Nil deps
// disable the corresponding tools at call time.
type ServerDeps struct {
	Proposals ProposalReader
	Actor     ProposalActor
	Sessions  SessionReader
}

// Server wraps an MCP server exposing the operator tools.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates the MCP server and registers all operator tools.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves MCP over streamable HTTP on the configured address. It does
// not block.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return nil
	}

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.APIKey, streamable),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts down the MCP HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
