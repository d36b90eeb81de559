// Package mcp exposes the refactoring surface over the Model Context
// Protocol: one tool per planner family, the apply tool, and health. The
// server speaks stdio by default so an agent can spawn it directly.
package mcp

import (
	"context"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	lspDomain "github.com/Strob0t/RefactorForge/internal/domain/lsp"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/service"
)

// PlanStore retains plans between plan and apply calls so apply can accept
// a plan id as well as an inline plan document.
type PlanStore interface {
	Put(plan *refactor.Plan)
	Get(id string) (*refactor.Plan, bool)
}

// PoolReader reports the orchestrator's client pool for health.
type PoolReader interface {
	Clients() []lspDomain.ClientInfo
}

// ServerConfig holds MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps are the collaborators the tool handlers dispatch to. Nil
// fields cause the affected tools to answer with a configuration error
// instead of panicking.
type ServerDeps struct {
	Planner *service.Planner
	Applier *service.Applier
	Pool    PoolReader
	Plans   PlanStore
}

// Server wires the tool handlers onto a mcp-go server.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the MCP server and registers every tool.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server (used by tests and by transports).
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// ServeStdio blocks serving the MCP protocol on stdin/stdout until the
// context is cancelled or the stream closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	slog.Info("mcp server serving on stdio", "name", s.cfg.Name, "version", s.cfg.Version)
	return mcpserver.NewStdioServer(s.mcpServer).Listen(ctx, os.Stdin, os.Stdout)
}
