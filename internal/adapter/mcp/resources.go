package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers read-only MCP resources mirroring the health
// tool, so clients that browse resources see the pool without a tool call.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"refactorforge://pool",
			"Language Server Pool",
			mcplib.WithResourceDescription("State of every pooled language server client"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePoolResource,
	)
}

func (s *Server) handlePoolResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Pool == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"pool not configured"}`,
			},
		}, nil
	}
	data, err := json.Marshal(s.deps.Pool.Clients())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
