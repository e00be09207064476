// Package mcp exposes event parsing and saving as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"sharecal/internal/share"
	"sharecal/internal/store"
)

const (
	// ServerName is the MCP server name
	ServerName = "sharecal"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp   *server.MCPServer
	store store.Store
	share *share.Service
}

// NewServer creates a new MCP server instance. The caller keeps ownership
// of st.
func NewServer(st store.Store, svc *share.Service) *Server {
	s := &Server{
		mcp:   server.NewMCPServer(ServerName, ServerVersion),
		store: st,
		share: svc,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until stdin closes or ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s.mcp) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(parseEventTool(), s.handleParseEvent)
	s.mcp.AddTool(saveEventTool(), s.handleSaveEvent)
	s.mcp.AddTool(listCalendarsTool(), s.handleListCalendars)
}
