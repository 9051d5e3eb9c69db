// Package mcp exposes the reputation engine's operations as MCP tools so
// GM assistants and AI tooling can report events and query standings over
// stdio. Games integrate in-process through the service package; this
// surface is operator tooling, not the gameplay boundary.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"grapevine/internal/config"
	"grapevine/internal/service"
)

// Server hosts the MCP tool server over the reputation service.
type Server struct {
	service *service.Service
	table   *config.Table
	mcp     *sdk.Server
}

// NewServer builds the tool server and registers every tool.
func NewServer(svc *service.Service, table *config.Table, version string) *Server {
	s := &Server{
		service: svc,
		table:   table,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "grapevine",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP requests until the transport closes or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
