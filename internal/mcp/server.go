// Package mcp exposes read-only views of the gate's state as MCP tools.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/pulljoy/internal/build"
	"github.com/roasbeef/pulljoy/internal/store"
)

// Server wraps the MCP server with the state store it reports on.
type Server struct {
	server *mcp.Server
	states store.ListingStore
}

// NewServer creates an MCP server with all tools registered.
func NewServer(states store.ListingStore) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "pulljoy",
		Version: build.Version(),
	}, nil)

	s := &Server{
		server: mcpServer,
		states: states,
	}
	s.registerTools()

	return s
}

// Run serves the MCP protocol on transport until ctx ends or the peer
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	log.InfoS(ctx, "Serving MCP tools")

	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_review_state",
		Description: "Get the CI gate state of one pull request. " +
			"Untracked pull requests report tracked=false.",
	}, s.handleGetReviewState)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "list_review_states",
		Description: "List every tracked pull request, optionally " +
			"filtered by repository or state",
	}, s.handleListReviewStates)
}
