// Package mcp serves kepoki as an MCP server so other agents and tools can
// discover the agents it knows about.
//
// server.go - MCP server front end
//
// This file contains:
// - Server wrapping the SDK server and the tool registry
// - Stdio and streamable HTTP serving
//
// Tool handlers live in handlers.go.

package mcp

import (
	"context"
	"net/http"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/kepoki/internal/definition"
)

// ServerName identifies kepoki to MCP clients
const ServerName = "kepoki"

// AgentCatalog is the source of named agent definitions
type AgentCatalog interface {
	List(ctx context.Context) ([]definition.Summary, error)
	Lookup(ctx context.Context, name string) (*definition.Agent, error)
}

// ServerConfig configures a Server
type ServerConfig struct {
	Version string
	// Agents may be nil, in which case only the built-in agent is known
	Agents AgentCatalog
}

// Server wraps the MCP SDK server with kepoki's tools
type Server struct {
	agents    AgentCatalog
	registry  *Registry
	mcpServer *mcp_sdk.Server
}

// NewServer creates a server with every tool registered
func NewServer(cfg ServerConfig) (*Server, error) {
	s := &Server{
		agents:   cfg.Agents,
		registry: NewRegistry(),
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}

	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    ServerName,
		Version: cfg.Version,
	}, nil)
	s.registry.Attach(s.mcpServer)
	return s, nil
}

// Run serves a single session over transport until it ends
func (s *Server) Run(ctx context.Context, transport mcp_sdk.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// ServeStdio serves over stdin and stdout
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp_sdk.StdioTransport{})
}

// Connect starts a session over transport without waiting for it to end
func (s *Server) Connect(ctx context.Context, transport mcp_sdk.Transport) (*mcp_sdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, transport, nil)
}

// Handler serves streamable HTTP sessions
func (s *Server) Handler() http.Handler {
	return mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, nil)
}
