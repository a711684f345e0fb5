// Package servers connects agents to the MCP servers their definitions
// name.
//
// manager.go - MCP client sessions
//
// This file contains:
// - Manager, one client session per loaded server
// - Transport selection for local (stdio subprocess) and remote
//   (streamable HTTP) servers
// - Tool listing and invocation by server and tool name
//
// Conversion between MCP tools and backend tools lives in tools.go.

package servers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/logger"
)

var ErrServerNotLoaded = errors.New("mcp server not loaded")

// ClientName identifies kepoki to MCP servers
const ClientName = "kepoki"

// Tool is a tool exposed by a loaded server
type Tool struct {
	Server string
	Tool   *mcp.Tool
}

// transportFunc builds the transport for a server descriptor
type transportFunc func(desc definition.McpServer) (mcp.Transport, error)

type server struct {
	desc    definition.McpServer
	session *mcp.ClientSession
}

// Manager holds MCP client sessions keyed by server name
type Manager struct {
	client    *mcp.Client
	transport transportFunc

	mu      sync.Mutex
	servers map[string]*server
}

// NewManager creates a manager with no loaded servers
func NewManager(version string) *Manager {
	return newManager(version, transportFor)
}

func newManager(version string, transport transportFunc) *Manager {
	return &Manager{
		client:    mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: version}, nil),
		transport: transport,
		servers:   make(map[string]*server),
	}
}

// transportFor starts local servers as subprocesses and reaches remote
// servers over streamable HTTP
func transportFor(desc definition.McpServer) (mcp.Transport, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.Remote != nil {
		return &mcp.StreamableClientTransport{Endpoint: desc.Remote.URL}, nil
	}

	cmd := exec.Command(desc.Local.Command, desc.Local.Args...)
	cmd.Env = os.Environ()
	for k, v := range desc.Local.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr
	return &mcp.CommandTransport{Command: cmd}, nil
}

// Load connects to the server. Loading the same descriptor under the same
// name again is a no-op; a changed descriptor replaces the old session.
func (m *Manager) Load(ctx context.Context, name string, desc definition.McpServer) error {
	m.mu.Lock()
	existing, ok := m.servers[name]
	m.mu.Unlock()
	if ok && existing.desc.Equal(desc) {
		return nil
	}

	transport, err := m.transport(desc)
	if err != nil {
		return fmt.Errorf("mcp server %s: %w", name, err)
	}
	session, err := m.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to mcp server %s: %w", name, err)
	}

	m.mu.Lock()
	old := m.servers[name]
	m.servers[name] = &server{desc: desc, session: session}
	m.mu.Unlock()

	if old != nil {
		_ = old.session.Close()
	}
	logger.InfoContext(ctx, "mcp server loaded", "server", name)
	return nil
}

// LoadAll connects to every server concurrently and fails if any fails
func (m *Manager) LoadAll(ctx context.Context, servers map[string]definition.McpServer) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, desc := range servers {
		g.Go(func() error {
			return m.Load(ctx, name, desc)
		})
	}
	return g.Wait()
}

func (m *Manager) session(name string) (*mcp.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotLoaded, name)
	}
	return s.session, nil
}

// Names returns loaded server names in sorted order
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTools returns the tools of every loaded server, ordered by server
// name and then as each server lists them
func (m *Manager) ListTools(ctx context.Context) ([]Tool, error) {
	var out []Tool
	for _, name := range m.Names() {
		session, err := m.session(name)
		if err != nil {
			return nil, err
		}
		params := &mcp.ListToolsParams{}
		for {
			res, err := session.ListTools(ctx, params)
			if err != nil {
				return nil, fmt.Errorf("listing tools of %s: %w", name, err)
			}
			for _, tool := range res.Tools {
				out = append(out, Tool{Server: name, Tool: tool})
			}
			if res.NextCursor == "" {
				break
			}
			params.Cursor = res.NextCursor
		}
	}
	return out, nil
}

// CallTool invokes tool on server with JSON arguments
func (m *Manager) CallTool(ctx context.Context, server, tool string, args json.RawMessage) (*mcp.CallToolResult, error) {
	session, err := m.session(server)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", tool, server, err)
	}
	return res, nil
}

// Close ends every session
func (m *Manager) Close() error {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[string]*server)
	m.mu.Unlock()

	var errs []error
	for name, s := range servers {
		if err := s.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
