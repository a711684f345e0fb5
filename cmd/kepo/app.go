package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/mcp"
	"github.com/HyphaGroup/kepoki/internal/providers"
	"github.com/HyphaGroup/kepoki/internal/runtime"
	"github.com/HyphaGroup/kepoki/internal/servers"
)

// app holds what every agent-running command shares
type app struct {
	fs       afero.Fs
	registry *definition.Registry
	backend  *providers.Resolved
}

// openRegistry opens the named agent registry from config
func openRegistry() (*definition.Registry, error) {
	reg, err := definition.OpenRegistry(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("opening agent registry: %w", err)
	}
	return reg, nil
}

// newApp opens the registry and builds the configured backend. A registry
// that cannot be opened only disables named agents.
func newApp(ctx context.Context) (*app, error) {
	a := &app{fs: afero.NewOsFs()}

	reg, err := openRegistry()
	if err != nil {
		logger.WarnContext(ctx, "named agents unavailable", "error", err)
	} else {
		a.registry = reg
	}

	resolved, err := providers.New(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.backend = resolved
	logger.InfoContext(ctx, "backend ready", "kind", resolved.Kind, "model", resolved.Model)
	return a, nil
}

func (a *app) close() {
	if a.registry != nil {
		_ = a.registry.Close()
	}
}

// catalog returns the registry as an MCP agent catalog, or nil
func (a *app) catalog() mcp.AgentCatalog {
	if a.registry == nil {
		return nil
	}
	return a.registry
}

// resolve turns an agent identifier into a definition
func (a *app) resolve(ctx context.Context, id string) (*definition.Agent, error) {
	ident, err := definition.Identify(a.fs, id)
	if err != nil {
		return nil, err
	}
	return definition.Resolve(ctx, a.fs, a.registry, ident)
}

// agent is a spawned agent plus the MCP servers serving its tools
type agent struct {
	handle  runtime.AgentHandle
	servers *servers.Manager
}

// resolveName looks up a registered agent by name only, never a path
func (a *app) resolveName(ctx context.Context, name string) (*definition.Agent, error) {
	if !definition.ValidName(name) {
		return nil, fmt.Errorf("%w: %s", definition.ErrInvalidIdentifier, name)
	}
	return definition.Resolve(ctx, a.fs, a.registry, definition.Identifier{Name: name})
}

// spawn connects the MCP servers def names and starts it on rt
func (a *app) spawn(ctx context.Context, rt *runtime.Runtime, def *definition.Agent, history []backend.InputMessage) (*agent, error) {
	mgr := servers.NewManager(Version)
	if err := mgr.LoadAll(ctx, def.McpServers); err != nil {
		_ = mgr.Close()
		return nil, err
	}

	opts := []runtime.SpawnOption{runtime.WithTools(mgr.ToolsFor(def))}
	if len(history) > 0 {
		opts = append(opts, runtime.WithHistory(history))
	}
	h := rt.Spawn(a.backend.Backend, a.backend.Model, def, opts...)
	logger.InfoContext(ctx, "agent spawned", "agent", h.String(), "mcp_servers", len(def.McpServers))
	return &agent{handle: h, servers: mgr}, nil
}

// newRuntime creates a runtime using the backend's output limit
func (a *app) newRuntime() *runtime.Runtime {
	return runtime.New(runtime.WithMaxTokens(a.backend.MaxTokens))
}
