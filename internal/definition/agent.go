// Package definition describes agents: what they are told, which model
// traits they prefer, and which MCP servers and tools they may use.
//
// agent.go - Agent definition types
//
// This file contains:
// - Agent and its nested configuration types
// - Default, the built-in conversational agent
// - Validation of loaded definitions
//
// Loading from disk lives in load.go and the named registry in registry.go.

package definition

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// SpecVersionLatest is the only definition format currently understood
const SpecVersionLatest = "2025-07-20"

// DefaultTemperature applies when a definition leaves temperature unset
const DefaultTemperature = 0.5

// DefaultName is the name of the built-in agent
const DefaultName = "conversational-agent"

// ToolNameSeparator joins a server name and a tool name into the name
// offered to the model. Server names must not contain it or end in '_',
// so the first separator in a joined name always ends the server name.
const ToolNameSeparator = "__"

var ErrInvalidDefinition = errors.New("invalid agent definition")

// ModelMetric is a trait an agent prefers when a model is selected for it
type ModelMetric string

const (
	MetricQuality        ModelMetric = "quality"
	MetricSpeed          ModelMetric = "speed"
	MetricCost           ModelMetric = "cost"
	MetricLocal          ModelMetric = "local"
	MetricRemote         ModelMetric = "remote"
	MetricConversational ModelMetric = "conversational"
	MetricCode           ModelMetric = "code"
)

// ModelPreferences guide model selection
type ModelPreferences struct {
	// PreferredFamily names a model family such as "claude" when a client
	// supports several
	PreferredFamily string `json:"preferred_family,omitempty"`
	// PreferredMetrics is ordered by priority
	PreferredMetrics []ModelMetric `json:"preferred_metrics,omitempty"`
}

// LocalServer is an MCP server launched as a subprocess speaking stdio
type LocalServer struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// RemoteServer is an MCP server reached over streamable HTTP
type RemoteServer struct {
	URL string `json:"url"`
}

// McpServer describes how to reach one MCP server. Exactly one of Local
// and Remote is set.
type McpServer struct {
	Local  *LocalServer  `json:"local,omitempty"`
	Remote *RemoteServer `json:"remote,omitempty"`
}

// Validate checks that exactly one transport is described
func (s McpServer) Validate() error {
	switch {
	case s.Local != nil && s.Remote != nil:
		return errors.New("server must be either local or remote, not both")
	case s.Local != nil:
		if s.Local.Command == "" {
			return errors.New("local server requires a command")
		}
	case s.Remote != nil:
		if s.Remote.URL == "" {
			return errors.New("remote server requires a url")
		}
	default:
		return errors.New("server must be local or remote")
	}
	return nil
}

// Equal reports whether two descriptors launch or reach the same server
func (s McpServer) Equal(o McpServer) bool {
	switch {
	case s.Local != nil && o.Local != nil:
		return s.Local.Command == o.Local.Command &&
			slices.Equal(s.Local.Args, o.Local.Args) &&
			maps.Equal(s.Local.Env, o.Local.Env)
	case s.Remote != nil && o.Remote != nil:
		return s.Remote.URL == o.Remote.URL
	}
	return false
}

// HookTrigger names the lifecycle point a hook runs at
type HookTrigger string

// Hook is a function invoked at a trigger point
type Hook struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Function    string   `json:"function"`
	Args        []string `json:"args,omitempty"`
}

// Agent is a declarative agent definition
type Agent struct {
	// SpecVersion is the definition format version
	SpecVersion string `json:"spec_version"`
	// Name identifies the agent
	Name string `json:"name"`
	// Description is the externally visible summary of what the agent does
	Description string `json:"description"`
	// Prompt is the system prompt the agent runs with
	Prompt string `json:"prompt"`

	ModelPreferences ModelPreferences `json:"model_preferences,omitzero"`
	// Temperature is the amount of randomness injected into responses
	Temperature float64 `json:"temperature"`

	McpServers   map[string]McpServer   `json:"mcp_servers,omitempty"`
	Tools        []ToolName             `json:"tools,omitempty"`
	AllowedTools []ToolName             `json:"allowed_tools,omitempty"`
	Resources    []string               `json:"resources,omitempty"`
	Hooks        map[HookTrigger][]Hook `json:"hooks,omitempty"`
}

// Default returns the built-in conversational agent with no tools
func Default() *Agent {
	return &Agent{
		SpecVersion: SpecVersionLatest,
		Name:        DefaultName,
		Description: "A simple conversational agent with no tools.",
		Prompt:      "You are a helpful assistant designed for basic knowledge tasks. Always respond even if it means asking for guidance.",
		Temperature: DefaultTemperature,
	}
}

// Validate checks the fields a runtime depends on
func (a *Agent) Validate() error {
	if a.SpecVersion != SpecVersionLatest {
		return fmt.Errorf("%w: unsupported spec_version %q", ErrInvalidDefinition, a.SpecVersion)
	}
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if a.Temperature < 0 || a.Temperature > 1 {
		return fmt.Errorf("%w: temperature %v outside [0, 1]", ErrInvalidDefinition, a.Temperature)
	}
	for name, server := range a.McpServers {
		if !validServerName(name) {
			return fmt.Errorf("%w: mcp server name %q must be non-empty, not contain %q and not end in '_'", ErrInvalidDefinition, name, ToolNameSeparator)
		}
		if err := server.Validate(); err != nil {
			return fmt.Errorf("%w: mcp server %s: %v", ErrInvalidDefinition, name, err)
		}
	}
	return nil
}

func validServerName(name string) bool {
	return name != "" && !strings.Contains(name, ToolNameSeparator) && !strings.HasSuffix(name, "_")
}

// Allows reports whether a tool exposed by an MCP server may be offered to
// the model. Tools and AllowedTools each narrow the set when non-empty.
func (a *Agent) Allows(server, tool string) bool {
	return matchesAny(a.Tools, server, tool) && matchesAny(a.AllowedTools, server, tool)
}

func matchesAny(names []ToolName, server, tool string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name.Matches(server, tool) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	out := *a
	out.ModelPreferences.PreferredMetrics = slices.Clone(a.ModelPreferences.PreferredMetrics)
	out.Tools = slices.Clone(a.Tools)
	out.AllowedTools = slices.Clone(a.AllowedTools)
	out.Resources = slices.Clone(a.Resources)
	if a.McpServers != nil {
		out.McpServers = make(map[string]McpServer, len(a.McpServers))
		for name, s := range a.McpServers {
			c := McpServer{}
			if s.Local != nil {
				local := *s.Local
				local.Args = slices.Clone(s.Local.Args)
				local.Env = maps.Clone(s.Local.Env)
				c.Local = &local
			}
			if s.Remote != nil {
				remote := *s.Remote
				c.Remote = &remote
			}
			out.McpServers[name] = c
		}
	}
	if a.Hooks != nil {
		out.Hooks = make(map[HookTrigger][]Hook, len(a.Hooks))
		for trigger, hooks := range a.Hooks {
			cloned := make([]Hook, len(hooks))
			for i, h := range hooks {
				h.Args = slices.Clone(h.Args)
				cloned[i] = h
			}
			out.Hooks[trigger] = cloned
		}
	}
	return &out
}
