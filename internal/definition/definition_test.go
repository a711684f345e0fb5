package definition

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

const weatherJSON = `{
	"spec_version": "2025-07-20",
	"name": "weather-bot",
	"description": "Answers weather questions",
	"prompt": "You report the weather.",
	"mcp_servers": {
		"weather": {"local": {"command": "weather-mcp", "args": ["--stdio"], "env": {"UNITS": "metric"}}},
		"search": {"remote": {"url": "https://search.example.com/mcp"}}
	},
	"tools": ["lookup", "@weather/*", "@search/*"],
	"allowed_tools": ["@weather/forecast", "@search/*"]
}`

const weatherYAML = `
spec_version: "2025-07-20"
name: weather-bot
description: Answers weather questions
prompt: You report the weather.
temperature: 0.2
mcp_servers:
  weather:
    local:
      command: weather-mcp
tools:
  - "@weather/forecast"
`

func TestParseToolName(t *testing.T) {
	tests := []struct {
		in        string
		want      ToolName
		namespace string
		name      string
		wantErr   bool
	}{
		{in: "lookup", want: "@builtin/lookup", namespace: "builtin", name: "lookup"},
		{in: "@weather/forecast", want: "@weather/forecast", namespace: "weather", name: "forecast"},
		{in: "weather/forecast", wantErr: true},
		{in: "@/forecast", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseToolName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseToolName(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToolName(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseToolName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got.Namespace() != tt.namespace || got.Name() != tt.name {
				t.Errorf("parts = %q/%q, want %q/%q", got.Namespace(), got.Name(), tt.namespace, tt.name)
			}
		})
	}
}

func TestParse(t *testing.T) {
	agent, err := Parse([]byte(weatherJSON))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if agent.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want default %v", agent.Temperature, DefaultTemperature)
	}
	if len(agent.McpServers) != 2 {
		t.Fatalf("McpServers = %d, want 2", len(agent.McpServers))
	}
	if agent.McpServers["weather"].Local.Env["UNITS"] != "metric" {
		t.Errorf("weather env = %v", agent.McpServers["weather"].Local.Env)
	}
	if agent.Tools[0] != "@builtin/lookup" {
		t.Errorf("Tools[0] = %q, want @builtin/lookup", agent.Tools[0])
	}

	// Canonical names survive a round trip
	data, err := json.Marshal(agent)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(round trip) error = %v", err)
	}
	if again.Tools[0] != agent.Tools[0] || again.Temperature != agent.Temperature {
		t.Errorf("round trip = %+v, want %+v", again, agent)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad spec version", `{"spec_version":"1999-01-01","name":"a","description":"","prompt":""}`},
		{"missing name", `{"spec_version":"2025-07-20","description":"","prompt":""}`},
		{"temperature out of range", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","temperature":3}`},
		{"server without transport", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","mcp_servers":{"x":{}}}`},
		{"server with both transports", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","mcp_servers":{"x":{"local":{"command":"c"},"remote":{"url":"u"}}}}`},
		{"server name with separator", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","mcp_servers":{"my__srv":{"remote":{"url":"u"}}}}`},
		{"server name ending in underscore", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","mcp_servers":{"srv_":{"remote":{"url":"u"}}}}`},
		{"empty server name", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","mcp_servers":{"":{"remote":{"url":"u"}}}}`},
		{"tool namespace without @", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","tools":["ns/tool"]}`},
		{"unknown field", `{"spec_version":"2025-07-20","name":"a","description":"","prompt":"","model":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse() expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "agents/weather.json", []byte(weatherJSON), 0o644)
	_ = afero.WriteFile(fs, "agents/weather.yaml", []byte(weatherYAML), 0o644)

	fromJSON, err := Load(fs, "agents/weather.json")
	if err != nil {
		t.Fatalf("Load(json) error = %v", err)
	}
	fromYAML, err := Load(fs, "agents/weather.yaml")
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}

	if fromJSON.Name != fromYAML.Name {
		t.Errorf("names differ: %q vs %q", fromJSON.Name, fromYAML.Name)
	}
	if fromYAML.Temperature != 0.2 {
		t.Errorf("yaml Temperature = %v, want 0.2", fromYAML.Temperature)
	}
	if fromYAML.McpServers["weather"].Local.Command != "weather-mcp" {
		t.Errorf("yaml server = %+v", fromYAML.McpServers["weather"])
	}

	if _, err := Load(fs, "agents/missing.json"); err == nil {
		t.Error("Load(missing) expected error")
	}
}

func TestIdentify(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "my-agent", []byte(weatherJSON), 0o644)
	_ = fs.MkdirAll("agents", 0o755)

	tests := []struct {
		in      string
		want    Identifier
		wantErr bool
	}{
		{in: "my-agent", want: Identifier{Path: "my-agent"}},
		{in: "weather-bot", want: Identifier{Name: "weather-bot"}},
		{in: "agent2", want: Identifier{Name: "agent2"}},
		{in: "agents", want: Identifier{Name: "agents"}},
		{in: "Weather", wantErr: true},
		{in: "weather--bot", wantErr: true},
		{in: "2fast", wantErr: true},
		{in: "./nope.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Identify(fs, tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIdentifier) {
					t.Fatalf("Identify(%q) error = %v, want ErrInvalidIdentifier", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Identify(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Identify(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAgent_Allows(t *testing.T) {
	agent, err := Parse([]byte(weatherJSON))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		server, tool string
		want         bool
	}{
		{"weather", "forecast", true},
		{"weather", "alerts", false},
		{"search", "anything", true},
		{"other", "forecast", false},
	}
	for _, tt := range tests {
		if got := agent.Allows(tt.server, tt.tool); got != tt.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", tt.server, tt.tool, got, tt.want)
		}
	}

	if !Default().Allows("any", "tool") {
		t.Error("empty allow list should permit every tool")
	}
}

func TestAgent_Clone(t *testing.T) {
	agent, err := Parse([]byte(weatherJSON))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	clone := agent.Clone()
	clone.McpServers["weather"].Local.Args[0] = "changed"
	clone.McpServers["weather"].Local.Env["UNITS"] = "imperial"
	clone.Tools[0] = "@x/y"

	if agent.McpServers["weather"].Local.Args[0] != "--stdio" {
		t.Error("clone shares server args")
	}
	if agent.McpServers["weather"].Local.Env["UNITS"] != "metric" {
		t.Error("clone shares server env")
	}
	if agent.Tools[0] != "@builtin/lookup" {
		t.Error("clone shares tools")
	}
}

func TestMcpServer_Equal(t *testing.T) {
	a := McpServer{Local: &LocalServer{Command: "c", Args: []string{"x"}, Env: map[string]string{"K": "V"}}}
	b := McpServer{Local: &LocalServer{Command: "c", Args: []string{"x"}, Env: map[string]string{"K": "V"}}}
	c := McpServer{Remote: &RemoteServer{URL: "c"}}

	if !a.Equal(b) {
		t.Error("identical local servers should be equal")
	}
	if a.Equal(c) {
		t.Error("local and remote servers should differ")
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := OpenRegistry(filepath.Join(t.TempDir(), "agents.db"))
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}
	defer func() { _ = reg.Close() }()

	// The default agent resolves before anything is registered
	def, err := reg.Lookup(ctx, DefaultName)
	if err != nil {
		t.Fatalf("Lookup(default) error = %v", err)
	}
	if def.Prompt != Default().Prompt {
		t.Errorf("default prompt = %q", def.Prompt)
	}

	if _, err := reg.Lookup(ctx, "weather-bot"); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("Lookup(missing) error = %v, want ErrAgentNotFound", err)
	}

	agent, _ := Parse([]byte(weatherJSON))
	if err := reg.Put(ctx, agent); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	agent.Description = "updated"
	if err := reg.Put(ctx, agent); err != nil {
		t.Fatalf("Put(update) error = %v", err)
	}

	got, err := reg.Lookup(ctx, "weather-bot")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.Description != "updated" || len(got.McpServers) != 2 {
		t.Errorf("Lookup() = %+v", got)
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "weather-bot" {
		t.Errorf("List() = %+v", list)
	}

	bad := Default()
	bad.Name = "Not Valid"
	if err := reg.Put(ctx, bad); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Put(bad name) error = %v, want ErrInvalidIdentifier", err)
	}

	if err := reg.Delete(ctx, "weather-bot"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := reg.Delete(ctx, "weather-bot"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("Delete(again) error = %v, want ErrAgentNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "weather.json", []byte(weatherJSON), 0o644)

	got, err := Resolve(ctx, fs, nil, Identifier{Path: "weather.json"})
	if err != nil || got.Name != "weather-bot" {
		t.Fatalf("Resolve(path) = %v, %v", got, err)
	}
	got, err = Resolve(ctx, fs, nil, Identifier{Name: DefaultName})
	if err != nil || got.Name != DefaultName {
		t.Fatalf("Resolve(default) = %v, %v", got, err)
	}
	if _, err := Resolve(ctx, fs, nil, Identifier{Name: "other"}); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("Resolve(unknown) error = %v, want ErrAgentNotFound", err)
	}
}

func TestSchema(t *testing.T) {
	schema, err := Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("Type = %q, want object", schema.Type)
	}
	for _, field := range []string{"spec_version", "name", "prompt", "temperature", "mcp_servers", "allowed_tools"} {
		if _, ok := schema.Properties[field]; !ok {
			t.Errorf("schema missing property %q", field)
		}
	}
	if schema.Properties["tools"].Items == nil || schema.Properties["tools"].Items.Type != "string" {
		t.Errorf("tools items = %+v, want string", schema.Properties["tools"].Items)
	}
}
