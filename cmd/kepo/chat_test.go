package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		line   string
		want   runtime.Command
		wantOK bool
	}{
		{line: "", wantOK: false},
		{line: "   ", wantOK: false},
		{line: "/exit", want: runtime.Command{Kind: runtime.CommandExit}, wantOK: true},
		{line: " /pause ", want: runtime.Command{Kind: runtime.CommandPause}, wantOK: true},
		{line: "/unpause", want: runtime.Command{Kind: runtime.CommandUnpause}, wantOK: true},
		{line: "/dump", want: runtime.Command{Kind: runtime.CommandDumpState}, wantOK: true},
		{line: "/terminate", want: runtime.Command{Kind: runtime.CommandTerminate}, wantOK: true},
		{line: "what's the weather?", want: runtime.UserMessage("what's the weather?"), wantOK: true},
		{line: "/unknown", want: runtime.UserMessage("/unknown"), wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseChatLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("parseChatLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("parseChatLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestChatEndpoint(t *testing.T) {
	tests := []struct {
		base    string
		agent   string
		want    string
		wantErr bool
	}{
		{base: "ws://localhost:8080", agent: "weather-bot", want: "ws://localhost:8080/agents/weather-bot/ws"},
		{base: "http://localhost:8080/", agent: "a", want: "ws://localhost:8080/agents/a/ws"},
		{base: "https://kepo.example.com/base", agent: "a", want: "wss://kepo.example.com/base/agents/a/ws"},
		{base: "ftp://localhost", agent: "a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := chatEndpoint(tt.base, tt.agent)
			if (err != nil) != tt.wantErr {
				t.Fatalf("chatEndpoint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("chatEndpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderEvent(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name string
		ev   runtime.AgentEvent
		want string
	}{
		{
			name: "text delta",
			ev:   runtime.AgentEvent{Kind: runtime.EventContentBlockDelta, Stream: backend.TextDelta(0, "Hello")},
			want: "Hello",
		},
		{
			name: "tool use start",
			ev:   runtime.AgentEvent{Kind: runtime.EventContentBlockStart, Stream: backend.ContentBlockStart(1, backend.NewToolUse("tu_1", "weather__forecast", ""))},
			want: "\n[tool weather__forecast]\n",
		},
		{
			name: "text block start is silent",
			ev:   runtime.AgentEvent{Kind: runtime.EventContentBlockStart, Stream: backend.ContentBlockStart(0, backend.NewText(""))},
			want: "",
		},
		{
			name: "input json delta is silent",
			ev:   runtime.AgentEvent{Kind: runtime.EventContentBlockDelta, Stream: backend.InputJSONDelta(1, `{"city"`)},
			want: "",
		},
		{
			name: "completed",
			ev:   runtime.AgentEvent{Kind: runtime.EventCompleted},
			want: "[completed]\n",
		},
		{
			name: "terminated",
			ev:   runtime.AgentEvent{Kind: runtime.EventTerminated, Reason: "backend error"},
			want: "[terminated: backend error]\n",
		},
		{
			name: "ping",
			ev:   runtime.AgentEvent{Kind: runtime.EventPing, Stream: backend.Ping()},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderEvent(&buf, &tt.ev)
			if buf.String() != tt.want {
				t.Errorf("renderEvent() wrote %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
