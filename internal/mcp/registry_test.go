package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoParams struct {
	Message string `json:"message"`
	Times   int    `json:"times,omitempty"`
}

func TestRegister_InfersSchema(t *testing.T) {
	r := NewRegistry()
	err := Register(r, ToolDef{Name: "echo", Description: "Echo"}, func(ctx context.Context, p echoParams) (any, error) {
		return p.Message, nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tools := r.Tools()
	if len(tools) != 1 {
		t.Fatalf("Tools() = %d, want 1", len(tools))
	}
	schema := tools[0].InputSchema
	if schema.Type != "object" {
		t.Errorf("schema type = %q, want object", schema.Type)
	}
	if schema.Properties["message"] == nil || schema.Properties["message"].Type != "string" {
		t.Errorf("message property = %+v", schema.Properties["message"])
	}
	if schema.Properties["times"] == nil || schema.Properties["times"].Type != "integer" {
		t.Errorf("times property = %+v", schema.Properties["times"])
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()
	handler := func(ctx context.Context, p echoParams) (any, error) { return nil, nil }
	if err := Register(r, ToolDef{Name: "echo"}, handler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := Register(r, ToolDef{Name: "echo"}, handler); err == nil {
		t.Error("Register(duplicate) expected error")
	}
}

func TestRegistry_CallTool(t *testing.T) {
	r := NewRegistry()
	_ = Register(r, ToolDef{Name: "echo"}, func(ctx context.Context, p echoParams) (any, error) {
		if p.Message == "" {
			return nil, errors.New("message is required")
		}
		return p.Message, nil
	})

	tests := []struct {
		name    string
		tool    string
		args    string
		want    any
		wantErr bool
	}{
		{name: "success", tool: "echo", args: `{"message":"hi"}`, want: "hi"},
		{name: "handler error", tool: "echo", args: `{}`, wantErr: true},
		{name: "invalid params", tool: "echo", args: `{"message":3}`, wantErr: true},
		{name: "unknown tool", tool: "nope", args: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CallTool(context.Background(), tt.tool, json.RawMessage(tt.args))
			if tt.wantErr {
				if err == nil {
					t.Errorf("CallTool() expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CallTool() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CallTool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"agent not found: x", "agent not found: x"},
		{"invalid x-api-key", "op failed: internal configuration error"},
		{"sql: database is locked", "op failed: internal error"},
	}
	for _, tt := range tests {
		if got := SanitizeError(errors.New(tt.err), "op").Error(); got != tt.want {
			t.Errorf("SanitizeError(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if SanitizeError(nil, "op") != nil {
		t.Error("SanitizeError(nil) should be nil")
	}
}
