// Package backend provides the model backend abstraction layer.
//
// backend.go - Backend interface definition
//
// This file contains:
// - Backend interface implemented by every model provider adapter
// - EventStream interface for consuming canonical streaming events
// - MessagesRequest, Tool and ToolChoice request types
//
// Every adapter translates its provider's wire format into the canonical
// Event type so the agent loop never sees provider specifics.

package backend

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// DefaultMaxTokens is the output token limit used when a request sets none
const DefaultMaxTokens = 8192

// Backend is the interface for model providers
type Backend interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Messages issues a streaming request and returns the event stream
	Messages(ctx context.Context, req *MessagesRequest) (EventStream, error)
}

// EventStream is a lazy, non-restartable sequence of canonical events.
// Recv returns io.EOF once the stream has ended cleanly.
type EventStream interface {
	Recv() (*Event, error)
	Close() error
}

// MessagesRequest is the provider-independent request for one turn
type MessagesRequest struct {
	Model       string         `json:"model"`
	Messages    []InputMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	ToolChoice  *ToolChoice    `json:"tool_choice,omitempty"`
	Tools       []Tool         `json:"tools,omitempty"`
}

// Tool describes a tool the model may invoke
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// ToolChoiceType selects how the model is allowed to use tools
type ToolChoiceType string

const (
	ToolChoiceAuto ToolChoiceType = "auto"
	ToolChoiceAny  ToolChoiceType = "any"
	ToolChoiceTool ToolChoiceType = "tool"
)

// ToolChoice is the tool-use policy for a request.
// Name is only meaningful for ToolChoiceTool.
type ToolChoice struct {
	Type                   ToolChoiceType `json:"type"`
	Name                   string         `json:"name,omitempty"`
	DisableParallelToolUse bool           `json:"disable_parallel_tool_use,omitempty"`
}
