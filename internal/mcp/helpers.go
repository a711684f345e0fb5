package mcp

import (
	"encoding/json"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewTextResult creates a CallToolResult with text content
func NewTextResult(text string) *mcp_sdk.CallToolResult {
	return &mcp_sdk.CallToolResult{
		Content: []mcp_sdk.Content{
			&mcp_sdk.TextContent{Text: text},
		},
	}
}

// NewErrorResult creates a CallToolResult indicating an error
func NewErrorResult(msg string) *mcp_sdk.CallToolResult {
	result := NewTextResult(msg)
	result.IsError = true
	return result
}

// NewJSONResult creates a CallToolResult holding v as JSON text. Objects
// are also attached as structured content.
func NewJSONResult(v any) *mcp_sdk.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return NewErrorResult(err.Error())
	}
	result := NewTextResult(string(data))
	if len(data) > 0 && data[0] == '{' {
		result.StructuredContent = json.RawMessage(data)
	}
	return result
}
