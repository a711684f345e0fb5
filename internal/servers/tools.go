package servers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/metrics"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

// nameSeparator joins server and tool into the name the model sees.
// Model tool names allow only letters, digits, '_' and '-'.
const nameSeparator = definition.ToolNameSeparator

// ToolSet offers the tools of loaded servers that a definition permits
type ToolSet struct {
	manager *Manager
	def     *definition.Agent
}

// Ensure ToolSet implements runtime.ToolProvider
var _ runtime.ToolProvider = (*ToolSet)(nil)

// ToolsFor returns the tool set of def over the manager's servers
func (m *Manager) ToolsFor(def *definition.Agent) *ToolSet {
	return &ToolSet{manager: m, def: def}
}

// ExposedName is the tool name offered to the model
func ExposedName(server, tool string) string {
	return server + nameSeparator + tool
}

// SplitName reverses ExposedName. Server names never contain the
// separator, so the first one ends the server name and tool names may
// contain it.
func SplitName(name string) (server, tool string, ok bool) {
	return strings.Cut(name, nameSeparator)
}

// Tools lists permitted tools as backend tools
func (s *ToolSet) Tools(ctx context.Context) ([]backend.Tool, error) {
	listed, err := s.manager.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	var out []backend.Tool
	for _, t := range listed {
		if !s.def.Allows(t.Server, t.Tool.Name) {
			continue
		}
		schema, err := inputSchema(t.Tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s of %s: %w", t.Tool.Name, t.Server, err)
		}
		out = append(out, backend.Tool{
			Name:        ExposedName(t.Server, t.Tool.Name),
			Description: t.Tool.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

// CallTool runs the named tool. Failures the model can react to, such as
// a forbidden tool or malformed input, are reported as error results.
func (s *ToolSet) CallTool(ctx context.Context, name, input string) ([]backend.ToolResultContent, bool, error) {
	server, tool, ok := SplitName(name)
	if !ok || !s.def.Allows(server, tool) {
		metrics.RecordToolCall(name, false)
		return errorResult("tool %s is not available", name), true, nil
	}

	args := json.RawMessage(strings.TrimSpace(input))
	if len(args) > 0 && !json.Valid(args) {
		metrics.RecordToolCall(name, false)
		return errorResult("tool input is not valid JSON: %s", input), true, nil
	}

	res, err := s.manager.CallTool(ctx, server, tool, args)
	if err != nil {
		metrics.RecordToolCall(name, false)
		return nil, false, err
	}
	metrics.RecordToolCall(name, !res.IsError)
	return resultContent(res), res.IsError, nil
}

func errorResult(format string, args ...any) []backend.ToolResultContent {
	return []backend.ToolResultContent{{Type: backend.BlockText, Text: fmt.Sprintf(format, args...)}}
}

// inputSchema converts a listed tool schema, which arrives as decoded
// JSON, into a typed schema. Tools without one take an empty object.
func inputSchema(raw any) (*jsonschema.Schema, error) {
	schema := &jsonschema.Schema{}
	if raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal input schema: %w", err)
		}
		if err := json.Unmarshal(data, schema); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input schema: %w", err)
		}
	}
	if schema.Type == "" && len(schema.Types) == 0 {
		schema.Type = "object"
	}
	return schema, nil
}

// resultContent converts MCP content to tool result content. Kinds a
// tool result cannot carry are rendered as JSON text.
func resultContent(res *mcp.CallToolResult) []backend.ToolResultContent {
	var out []backend.ToolResultContent
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcp.TextContent:
			out = append(out, backend.ToolResultContent{Type: backend.BlockText, Text: v.Text})
		case *mcp.ImageContent:
			out = append(out, backend.ToolResultContent{
				Type: backend.BlockImage,
				Source: &backend.ImageSource{
					Type:      backend.ImageSourceBase64,
					MediaType: v.MIMEType,
					Data:      base64.StdEncoding.EncodeToString(v.Data),
				},
			})
		default:
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			out = append(out, backend.ToolResultContent{Type: backend.BlockText, Text: string(data)})
		}
	}
	if len(out) == 0 && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			out = append(out, backend.ToolResultContent{Type: backend.BlockText, Text: string(data)})
		}
	}
	return out
}
