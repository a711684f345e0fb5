package bedrock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/HyphaGroup/kepoki/internal/backend"
)

// buildInput translates a canonical request into a ConverseStream input
func buildInput(req *backend.MessagesRequest) (*bedrockruntime.ConverseStreamInput, error) {
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.Model),
		InferenceConfig: buildInferenceConfig(req),
	}

	for i, msg := range req.Messages {
		m, err := buildMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		in.Messages = append(in.Messages, m)
	}

	if req.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}

	toolConfig, err := buildToolConfig(req)
	if err != nil {
		return nil, err
	}
	in.ToolConfig = toolConfig

	return in, nil
}

func buildInferenceConfig(req *backend.MessagesRequest) *types.InferenceConfiguration {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = backend.DefaultMaxTokens
	}
	cfg := &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	}
	return cfg
}

// buildToolConfig returns nil when the request carries no tools, since
// Bedrock rejects a tool configuration with an empty tool list
func buildToolConfig(req *backend.MessagesRequest) (*types.ToolConfiguration, error) {
	if len(req.Tools) == 0 {
		return nil, nil
	}

	cfg := &types.ToolConfiguration{}
	for _, tool := range req.Tools {
		schema, err := toDocumentValue(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", tool.Name, err)
		}
		spec := types.ToolSpecification{
			Name:        aws.String(tool.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}
		if tool.Description != "" {
			spec.Description = aws.String(tool.Description)
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: spec})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case backend.ToolChoiceAuto:
			cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
		case backend.ToolChoiceAny:
			cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		case backend.ToolChoiceTool:
			cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(req.ToolChoice.Name)}}
		default:
			return nil, fmt.Errorf("unknown tool choice %q", req.ToolChoice.Type)
		}
	}
	return cfg, nil
}

func buildMessage(msg backend.InputMessage) (types.Message, error) {
	out := types.Message{}
	switch msg.Role {
	case backend.RoleUser:
		out.Role = types.ConversationRoleUser
	case backend.RoleAssistant:
		out.Role = types.ConversationRoleAssistant
	default:
		return out, fmt.Errorf("unknown role %q", msg.Role)
	}

	for _, block := range msg.Content {
		b, err := buildContentBlock(block)
		if err != nil {
			return out, err
		}
		out.Content = append(out.Content, b)
	}
	return out, nil
}

func buildContentBlock(block backend.ContentBlock) (types.ContentBlock, error) {
	switch block.Type {
	case backend.BlockText:
		return &types.ContentBlockMemberText{Value: block.Text}, nil

	case backend.BlockImage:
		img, err := buildImageBlock(block.Source)
		if err != nil {
			return nil, err
		}
		return &types.ContentBlockMemberImage{Value: img}, nil

	case backend.BlockToolUse:
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(block.ID),
			Name:      aws.String(block.Name),
			Input:     document.NewLazyDocument(toolInputValue(block.Input)),
		}}, nil

	case backend.BlockToolResult:
		result := types.ToolResultBlock{ToolUseId: aws.String(block.ToolUseID)}
		for _, c := range block.Content {
			switch c.Type {
			case backend.BlockText:
				result.Content = append(result.Content, &types.ToolResultContentBlockMemberText{Value: c.Text})
			case backend.BlockImage:
				img, err := buildImageBlock(c.Source)
				if err != nil {
					return nil, err
				}
				result.Content = append(result.Content, &types.ToolResultContentBlockMemberImage{Value: img})
			default:
				return nil, fmt.Errorf("unsupported tool result content %q", c.Type)
			}
		}
		if block.IsError != nil {
			if *block.IsError {
				result.Status = types.ToolResultStatusError
			} else {
				result.Status = types.ToolResultStatusSuccess
			}
		}
		return &types.ContentBlockMemberToolResult{Value: result}, nil
	}
	return nil, fmt.Errorf("unknown content block type %q", block.Type)
}

func buildImageBlock(source *backend.ImageSource) (types.ImageBlock, error) {
	if source == nil {
		return types.ImageBlock{}, fmt.Errorf("image without source")
	}
	if source.Type != backend.ImageSourceBase64 {
		return types.ImageBlock{}, fmt.Errorf("image source %q is not supported, only base64", source.Type)
	}

	var format types.ImageFormat
	switch strings.ToLower(source.MediaType) {
	case backend.MediaTypeJPEG:
		format = types.ImageFormatJpeg
	case backend.MediaTypePNG:
		format = types.ImageFormatPng
	case backend.MediaTypeGIF:
		format = types.ImageFormatGif
	case backend.MediaTypeWebP:
		format = types.ImageFormatWebp
	default:
		return types.ImageBlock{}, fmt.Errorf("unsupported image media type %q", source.MediaType)
	}

	data, err := base64.StdEncoding.DecodeString(source.Data)
	if err != nil {
		return types.ImageBlock{}, fmt.Errorf("decoding image data: %w", err)
	}
	return types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: data},
	}, nil
}

// toolInputValue parses accumulated tool input. Empty input is an empty
// object and unparseable input is passed through as a string document.
func toolInputValue(input string) any {
	if strings.TrimSpace(input) == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return input
	}
	return v
}

// toDocumentValue round-trips v through JSON so the document encoder sees
// plain maps and slices instead of struct tags it does not understand
func toDocumentValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]any{"type": "object"}, nil
	}
	return out, nil
}
