// Package backend provides the model backend abstraction layer.
//
// content.go - Conversation content types
//
// This file contains:
// - Role, InputMessage and Message
// - ContentBlock tagged variant (text, image, tool_use, tool_result)
// - ImageSource and ToolResultContent
// - StopReason values
//
// ContentBlock JSON uses the {"type": ...} tagged layout. A tool_use input
// is held as the raw accumulated JSON text and written back out as a JSON
// value when it parses.

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role is the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies a ContentBlock variant
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// StopReason explains why the model stopped generating
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
	StopPauseTurn    StopReason = "pause_turn"
	StopRefusal      StopReason = "refusal"
)

// InputMessage is one entry of conversation history
type InputMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserText builds a user message holding a single text block
func NewUserText(text string) InputMessage {
	return InputMessage{Role: RoleUser, Content: []ContentBlock{NewText(text)}}
}

// Clone returns a deep copy of the message
func (m InputMessage) Clone() InputMessage {
	out := InputMessage{Role: m.Role, Content: make([]ContentBlock, len(m.Content))}
	for i, b := range m.Content {
		out.Content[i] = b.Clone()
	}
	return out
}

// Message is a complete model response
type Message struct {
	ID           string         `json:"id"`
	Role         Role           `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *StopReason    `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
}

// Clone returns a deep copy of the message
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Content = make([]ContentBlock, len(m.Content))
	for i, b := range m.Content {
		out.Content[i] = b.Clone()
	}
	if m.StopReason != nil {
		r := *m.StopReason
		out.StopReason = &r
	}
	if m.StopSequence != nil {
		s := *m.StopSequence
		out.StopSequence = &s
	}
	return &out
}

// ToInput converts a response into a history entry
func (m *Message) ToInput() InputMessage {
	return InputMessage{Role: RoleAssistant, Content: m.Clone().Content}
}

// ImageSourceType identifies how image data is supplied
type ImageSourceType string

const (
	ImageSourceBase64 ImageSourceType = "base64"
	ImageSourceURL    ImageSourceType = "url"
)

// Supported image media types
const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeGIF  = "image/gif"
	MediaTypeWebP = "image/webp"
)

// ImageSource is either inline base64 data or a URL
type ImageSource struct {
	Type      ImageSourceType `json:"type"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
	URL       string          `json:"url,omitempty"`
}

// ToolResultContent is one piece of a tool result
type ToolResultContent struct {
	Type   BlockType    `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ContentBlock is one unit of message content.
// Only the fields belonging to Type are meaningful.
type ContentBlock struct {
	Type BlockType

	// text
	Text string

	// image
	Source *ImageSource

	// tool_use; Input is the raw JSON text, possibly still partial
	ID    string
	Name  string
	Input string

	// tool_result
	ToolUseID string
	Content   []ToolResultContent
	IsError   *bool
}

// NewText builds a text block
func NewText(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewImage builds an image block
func NewImage(source ImageSource) ContentBlock {
	return ContentBlock{Type: BlockImage, Source: &source}
}

// NewToolUse builds a tool_use block
func NewToolUse(id, name, input string) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// NewToolResult builds a tool_result block
func NewToolResult(toolUseID string, content []ToolResultContent, isError bool) ContentBlock {
	b := ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
	if isError {
		b.IsError = &isError
	}
	return b
}

// Clone returns a deep copy of the block
func (b ContentBlock) Clone() ContentBlock {
	out := b
	if b.Source != nil {
		s := *b.Source
		out.Source = &s
	}
	if b.Content != nil {
		out.Content = make([]ToolResultContent, len(b.Content))
		for i, c := range b.Content {
			out.Content[i] = c
			if c.Source != nil {
				s := *c.Source
				out.Content[i].Source = &s
			}
		}
	}
	if b.IsError != nil {
		v := *b.IsError
		out.IsError = &v
	}
	return out
}

type contentBlockJSON struct {
	Type      BlockType           `json:"type"`
	Text      *string             `json:"text,omitempty"`
	Source    *ImageSource        `json:"source,omitempty"`
	ID        string              `json:"id,omitempty"`
	Name      string              `json:"name,omitempty"`
	Input     json.RawMessage     `json:"input,omitempty"`
	ToolUseID string              `json:"tool_use_id,omitempty"`
	Content   []ToolResultContent `json:"content,omitempty"`
	IsError   *bool               `json:"is_error,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	out := contentBlockJSON{Type: b.Type}
	switch b.Type {
	case BlockText:
		text := b.Text
		out.Text = &text
	case BlockImage:
		if b.Source == nil {
			return nil, fmt.Errorf("image block without source")
		}
		out.Source = b.Source
	case BlockToolUse:
		out.ID = b.ID
		out.Name = b.Name
		out.Input = encodeToolInput(b.Input)
	case BlockToolResult:
		out.ToolUseID = b.ToolUseID
		out.Content = b.Content
		out.IsError = b.IsError
	default:
		return nil, fmt.Errorf("unknown content block type %q", b.Type)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var in contentBlockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = ContentBlock{Type: in.Type}
	switch in.Type {
	case BlockText:
		if in.Text == nil {
			return fmt.Errorf("text block missing text")
		}
		b.Text = *in.Text
	case BlockImage:
		if in.Source == nil {
			return fmt.Errorf("image block missing source")
		}
		b.Source = in.Source
	case BlockToolUse:
		input, err := decodeToolInput(in.Input)
		if err != nil {
			return err
		}
		b.ID, b.Name, b.Input = in.ID, in.Name, input
	case BlockToolResult:
		b.ToolUseID = in.ToolUseID
		b.Content = in.Content
		b.IsError = in.IsError
	default:
		return fmt.Errorf("unknown content block type %q", in.Type)
	}
	return nil
}

// encodeToolInput renders the accumulated input as a JSON value. Empty input
// is an empty object; input that does not parse yet is sent as a string.
func encodeToolInput(input string) json.RawMessage {
	trimmed := bytes.TrimSpace([]byte(input))
	if len(trimmed) == 0 {
		return json.RawMessage("{}")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(input)
	return quoted
}

// decodeToolInput turns a wire input value into the accumulation buffer.
// Streaming starts announce "{}" which becomes the empty buffer.
func decodeToolInput(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return "", err
	}
	if compact.String() == "{}" {
		return "", nil
	}
	return compact.String(), nil
}
