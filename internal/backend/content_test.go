package backend

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestContentBlock_ToolUseInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantWire  string
		wantInput string
	}{
		{"empty buffer", "", `{}`, ""},
		{"complete object", `{"city": "Paris"}`, `{"city":"Paris"}`, `{"city":"Paris"}`},
		{"partial json", `{"city": "Pa`, `"{\"city\": \"Pa"`, `{"city": "Pa`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(NewToolUse("toolu_1", "weather", tt.input))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if !strings.Contains(string(data), `"input":`+tt.wantWire) {
				t.Errorf("Marshal() = %s, want input %s", data, tt.wantWire)
			}

			var got ContentBlock
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.Input != tt.wantInput {
				t.Errorf("Input = %q, want %q", got.Input, tt.wantInput)
			}
			if got.ID != "toolu_1" || got.Name != "weather" {
				t.Errorf("ID, Name = %q, %q", got.ID, got.Name)
			}
		})
	}
}

func TestContentBlock_UnmarshalRejectsUnknownType(t *testing.T) {
	var b ContentBlock
	if err := json.Unmarshal([]byte(`{"type":"document"}`), &b); err == nil {
		t.Error("Unmarshal() expected error for unknown block type")
	}
	if err := json.Unmarshal([]byte(`{"type":"text"}`), &b); err == nil {
		t.Error("Unmarshal() expected error for text block without text")
	}
}

func TestContentBlock_EmptyTextIsKept(t *testing.T) {
	data, err := json.Marshal(NewText(""))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"type":"text","text":""}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	reason := StopEndTurn
	msg := &Message{
		ID:         "msg_1",
		Role:       RoleAssistant,
		Content:    []ContentBlock{NewText("hi")},
		StopReason: &reason,
	}
	clone := msg.Clone()
	clone.Content[0].Text = "changed"
	*clone.StopReason = StopMaxTokens

	if msg.Content[0].Text != "hi" {
		t.Errorf("original content mutated: %q", msg.Content[0].Text)
	}
	if *msg.StopReason != StopEndTurn {
		t.Errorf("original stop reason mutated: %q", *msg.StopReason)
	}
}

func TestToolResult_IsErrorOmittedWhenFalse(t *testing.T) {
	data, err := json.Marshal(NewToolResult("toolu_1", []ToolResultContent{{Type: BlockText, Text: "ok"}}, false))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "is_error") {
		t.Errorf("Marshal() = %s, want no is_error", data)
	}
}
