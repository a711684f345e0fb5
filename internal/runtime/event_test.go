package runtime

import (
	"encoding/json"
	"testing"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
)

func TestCommand_JSON(t *testing.T) {
	tests := []struct {
		wire string
		want Command
	}{
		{`"Exit"`, Command{Kind: CommandExit}},
		{`"Pause"`, Command{Kind: CommandPause}},
		{`"Unpause"`, Command{Kind: CommandUnpause}},
		{`"Terminate"`, Command{Kind: CommandTerminate}},
		{`"DumpState"`, Command{Kind: CommandDumpState}},
		{`{"UserMessage":"hi there"}`, UserMessage("hi there")},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			var got Command
			if err := json.Unmarshal([]byte(tt.wire), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Unmarshal() = %+v, want %+v", got, tt.want)
			}
			data, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.wire {
				t.Errorf("Marshal() = %s, want %s", data, tt.wire)
			}
		})
	}
}

func TestCommand_JSONInvalid(t *testing.T) {
	for _, wire := range []string{
		`"Jump"`,
		`"UserMessage"`,
		`{"Exit":null}`,
		`{"UserMessage":1}`,
		`{"UserMessage":"a","Pause":"b"}`,
		`42`,
	} {
		var c Command
		if err := json.Unmarshal([]byte(wire), &c); err == nil {
			t.Errorf("Unmarshal(%s) expected error, got %+v", wire, c)
		}
	}
}

func TestAgentEvent_JSON(t *testing.T) {
	h := newHandle("weather-bot")

	tests := []struct {
		name  string
		event AgentEvent
		wire  string
	}{
		{"ping", AgentEvent{Kind: EventPing, Stream: backend.Ping()}, `"Ping"`},
		{"message stop", AgentEvent{Kind: EventMessageStop, Stream: backend.MessageStop()}, `"MessageStop"`},
		{"terminated", AgentEvent{Kind: EventTerminated, Reason: "overloaded_error - busy"}, `{"Terminated":"overloaded_error - busy"}`},
		{"text delta", AgentEvent{Kind: EventContentBlockDelta, Stream: backend.TextDelta(2, "Hi")},
			`{"ContentBlockDelta":{"type":"content_block_delta","index":2,"delta":{"type":"text_delta","text":"Hi"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.wire {
				t.Errorf("Marshal() = %s, want %s", data, tt.wire)
			}
			var back AgentEvent
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if back.Kind != tt.event.Kind || back.Reason != tt.event.Reason {
				t.Errorf("Unmarshal() = %+v", back)
			}
		})
	}

	t.Run("completed carries handle", func(t *testing.T) {
		data, err := json.Marshal(AgentEvent{Agent: h, Kind: EventCompleted})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var back AgentEvent
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if back.Agent != h {
			t.Errorf("Agent = %v, want %v", back.Agent, h)
		}
	})

	t.Run("state dump", func(t *testing.T) {
		state := &AgentState{
			Definition: definition.Default(),
			Messages:   []backend.InputMessage{backend.NewUserText("hi")},
			Paused:     true,
		}
		data, err := json.Marshal(AgentEvent{Kind: EventStateDump, State: state})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var back AgentEvent
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if !back.State.Paused || back.State.Definition.Name != definition.DefaultName || len(back.State.Messages) != 1 {
			t.Errorf("State = %+v", back.State)
		}
	})
}

func TestAgentEvent_JSONInvalid(t *testing.T) {
	for _, wire := range []string{
		`"Completed"`,
		`{"Bogus":1}`,
		`{"ContentBlockDelta":{"type":"content_block_delta","index":0}}`,
		`{}`,
	} {
		var ev AgentEvent
		if err := json.Unmarshal([]byte(wire), &ev); err == nil {
			t.Errorf("Unmarshal(%s) expected error", wire)
		}
	}
}
