package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommandKind identifies a command variant
type CommandKind string

const (
	CommandExit        CommandKind = "Exit"
	CommandPause       CommandKind = "Pause"
	CommandUnpause     CommandKind = "Unpause"
	CommandTerminate   CommandKind = "Terminate"
	CommandDumpState   CommandKind = "DumpState"
	CommandUserMessage CommandKind = "UserMessage"
)

// Command is an instruction sent to an agent. Text is only meaningful for
// CommandUserMessage.
//
// The JSON form tags the variant by name: unit commands are bare strings
// ("Exit") and UserMessage is {"UserMessage": "text"}.
type Command struct {
	Kind CommandKind
	Text string
}

// UserMessage builds a command appending a user message to the history
func UserMessage(text string) Command {
	return Command{Kind: CommandUserMessage, Text: text}
}

// MarshalJSON encodes the tagged form
func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CommandExit, CommandPause, CommandUnpause, CommandTerminate, CommandDumpState:
		return json.Marshal(string(c.Kind))
	case CommandUserMessage:
		return json.Marshal(map[string]string{string(c.Kind): c.Text})
	}
	return nil, fmt.Errorf("unknown command %q", c.Kind)
}

// UnmarshalJSON decodes the tagged form
func (c *Command) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var kind string
		if err := json.Unmarshal(data, &kind); err != nil {
			return err
		}
		switch k := CommandKind(kind); k {
		case CommandExit, CommandPause, CommandUnpause, CommandTerminate, CommandDumpState:
			*c = Command{Kind: k}
			return nil
		case CommandUserMessage:
			return fmt.Errorf("command %s requires a payload", k)
		}
		return fmt.Errorf("unknown command %q", kind)
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("command must be a string or an object: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("command object must have exactly one key, got %d", len(tagged))
	}
	for kind, payload := range tagged {
		if CommandKind(kind) != CommandUserMessage {
			return fmt.Errorf("unknown command %q", kind)
		}
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return fmt.Errorf("UserMessage payload: %w", err)
		}
		*c = UserMessage(text)
	}
	return nil
}
