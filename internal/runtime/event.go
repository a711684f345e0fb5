package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/HyphaGroup/kepoki/internal/backend"
)

// EventKind identifies an agent event variant
type EventKind string

const (
	EventPing              EventKind = "Ping"
	EventMessageStart      EventKind = "MessageStart"
	EventMessageDelta      EventKind = "MessageDelta"
	EventMessageStop       EventKind = "MessageStop"
	EventMessage           EventKind = "Message"
	EventContentBlockStart EventKind = "ContentBlockStart"
	EventContentBlockDelta EventKind = "ContentBlockDelta"
	EventContentBlockStop  EventKind = "ContentBlockStop"
	EventTerminated        EventKind = "Terminated"
	EventCompleted         EventKind = "Completed"
	EventStateDump         EventKind = "StateDump"
)

var streamKinds = map[backend.EventType]EventKind{
	backend.EventPing:              EventPing,
	backend.EventMessageStart:      EventMessageStart,
	backend.EventMessageDelta:      EventMessageDelta,
	backend.EventMessageStop:       EventMessageStop,
	backend.EventContentBlockStart: EventContentBlockStart,
	backend.EventContentBlockDelta: EventContentBlockDelta,
	backend.EventContentBlockStop:  EventContentBlockStop,
}

// AgentEvent is something an agent reports. Which payload field is set
// depends on Kind:
//   - relayed backend events carry Stream
//   - Message carries the assembled Message of a completed turn
//   - Terminated carries Reason
//   - Completed carries only Agent
//   - StateDump carries State
//
// Agent is filled in by the runtime and is not part of the JSON form,
// which tags the variant by name: "Ping", {"Terminated": "reason"} and so
// on.
type AgentEvent struct {
	Agent   AgentHandle
	Kind    EventKind
	Stream  *backend.Event
	Message *backend.Message
	Reason  string
	State   *AgentState
}

// streamEvent wraps a backend event for relaying
func streamEvent(ev *backend.Event) (AgentEvent, error) {
	kind, ok := streamKinds[ev.Type]
	if !ok {
		return AgentEvent{}, fmt.Errorf("unknown backend event type %q", ev.Type)
	}
	return AgentEvent{Kind: kind, Stream: ev.Clone()}, nil
}

// Final reports whether no further events follow for the agent
func (e *AgentEvent) Final() bool {
	return e.Kind == EventCompleted || e.Kind == EventTerminated
}

// MarshalJSON encodes the tagged form
func (e AgentEvent) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Kind {
	case EventPing, EventMessageStop:
		return json.Marshal(string(e.Kind))
	case EventMessageStart, EventMessageDelta, EventContentBlockStart, EventContentBlockDelta, EventContentBlockStop:
		if e.Stream == nil {
			return nil, fmt.Errorf("%s event without payload", e.Kind)
		}
		payload = e.Stream
	case EventMessage:
		payload = e.Message
	case EventTerminated:
		payload = e.Reason
	case EventCompleted:
		payload = e.Agent
	case EventStateDump:
		payload = e.State
	default:
		return nil, fmt.Errorf("unknown event %q", e.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{string(e.Kind): raw})
}

// UnmarshalJSON decodes the tagged form. For Completed the handle is
// restored into Agent.
func (e *AgentEvent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var kind string
		if err := json.Unmarshal(data, &kind); err != nil {
			return err
		}
		switch EventKind(kind) {
		case EventPing:
			*e = AgentEvent{Kind: EventPing, Stream: backend.Ping()}
		case EventMessageStop:
			*e = AgentEvent{Kind: EventMessageStop, Stream: backend.MessageStop()}
		default:
			return fmt.Errorf("unknown unit event %q", kind)
		}
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("event must be a string or an object: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("event object must have exactly one key, got %d", len(tagged))
	}

	for kind, payload := range tagged {
		out := AgentEvent{Kind: EventKind(kind)}
		var err error
		switch out.Kind {
		case EventMessageStart, EventMessageDelta, EventContentBlockStart, EventContentBlockDelta, EventContentBlockStop:
			out.Stream = &backend.Event{}
			err = json.Unmarshal(payload, out.Stream)
		case EventMessage:
			out.Message = &backend.Message{}
			err = json.Unmarshal(payload, out.Message)
		case EventTerminated:
			err = json.Unmarshal(payload, &out.Reason)
		case EventCompleted:
			err = json.Unmarshal(payload, &out.Agent)
		case EventStateDump:
			out.State = &AgentState{}
			err = json.Unmarshal(payload, out.State)
		default:
			return fmt.Errorf("unknown event %q", kind)
		}
		if err != nil {
			return fmt.Errorf("%s payload: %w", kind, err)
		}
		*e = out
	}
	return nil
}
