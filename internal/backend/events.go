// Package backend provides the model backend abstraction layer.
//
// events.go - Canonical streaming events
//
// This file contains:
// - EventType constants and the Event tagged variant
// - Delta (content block delta) and MessageDelta payloads
// - Event constructors used by adapters and tests
//
// Event decodes strictly: an unknown type or a missing payload is an error,
// so wire decoders can reject frames that do not match a known shape.

package backend

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a canonical streaming event
type EventType string

const (
	EventPing              EventType = "ping"
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"
)

// DeltaType identifies a content block delta variant
type DeltaType string

const (
	DeltaText      DeltaType = "text_delta"
	DeltaInputJSON DeltaType = "input_json_delta"
)

// Delta is an incremental update to one content block
type Delta struct {
	Type        DeltaType `json:"type"`
	Text        string    `json:"text,omitempty"`
	PartialJSON string    `json:"partial_json,omitempty"`
}

// MessageDelta carries message-level fields that arrive late in a stream.
// Absent fields leave earlier values unchanged.
type MessageDelta struct {
	StopReason   *StopReason `json:"stop_reason,omitempty"`
	StopSequence *string     `json:"stop_sequence,omitempty"`
}

// Event is one protocol occurrence. Which fields are set depends on Type:
// Message for message_start, Index and ContentBlock for content_block_start,
// Index and Delta for content_block_delta, Index for content_block_stop and
// MessageDelta for message_delta.
type Event struct {
	Type         EventType
	Message      *Message
	Index        int
	ContentBlock *ContentBlock
	Delta        *Delta
	MessageDelta *MessageDelta
}

// Ping builds a ping event
func Ping() *Event { return &Event{Type: EventPing} }

// MessageStart builds a message_start event
func MessageStart(msg *Message) *Event {
	return &Event{Type: EventMessageStart, Message: msg}
}

// ContentBlockStart builds a content_block_start event
func ContentBlockStart(index int, block ContentBlock) *Event {
	return &Event{Type: EventContentBlockStart, Index: index, ContentBlock: &block}
}

// TextDelta builds a content_block_delta carrying text
func TextDelta(index int, text string) *Event {
	return &Event{Type: EventContentBlockDelta, Index: index, Delta: &Delta{Type: DeltaText, Text: text}}
}

// InputJSONDelta builds a content_block_delta carrying partial tool input
func InputJSONDelta(index int, partial string) *Event {
	return &Event{Type: EventContentBlockDelta, Index: index, Delta: &Delta{Type: DeltaInputJSON, PartialJSON: partial}}
}

// ContentBlockStop builds a content_block_stop event
func ContentBlockStop(index int) *Event {
	return &Event{Type: EventContentBlockStop, Index: index}
}

// MessageDeltaEvent builds a message_delta event
func MessageDeltaEvent(delta MessageDelta) *Event {
	return &Event{Type: EventMessageDelta, MessageDelta: &delta}
}

// MessageStop builds a message_stop event
func MessageStop() *Event { return &Event{Type: EventMessageStop} }

// Clone returns a deep copy of the event
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Message = e.Message.Clone()
	if e.ContentBlock != nil {
		b := e.ContentBlock.Clone()
		out.ContentBlock = &b
	}
	if e.Delta != nil {
		d := *e.Delta
		out.Delta = &d
	}
	if e.MessageDelta != nil {
		d := *e.MessageDelta
		out.MessageDelta = &d
	}
	return &out
}

type eventJSON struct {
	Type         EventType       `json:"type"`
	Message      *Message        `json:"message,omitempty"`
	Index        *int            `json:"index,omitempty"`
	ContentBlock *ContentBlock   `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{Type: e.Type}
	index := e.Index
	switch e.Type {
	case EventPing, EventMessageStop:
	case EventMessageStart:
		out.Message = e.Message
	case EventContentBlockStart:
		out.Index = &index
		out.ContentBlock = e.ContentBlock
	case EventContentBlockDelta:
		out.Index = &index
		raw, err := json.Marshal(e.Delta)
		if err != nil {
			return nil, err
		}
		out.Delta = raw
	case EventContentBlockStop:
		out.Index = &index
	case EventMessageDelta:
		delta := e.MessageDelta
		if delta == nil {
			delta = &MessageDelta{}
		}
		raw, err := json.Marshal(delta)
		if err != nil {
			return nil, err
		}
		out.Delta = raw
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event{Type: in.Type}
	if in.Index != nil {
		e.Index = *in.Index
	}

	switch in.Type {
	case EventPing, EventMessageStop:
	case EventMessageStart:
		if in.Message == nil {
			return fmt.Errorf("message_start missing message")
		}
		e.Message = in.Message
	case EventContentBlockStart:
		if in.Index == nil || in.ContentBlock == nil {
			return fmt.Errorf("content_block_start missing index or content_block")
		}
		e.ContentBlock = in.ContentBlock
	case EventContentBlockDelta:
		if in.Index == nil || len(in.Delta) == 0 {
			return fmt.Errorf("content_block_delta missing index or delta")
		}
		var d Delta
		if err := json.Unmarshal(in.Delta, &d); err != nil {
			return fmt.Errorf("content_block_delta: %w", err)
		}
		if d.Type != DeltaText && d.Type != DeltaInputJSON {
			return fmt.Errorf("unknown delta type %q", d.Type)
		}
		e.Delta = &d
	case EventContentBlockStop:
		if in.Index == nil {
			return fmt.Errorf("content_block_stop missing index")
		}
	case EventMessageDelta:
		var d MessageDelta
		if len(in.Delta) > 0 {
			if err := json.Unmarshal(in.Delta, &d); err != nil {
				return fmt.Errorf("message_delta: %w", err)
			}
		}
		e.MessageDelta = &d
	default:
		return fmt.Errorf("unknown event type %q", in.Type)
	}
	return nil
}
