package runtime

import (
	"fmt"
	"maps"
	"slices"

	"github.com/HyphaGroup/kepoki/internal/backend"
)

type assemblerState int

const (
	awaitingStart assemblerState = iota
	accumulating
	completed
	violated
)

func (s assemblerState) String() string {
	switch s {
	case awaitingStart:
		return "awaiting_start"
	case accumulating:
		return "accumulating"
	case completed:
		return "completed"
	case violated:
		return "violated"
	}
	return "unknown"
}

// Assembler folds one turn's stream of events into a complete message.
//
// It starts awaiting message_start, accumulates blocks and deltas until
// message_stop and then only accepts pings. Any event that does not fit
// the current state moves it to a violated state, after which every call
// fails with the same *ProtocolViolation.
type Assembler struct {
	state     assemblerState
	message   *backend.Message
	blocks    map[int]*backend.ContentBlock
	open      map[int]bool
	violation *ProtocolViolation
}

// NewAssembler returns an assembler awaiting message_start
func NewAssembler() *Assembler {
	return &Assembler{
		blocks: make(map[int]*backend.ContentBlock),
		open:   make(map[int]bool),
	}
}

func (a *Assembler) violate(ev backend.EventType, format string, args ...any) error {
	a.state = violated
	a.violation = &ProtocolViolation{Event: ev, Reason: fmt.Sprintf(format, args...)}
	return a.violation
}

// requireOpenMessage checks that ev arrives between message_start and
// message_stop
func (a *Assembler) requireOpenMessage(ev backend.EventType) error {
	switch a.state {
	case awaitingStart:
		return a.violate(ev, "no message started")
	case completed:
		return a.violate(ev, "message already stopped")
	}
	return nil
}

// Apply folds ev into the message under construction
func (a *Assembler) Apply(ev *backend.Event) error {
	if a.state == violated {
		return a.violation
	}

	switch ev.Type {
	case backend.EventPing:
		return nil

	case backend.EventMessageStart:
		if a.state != awaitingStart {
			return a.violate(ev.Type, "message already started")
		}
		if ev.Message == nil {
			return a.violate(ev.Type, "missing message")
		}
		a.message = ev.Message.Clone()
		for i, block := range a.message.Content {
			a.blocks[i] = &block
		}
		a.message.Content = nil
		a.state = accumulating
		return nil

	case backend.EventContentBlockStart:
		if err := a.requireOpenMessage(ev.Type); err != nil {
			return err
		}
		if ev.ContentBlock == nil {
			return a.violate(ev.Type, "missing content block")
		}
		if _, exists := a.blocks[ev.Index]; exists {
			return a.violate(ev.Type, "block %d already started", ev.Index)
		}
		block := ev.ContentBlock.Clone()
		a.blocks[ev.Index] = &block
		a.open[ev.Index] = true
		return nil

	case backend.EventContentBlockDelta:
		if err := a.requireOpenMessage(ev.Type); err != nil {
			return err
		}
		if ev.Delta == nil {
			return a.violate(ev.Type, "missing delta")
		}
		block, exists := a.blocks[ev.Index]
		if !exists {
			return a.violate(ev.Type, "no block at index %d", ev.Index)
		}
		if !a.open[ev.Index] {
			return a.violate(ev.Type, "block %d already stopped", ev.Index)
		}
		switch {
		case ev.Delta.Type == backend.DeltaText && block.Type == backend.BlockText:
			block.Text += ev.Delta.Text
		case ev.Delta.Type == backend.DeltaInputJSON && block.Type == backend.BlockToolUse:
			block.Input += ev.Delta.PartialJSON
		default:
			return a.violate(ev.Type, "%s does not apply to %s block %d", ev.Delta.Type, block.Type, ev.Index)
		}
		return nil

	case backend.EventContentBlockStop:
		if err := a.requireOpenMessage(ev.Type); err != nil {
			return err
		}
		// stopping an unknown or already stopped index changes nothing
		delete(a.open, ev.Index)
		return nil

	case backend.EventMessageDelta:
		if err := a.requireOpenMessage(ev.Type); err != nil {
			return err
		}
		if ev.MessageDelta == nil {
			return a.violate(ev.Type, "missing message delta")
		}
		if ev.MessageDelta.StopReason != nil {
			reason := *ev.MessageDelta.StopReason
			a.message.StopReason = &reason
		}
		if ev.MessageDelta.StopSequence != nil {
			seq := *ev.MessageDelta.StopSequence
			a.message.StopSequence = &seq
		}
		return nil

	case backend.EventMessageStop:
		if err := a.requireOpenMessage(ev.Type); err != nil {
			return err
		}
		a.state = completed
		return nil
	}

	return a.violate(ev.Type, "unknown event type")
}

// Finish returns the assembled message once the stream has ended. Content
// is ordered by block index.
func (a *Assembler) Finish() (*backend.Message, error) {
	switch a.state {
	case violated:
		return nil, a.violation
	case awaitingStart:
		return nil, ErrNoMessageReceived
	case accumulating:
		return nil, a.violate("", "stream ended before message_stop")
	}

	msg := a.message.Clone()
	msg.Content = make([]backend.ContentBlock, 0, len(a.blocks))
	for _, index := range slices.Sorted(maps.Keys(a.blocks)) {
		msg.Content = append(msg.Content, a.blocks[index].Clone())
	}
	return msg, nil
}
