package bedrock

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/logger"
)

// eventStream translates ConverseStream records into canonical events.
// One record can expand into several events, so translated events are
// queued in pending.
type eventStream struct {
	ctx     context.Context
	stream  converseStream
	model   string
	pending []*backend.Event
	started map[int]bool
	ended   bool
}

func newEventStream(ctx context.Context, stream converseStream, model string) *eventStream {
	return &eventStream{
		ctx:     ctx,
		stream:  stream,
		model:   model,
		started: make(map[int]bool),
	}
}

// Recv returns the next event, or io.EOF once the record stream is done
func (s *eventStream) Recv() (*backend.Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.ended {
			return nil, io.EOF
		}

		record, ok := <-s.stream.Events()
		if !ok {
			s.ended = true
			if err := s.stream.Err(); err != nil {
				return nil, fmt.Errorf("converse stream: %w", err)
			}
			return nil, io.EOF
		}
		s.translate(record)
	}
}

// Close closes the underlying record stream
func (s *eventStream) Close() error {
	return s.stream.Close()
}

func (s *eventStream) push(events ...*backend.Event) {
	s.pending = append(s.pending, events...)
}

func (s *eventStream) translate(record types.ConverseStreamOutput) {
	switch v := record.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		role := backend.RoleAssistant
		if v.Value.Role == types.ConversationRoleUser {
			role = backend.RoleUser
		}
		s.push(backend.MessageStart(&backend.Message{
			ID:      "msg_" + uuid.New().String(),
			Role:    role,
			Model:   s.model,
			Content: []backend.ContentBlock{},
		}))

	case *types.ConverseStreamOutputMemberContentBlockStart:
		index := int(aws.ToInt32(v.Value.ContentBlockIndex))
		switch start := v.Value.Start.(type) {
		case *types.ContentBlockStartMemberToolUse:
			s.started[index] = true
			s.push(backend.ContentBlockStart(index, backend.NewToolUse(
				aws.ToString(start.Value.ToolUseId),
				aws.ToString(start.Value.Name),
				"",
			)))
		default:
			logger.WarnContext(s.ctx, "skipping unsupported content block start", "index", index, "kind", fmt.Sprintf("%T", start))
		}

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		index := int(aws.ToInt32(v.Value.ContentBlockIndex))
		switch delta := v.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			// text blocks have no start record
			if !s.started[index] {
				s.started[index] = true
				s.push(backend.ContentBlockStart(index, backend.NewText("")))
			}
			s.push(backend.TextDelta(index, delta.Value))
		case *types.ContentBlockDeltaMemberToolUse:
			s.push(backend.InputJSONDelta(index, aws.ToString(delta.Value.Input)))
		default:
			logger.WarnContext(s.ctx, "skipping unsupported content block delta", "index", index, "kind", fmt.Sprintf("%T", delta))
		}

	case *types.ConverseStreamOutputMemberContentBlockStop:
		s.push(backend.ContentBlockStop(int(aws.ToInt32(v.Value.ContentBlockIndex))))

	case *types.ConverseStreamOutputMemberMessageStop:
		reason := stopReason(v.Value.StopReason)
		s.push(
			backend.MessageDeltaEvent(backend.MessageDelta{StopReason: &reason}),
			backend.MessageStop(),
		)

	case *types.ConverseStreamOutputMemberMetadata:
		logger.DebugContext(s.ctx, "skipping converse stream metadata")

	default:
		logger.WarnContext(s.ctx, "unexpected converse stream record, ending stream", "kind", fmt.Sprintf("%T", record))
		s.ended = true
	}
}

func stopReason(reason types.StopReason) backend.StopReason {
	switch reason {
	case types.StopReasonEndTurn:
		return backend.StopEndTurn
	case types.StopReasonToolUse:
		return backend.StopToolUse
	case types.StopReasonMaxTokens:
		return backend.StopMaxTokens
	case types.StopReasonStopSequence:
		return backend.StopStopSequence
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return backend.StopRefusal
	default:
		return backend.StopReason(reason)
	}
}
