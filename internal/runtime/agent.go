package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/metrics"
)

// ToolProvider supplies tools to an agent and executes the calls the
// model makes to them
type ToolProvider interface {
	// Tools lists the tools offered to the model
	Tools(ctx context.Context) ([]backend.Tool, error)
	// CallTool runs a tool with the raw JSON input accumulated from the
	// stream. A tool that ran but failed reports isError with no error.
	CallTool(ctx context.Context, name, input string) (content []backend.ToolResultContent, isError bool, err error)
}

// agentTask owns one agent's state. Only the goroutine running run reads
// or writes state.
type agentTask struct {
	handle    AgentHandle
	backend   backend.Backend
	model     string
	maxTokens int
	tools     ToolProvider

	state    AgentState
	commands *queue[Command]
	events   *queue[AgentEvent]
}

// run processes commands and turns until Exit, a failure or cancellation.
// A nil return is a normal completion.
func (t *agentTask) run(ctx context.Context) error {
	for {
		exit, err := t.drainCommands(ctx)
		if err != nil || exit {
			return err
		}

		if t.turnDue() {
			if err := t.turn(ctx); err != nil {
				return err
			}
			continue
		}

		cmd, err := t.commands.pop(ctx)
		if errors.Is(err, errQueueClosed) {
			return agentError(ErrCommandChannelClosed, t.handle)
		}
		if err != nil {
			return cancelled(ctx)
		}
		exit, err = t.apply(ctx, cmd)
		if err != nil || exit {
			return err
		}
	}
}

// drainCommands applies every queued command without waiting
func (t *agentTask) drainCommands(ctx context.Context) (bool, error) {
	for {
		if ctx.Err() != nil {
			return false, cancelled(ctx)
		}
		cmd, ok, closed := t.commands.tryPop()
		if closed {
			return false, agentError(ErrCommandChannelClosed, t.handle)
		}
		if !ok {
			return false, nil
		}
		exit, err := t.apply(ctx, cmd)
		if err != nil || exit {
			return exit, err
		}
	}
}

func (t *agentTask) apply(ctx context.Context, cmd Command) (bool, error) {
	logger.DebugContext(ctx, "agent command", "command", cmd.Kind)

	switch cmd.Kind {
	case CommandExit:
		return true, nil
	case CommandPause:
		t.state.Paused = true
	case CommandUnpause:
		t.state.Paused = false
	case CommandTerminate:
		return false, agentError(ErrAgentTerminated, t.handle)
	case CommandDumpState:
		if err := t.emit(AgentEvent{Kind: EventStateDump, State: t.state.Clone()}); err != nil {
			return false, err
		}
	case CommandUserMessage:
		t.state.Messages = append(t.state.Messages, backend.NewUserText(cmd.Text))
	default:
		logger.WarnContext(ctx, "ignoring unknown command", "command", cmd.Kind)
	}
	return false, nil
}

// turnDue reports whether the history ends with a user message the
// model has not answered yet
func (t *agentTask) turnDue() bool {
	n := len(t.state.Messages)
	return !t.state.Paused && n > 0 && t.state.Messages[n-1].Role == backend.RoleUser
}

func (t *agentTask) emit(ev AgentEvent) error {
	ev.Agent = t.handle
	if !t.events.push(ev) {
		return agentError(ErrEventReceiverClosed, t.handle)
	}
	metrics.QueuedEvents.Inc()
	return nil
}

func (t *agentTask) request(ctx context.Context) (*backend.MessagesRequest, error) {
	temperature := t.state.Definition.Temperature
	req := &backend.MessagesRequest{
		Model:       t.model,
		MaxTokens:   t.maxTokens,
		System:      t.state.Definition.Prompt,
		Temperature: &temperature,
		Messages:    make([]backend.InputMessage, len(t.state.Messages)),
	}
	for i, m := range t.state.Messages {
		req.Messages[i] = m.Clone()
	}

	if t.tools != nil {
		tools, err := t.tools.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		if len(tools) > 0 {
			req.Tools = tools
			req.ToolChoice = &backend.ToolChoice{Type: backend.ToolChoiceAuto}
		}
	}
	return req, nil
}

// turn sends the history to the backend, relays every streamed event and
// appends the assembled reply. Backend errors are returned as they are so
// the terminated reason carries the provider's own message.
func (t *agentTask) turn(ctx context.Context) error {
	started := time.Now()
	fail := func(err error) error {
		metrics.RecordTurn(t.backend.Name(), "error", started)
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		return err
	}

	req, err := t.request(ctx)
	if err != nil {
		return fail(err)
	}

	logger.DebugContext(ctx, "starting turn", "backend", t.backend.Name(), "messages", len(req.Messages), "tools", len(req.Tools))
	stream, err := t.backend.Messages(ctx, req)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = stream.Close() }()

	asm := NewAssembler()
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
		relayed, err := streamEvent(ev)
		if err != nil {
			return fail(err)
		}
		if err := t.emit(relayed); err != nil {
			return fail(err)
		}
		if err := asm.Apply(ev); err != nil {
			return fail(err)
		}
	}

	msg, err := asm.Finish()
	if errors.Is(err, ErrNoMessageReceived) {
		err = agentError(ErrNoMessageReceived, t.handle)
	}
	if err != nil {
		return fail(err)
	}

	t.state.Messages = append(t.state.Messages, msg.ToInput())
	if err := t.emit(AgentEvent{Kind: EventMessage, Message: msg.Clone()}); err != nil {
		return fail(err)
	}
	metrics.RecordTurn(t.backend.Name(), "ok", started)

	if t.tools != nil && msg.StopReason != nil && *msg.StopReason == backend.StopToolUse {
		return t.callTools(ctx, msg)
	}
	return nil
}

// callTools answers every tool_use block of msg with one user message of
// tool results, which makes the next turn due
func (t *agentTask) callTools(ctx context.Context, msg *backend.Message) error {
	var results []backend.ContentBlock
	for _, block := range msg.Content {
		if block.Type != backend.BlockToolUse {
			continue
		}
		content, isError, err := t.tools.CallTool(ctx, block.Name, block.Input)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx)
			}
			logger.WarnContext(ctx, "tool call failed", "tool", block.Name, "error", err)
			content = []backend.ToolResultContent{{Type: backend.BlockText, Text: err.Error()}}
			isError = true
		}
		results = append(results, backend.NewToolResult(block.ID, content, isError))
	}
	if len(results) == 0 {
		return nil
	}
	t.state.Messages = append(t.state.Messages, backend.InputMessage{Role: backend.RoleUser, Content: results})
	return nil
}

// cancelled converts a cancelled task context into the error the task
// ends with
func cancelled(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
