package runtime

import (
	"errors"
	"fmt"

	"github.com/HyphaGroup/kepoki/internal/backend"
)

var (
	ErrNoRunningAgents      = errors.New("attempted to communicate with the runtime without running agents")
	ErrAgentNotFound        = errors.New("agent does not exist")
	ErrAgentTerminated      = errors.New("agent manually terminated")
	ErrCommandChannelClosed = errors.New("agent command channel closed unexpectedly")
	ErrEventReceiverClosed  = errors.New("agent event receiver closed unexpectedly")
	ErrNoMessageReceived    = errors.New("no message received from backend")
	ErrProtocolViolation    = errors.New("protocol violation")
	ErrRuntimeClosed        = errors.New("runtime closed")
)

// AgentNotFoundError reports a handle the runtime has no running agent for
type AgentNotFoundError struct {
	Agent AgentHandle
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent does not exist: %s", e.Agent)
}

// Is matches ErrAgentNotFound
func (e *AgentNotFoundError) Is(target error) bool {
	return target == ErrAgentNotFound
}

// ProtocolViolation reports an event that is not allowed in the
// assembler's current state
type ProtocolViolation struct {
	Event  backend.EventType
	Reason string
}

func (e *ProtocolViolation) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("protocol violation: %s", e.Reason)
	}
	return fmt.Sprintf("protocol violation at %s: %s", e.Event, e.Reason)
}

// Is matches ErrProtocolViolation
func (e *ProtocolViolation) Is(target error) bool {
	return target == ErrProtocolViolation
}

// agentError attaches the agent name to a task-level sentinel so the
// terminated reason names the agent
func agentError(sentinel error, h AgentHandle) error {
	return fmt.Errorf("%w: %s", sentinel, h)
}
