// Package runtime hosts concurrently running agents and routes commands to
// them and events from them.
//
// handle.go - Agent identity
//
// This file contains:
// - AgentHandle, the comparable identity of a spawned agent
// - AgentState, the snapshot emitted for DumpState

package runtime

import (
	"github.com/google/uuid"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
)

// AgentHandle identifies a spawned agent. Two spawns of the same
// definition get distinct handles; IDs are never reused.
type AgentHandle struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

func newHandle(name string) AgentHandle {
	return AgentHandle{Name: name, ID: uuid.New()}
}

// String renders the agent name
func (h AgentHandle) String() string {
	return h.Name
}

// AgentState is a point-in-time snapshot of an agent
type AgentState struct {
	Definition *definition.Agent      `json:"definition"`
	Messages   []backend.InputMessage `json:"messages"`
	Paused     bool                   `json:"paused"`
}

// Clone returns a deep copy
func (s *AgentState) Clone() *AgentState {
	out := &AgentState{
		Definition: s.Definition.Clone(),
		Messages:   make([]backend.InputMessage, len(s.Messages)),
		Paused:     s.Paused,
	}
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}
