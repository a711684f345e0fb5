package runtime

import (
	"context"
	"sync"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/metrics"
)

// Option configures a Runtime
type Option func(*Runtime)

// WithMaxTokens sets the per-turn output limit for spawned agents
func WithMaxTokens(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// SpawnOption configures one spawned agent
type SpawnOption func(*agentTask)

// WithTools attaches a tool provider to the agent
func WithTools(p ToolProvider) SpawnOption {
	return func(t *agentTask) {
		t.tools = p
	}
}

// WithHistory seeds the agent's conversation. A history ending in a user
// message starts a turn immediately.
func WithHistory(messages []backend.InputMessage) SpawnOption {
	return func(t *agentTask) {
		for _, m := range messages {
			t.state.Messages = append(t.state.Messages, m.Clone())
		}
	}
}

type agentEntry struct {
	task   *agentTask
	cancel context.CancelCauseFunc
}

// Runtime runs agents concurrently and multiplexes their events into a
// single stream.
//
// Every agent has an unbounded command queue and event queue. A relay
// goroutine per agent forwards events from its queue to the shared out
// channel one at a time, so events of one agent arrive in order. When an
// agent's task ends, Completed or Terminated is queued after its last
// event.
type Runtime struct {
	mu      sync.Mutex
	agents  map[AgentHandle]*agentEntry
	spawned bool

	out       chan AgentEvent
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	maxTokens int
}

// New creates an empty runtime
func New(opts ...Option) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		agents:    make(map[AgentHandle]*agentEntry),
		out:       make(chan AgentEvent),
		ctx:       ctx,
		cancel:    cancel,
		maxTokens: backend.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Spawn starts an agent running def against b and returns immediately.
// A nil def runs the built-in default agent.
func (r *Runtime) Spawn(b backend.Backend, model string, def *definition.Agent, opts ...SpawnOption) AgentHandle {
	if def == nil {
		def = definition.Default()
	}
	h := newHandle(def.Name)
	task := &agentTask{
		handle:    h,
		backend:   b,
		model:     model,
		maxTokens: r.maxTokens,
		state:     AgentState{Definition: def.Clone()},
		commands:  newQueue[Command](),
		events:    newQueue[AgentEvent](),
	}
	for _, opt := range opts {
		opt(task)
	}

	ctx, cancel := context.WithCancelCause(r.ctx)
	ctx = logger.WithAgent(ctx, h.Name, h.ID.String())

	r.mu.Lock()
	r.agents[h] = &agentEntry{task: task, cancel: cancel}
	r.spawned = true
	r.mu.Unlock()

	metrics.RecordAgentStart()
	logger.InfoContext(ctx, "agent spawned", "backend", b.Name(), "model", model)

	r.wg.Add(2)
	go r.runTask(ctx, task, cancel)
	go r.relay(task)
	return h
}

func (r *Runtime) runTask(ctx context.Context, task *agentTask, cancel context.CancelCauseFunc) {
	defer r.wg.Done()
	err := task.run(ctx)

	// closing the command queue and dropping the entry under one lock
	// makes a racing Send fail instead of queueing a command nobody reads
	r.mu.Lock()
	task.commands.close()
	delete(r.agents, task.handle)
	r.mu.Unlock()
	cancel(nil)

	final := AgentEvent{Agent: task.handle, Kind: EventCompleted}
	if err != nil {
		final = AgentEvent{Agent: task.handle, Kind: EventTerminated, Reason: err.Error()}
		metrics.RecordAgentEnd("terminated")
		logger.WarnContext(ctx, "agent terminated", "error", err)
	} else {
		metrics.RecordAgentEnd("completed")
		logger.InfoContext(ctx, "agent completed")
	}

	if r.ctx.Err() == nil && task.events.push(final) {
		metrics.QueuedEvents.Inc()
	}
	task.events.close()
}

// relay forwards the agent's events to out until its queue is drained
// after the task ended, or the runtime is closed
func (r *Runtime) relay(task *agentTask) {
	defer r.wg.Done()
	// pushes after the relay has gone would otherwise count forever
	defer func() { metrics.QueuedEvents.Sub(float64(task.events.discard())) }()
	for {
		ev, err := task.events.pop(r.ctx)
		if err != nil {
			return
		}
		metrics.QueuedEvents.Dec()

		select {
		case r.out <- ev:
			metrics.RecordEventRelayed(string(ev.Kind))
		case <-r.ctx.Done():
			return
		}
	}
}

// Send delivers cmd to the agent. Terminate is handled here: it cancels
// the agent, aborting any in-flight turn, and the agent ends with
// ErrAgentTerminated.
func (r *Runtime) Send(h AgentHandle, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.agents[h]
	if !ok {
		return &AgentNotFoundError{Agent: h}
	}

	if cmd.Kind == CommandTerminate {
		entry.cancel(agentError(ErrAgentTerminated, h))
		return nil
	}
	if !entry.task.commands.push(cmd) {
		return &AgentNotFoundError{Agent: h}
	}
	return nil
}

// Recv waits for the next event from any agent. Before the first Spawn it
// fails with ErrNoRunningAgents; afterwards it blocks until an event
// arrives, ctx is done or the runtime is closed.
func (r *Runtime) Recv(ctx context.Context) (*AgentEvent, error) {
	r.mu.Lock()
	spawned := r.spawned
	r.mu.Unlock()
	if !spawned {
		return nil, ErrNoRunningAgents
	}

	select {
	case ev := <-r.out:
		return &ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.ctx.Done():
		return nil, ErrRuntimeClosed
	}
}

// Agents returns the handles of agents whose task is still running
func (r *Runtime) Agents() []AgentHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]AgentHandle, 0, len(r.agents))
	for h := range r.agents {
		handles = append(handles, h)
	}
	return handles
}

// Close cancels every agent and waits for their goroutines to exit.
// Undelivered events are dropped.
func (r *Runtime) Close() error {
	r.mu.Lock()
	for h, entry := range r.agents {
		entry.cancel(agentError(ErrRuntimeClosed, h))
	}
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
	return nil
}
