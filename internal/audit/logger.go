// Package audit records who changed the agent registry and who ran which
// agent through kepo serve.
package audit

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Operation is an auditable action
type Operation string

const (
	OpAgentRegister Operation = "agent.register"
	OpAgentDelete   Operation = "agent.delete"
	OpAgentRestore  Operation = "agent.restore"
	OpSessionOpen   Operation = "session.open"
	OpSessionClose  Operation = "session.close"
)

// Event is one audit record. Principal is the serve token name, or the
// local user for CLI operations.
type Event struct {
	Timestamp time.Time
	Operation Operation
	Principal string
	Agent     string
	AgentID   string
	Success   bool
	Error     string
	Details   map[string]any
}

// Logger writes audit records as JSON lines
type Logger struct {
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process audit logger, which writes to stderr since
// stdout may carry an event stream
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, true)
	})
	return defaultLogger
}

// New creates an audit logger writing to w
func New(w io.Writer, enabled bool) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{
		logger:  slog.New(handler),
		enabled: enabled,
	}
}

// SetEnabled enables or disables audit logging
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Log records an audit event
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()

	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.Bool("audit", true),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
		slog.Time("at", event.Timestamp),
	}
	if event.Principal != "" {
		attrs = append(attrs, slog.String("principal", event.Principal))
	}
	if event.Agent != "" {
		attrs = append(attrs, slog.String("agent", event.Agent))
	}
	if event.AgentID != "" {
		attrs = append(attrs, slog.String("agent_id", event.AgentID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, slog.Any("details", event.Details))
	}

	l.logger.Info("AUDIT", attrs...)
}

// Record logs op on agent, successful when err is nil
func (l *Logger) Record(op Operation, principal, agent string, err error) {
	event := &Event{
		Operation: op,
		Principal: principal,
		Agent:     agent,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Log records event on the default logger
func Log(event *Event) {
	Default().Log(event)
}

// Record logs op on the default logger
func Record(op Operation, principal, agent string, err error) {
	Default().Record(op, principal, agent, err)
}
