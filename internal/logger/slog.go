package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	slogger *slog.Logger
	logFile *os.File
)

// Options configures the process logger
type Options struct {
	// Output receives log lines; defaults to stderr since stdout carries events
	Output io.Writer
	// Dir, when set, also appends to a dated kepoki-YYYY-MM-DD.log file
	Dir   string
	JSON  bool
	Level string
}

// InitSlog initializes the slog-based logger
func InitSlog(opts Options) error {
	writer := opts.Output
	if writer == nil {
		writer = os.Stderr
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logFileName := "kepoki-" + time.Now().Format("2006-01-02") + ".log"
		f, err := os.OpenFile(filepath.Join(opts.Dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		writer = io.MultiWriter(writer, logFile)
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)

	return nil
}

// ParseLevel maps a config level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CloseSlog closes the slog log file
func CloseSlog() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// WithContext returns a logger with context fields
func WithContext(ctx context.Context) *slog.Logger {
	logger := Slog()

	if agent := ctx.Value(ContextKeyAgent); agent != nil {
		logger = logger.With("agent", agent)
	}
	if agentID := ctx.Value(ContextKeyAgentID); agentID != nil {
		logger = logger.With("agent_id", agentID)
	}
	if server := ctx.Value(ContextKeyServer); server != nil {
		logger = logger.With("mcp_server", server)
	}

	return logger
}

// Context keys for structured logging
type contextKey string

const (
	ContextKeyAgent   contextKey = "agent"
	ContextKeyAgentID contextKey = "agent_id"
	ContextKeyServer  contextKey = "mcp_server"
)

// WithAgent tags ctx with an agent's name and instance id
func WithAgent(ctx context.Context, name, id string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyAgent, name)
	return context.WithValue(ctx, ContextKeyAgentID, id)
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// ErrorContext logs an error with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// WarnContext logs a warning with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// DebugContext logs debug info with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}
