// Package pump connects a running agent to a line-oriented client.
//
// pump.go - Command/event pump
//
// This file contains:
// - Runtime interface the pump drives
// - Run for newline-delimited JSON over a reader and writer
// - the shared pump loop used by the stdio and websocket transports
//
// Commands use the externally tagged JSON form ("Exit", {"UserMessage":"hi"})
// and every event is written as one JSON document.

package pump

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

// Exit statuses returned by Run
const (
	ExitCompleted  = 0
	ExitTerminated = 1
)

// maxLineSize bounds a single command line
const maxLineSize = 1 << 20

// ErrClientGone ends a pump whose client stopped sending commands on a
// transport where that means the client has left
var ErrClientGone = errors.New("client disconnected")

// Runtime is the part of *runtime.Runtime the pump uses
type Runtime interface {
	Send(h runtime.AgentHandle, cmd runtime.Command) error
	Recv(ctx context.Context) (*runtime.AgentEvent, error)
}

var _ Runtime = (*runtime.Runtime)(nil)

// transport carries raw commands in and events out
type transport interface {
	// readCommand returns the next raw command, or io.EOF when input ends
	readCommand() ([]byte, error)
	writeEvent(ev *runtime.AgentEvent) error
}

// Run forwards commands read line by line from in to the agent and writes
// every event to out as a JSON line. It returns ExitCompleted or
// ExitTerminated once the agent's final event has been written.
//
// End of input does not stop the agent; Run keeps writing events until the
// agent finishes or ctx is cancelled.
func Run(ctx context.Context, rt Runtime, h runtime.AgentHandle, in io.Reader, out io.Writer) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return pump(ctx, rt, h, &lineTransport{scanner: scanner, enc: json.NewEncoder(out)}, false)
}

type lineTransport struct {
	scanner *bufio.Scanner
	enc     *json.Encoder
}

func (t *lineTransport) readCommand() ([]byte, error) {
	for t.scanner.Scan() {
		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}
		return []byte(line), nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (t *lineTransport) writeEvent(ev *runtime.AgentEvent) error {
	return t.enc.Encode(ev)
}

// pump runs the command reader in the background and the event writer in
// the calling goroutine, which is the only one that writes to t. With
// stopOnInputEnd the pump also returns ErrClientGone once input ends.
func pump(ctx context.Context, rt Runtime, h runtime.AgentHandle, t transport, stopOnInputEnd bool) (int, error) {
	ctx = logger.WithAgent(ctx, h.Name, h.ID.String())
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		readCommands(ctx, rt, h, t)
		if stopOnInputEnd {
			cancel(ErrClientGone)
		}
	}()

	for {
		ev, err := rt.Recv(ctx)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				err = cause
			}
			return ExitTerminated, fmt.Errorf("receiving event: %w", err)
		}
		if err := t.writeEvent(ev); err != nil {
			return ExitTerminated, fmt.Errorf("writing event: %w", err)
		}
		if ev.Agent != h || !ev.Final() {
			continue
		}
		if ev.Kind == runtime.EventCompleted {
			return ExitCompleted, nil
		}
		return ExitTerminated, nil
	}
}

func readCommands(ctx context.Context, rt Runtime, h runtime.AgentHandle, t transport) {
	for {
		raw, err := t.readCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.WarnContext(ctx, "command input failed", "error", err)
			}
			return
		}

		var cmd runtime.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			logger.WarnContext(ctx, "skipping malformed command", "input", string(raw), "error", err)
			continue
		}
		if err := rt.Send(h, cmd); err != nil {
			logger.WarnContext(ctx, "command not delivered", "command", cmd.Kind, "error", err)
		}
	}
}
