package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

var (
	chatURL   string
	chatToken string
)

var chatCmd = &cobra.Command{
	Use:   "chat [agent]",
	Short: "Chat with an agent served by kepo serve",
	Long: `Chat with an agent over a kepo serve websocket.

Lines are sent as user messages except for these commands:
  /pause /unpause   hold or resume the agent's turns
  /dump             print the agent's state
  /exit             let the agent finish and quit
  /terminate        stop the agent immediately`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().StringVar(&chatURL, "url", "ws://localhost:8080", "kepo serve base URL")
		c.Flags().StringVar(&chatToken, "token", os.Getenv("KEPOKI_TOKEN"), "Bearer token for kepo serve (default $KEPOKI_TOKEN)")
	}
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	name := definition.DefaultName
	if len(args) > 0 {
		name = args[0]
	}

	ctx, cancel := setupContext()
	defer cancel()

	endpoint, err := chatEndpoint(chatURL, name)
	if err != nil {
		return err
	}
	header := http.Header{}
	if chatToken != "" {
		header.Set("Authorization", "Bearer "+chatToken)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connecting to %s: %s", endpoint, resp.Status)
		}
		return fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	defer func() { _ = conn.Close() }()

	out := cmd.OutOrStdout()
	color.New(color.Faint).Fprintf(out, "connected to %s, /exit to quit\n", name)

	w := &commandWriter{conn: conn}
	done := make(chan error, 1)
	go func() { done <- readEvents(conn, out) }()
	go sendLines(w, cmd.InOrStdin())

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = w.send(runtime.Command{Kind: runtime.CommandTerminate})
		return nil
	}
}

// commandWriter serializes writes; a websocket allows one writer at a time
type commandWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *commandWriter) send(c runtime.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(c)
}

// chatEndpoint builds the websocket URL for an agent. http and https base
// URLs are accepted as well.
func chatEndpoint(base, agent string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid url %q: scheme must be ws, wss, http or https", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/agents/" + url.PathEscape(agent) + "/ws"
	return u.String(), nil
}

// parseChatLine maps an input line to a command. Blank lines yield false.
func parseChatLine(line string) (runtime.Command, bool) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return runtime.Command{}, false
	case "/exit":
		return runtime.Command{Kind: runtime.CommandExit}, true
	case "/pause":
		return runtime.Command{Kind: runtime.CommandPause}, true
	case "/unpause":
		return runtime.Command{Kind: runtime.CommandUnpause}, true
	case "/dump":
		return runtime.Command{Kind: runtime.CommandDumpState}, true
	case "/terminate":
		return runtime.Command{Kind: runtime.CommandTerminate}, true
	}
	return runtime.UserMessage(line), true
}

func sendLines(w *commandWriter, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		command, ok := parseChatLine(scanner.Text())
		if !ok {
			continue
		}
		if err := w.send(command); err != nil {
			return
		}
	}
}

// readEvents renders events until the server closes the connection
func readEvents(conn *websocket.Conn, out io.Writer) error {
	for {
		var ev runtime.AgentEvent
		if err := conn.ReadJSON(&ev); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("reading event: %w", err)
		}
		renderEvent(out, &ev)
	}
}

// renderEvent prints the parts of an event a person reads: streamed text,
// tool calls and how the agent ended
func renderEvent(out io.Writer, ev *runtime.AgentEvent) {
	switch ev.Kind {
	case runtime.EventContentBlockStart:
		if ev.Stream == nil {
			return
		}
		if block := ev.Stream.ContentBlock; block != nil && block.Type == backend.BlockToolUse {
			color.New(color.FgYellow).Fprintf(out, "\n[tool %s]\n", block.Name)
		}
	case runtime.EventContentBlockDelta:
		if ev.Stream == nil {
			return
		}
		if d := ev.Stream.Delta; d != nil && d.Type == backend.DeltaText {
			fmt.Fprint(out, d.Text)
		}
	case runtime.EventMessage:
		fmt.Fprintln(out)
	case runtime.EventStateDump:
		if ev.State != nil {
			color.New(color.Faint).Fprintf(out, "[%d messages, paused=%t]\n", len(ev.State.Messages), ev.State.Paused)
		}
	case runtime.EventCompleted:
		color.New(color.FgGreen).Fprintln(out, "[completed]")
	case runtime.EventTerminated:
		color.New(color.FgRed).Fprintf(out, "[terminated: %s]\n", ev.Reason)
	}
}
