package pump

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

const writeTimeout = 10 * time.Second

// Session is one agent served over a websocket connection
type Session struct {
	Runtime Runtime
	Agent   runtime.AgentHandle

	// Close releases the session once the connection ends; may be nil
	Close func() error
}

// Opener starts the agent a websocket request asks for
type Opener func(ctx context.Context, r *http.Request) (*Session, error)

// WebSocketHandler pumps commands and events over websocket text messages,
// one JSON document per message
type WebSocketHandler struct {
	open     Opener
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler that opens a session per connection
func NewWebSocketHandler(open Opener) *WebSocketHandler {
	return &WebSocketHandler{
		open: open,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP opens the session before upgrading so open failures are
// reported as plain HTTP errors
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := h.open(r.Context(), r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		if session.Close != nil {
			if err := session.Close(); err != nil {
				logger.WarnContext(r.Context(), "closing session", "error", err)
			}
		}
	}()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// the request context is not cancelled on hijacked connections
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	status, err := ServeWebSocket(ctx, conn, session.Runtime, session.Agent)
	if errors.Is(err, ErrClientGone) {
		logger.InfoContext(ctx, "websocket client left before the agent finished", "agent", session.Agent.String())
	} else if err != nil {
		logger.WarnContext(ctx, "websocket pump ended", "agent", session.Agent.String(), "error", err)
	}
	logger.InfoContext(ctx, "websocket session finished", "agent", session.Agent.String(), "status", status)
}

// ServeWebSocket pumps one agent over conn until its final event has been
// sent, then closes the websocket with a normal closure. A client that
// closes or drops the connection first ends the pump with ErrClientGone.
func ServeWebSocket(ctx context.Context, conn *websocket.Conn, rt Runtime, h runtime.AgentHandle) (int, error) {
	status, err := pump(ctx, rt, h, &wsTransport{conn: conn}, true)
	if err == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	}
	return status, err
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) readCommand() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) writeEvent(ev *runtime.AgentEvent) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(ev)
}
