package pump

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/runtime"
)

func newWebSocketServer(t *testing.T, open Opener) string {
	t.Helper()
	srv := httptest.NewServer(NewWebSocketHandler(open))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketHandler(t *testing.T) {
	rt := newFakeRuntime()
	closed := make(chan struct{})
	url := newWebSocketServer(t, func(ctx context.Context, r *http.Request) (*Session, error) {
		return &Session{
			Runtime: rt,
			Agent:   rt.agent,
			Close: func() error {
				close(closed)
				return nil
			},
		}, nil
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for _, cmd := range []runtime.Command{runtime.UserMessage("hi"), {Kind: runtime.CommandExit}} {
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
	}

	var kinds []runtime.EventKind
	for {
		var ev runtime.AgentEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			break
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == runtime.EventMessage {
			if got := ev.Message.Content[0].Text; got != "echo: hi" {
				t.Errorf("message text = %q, want echo: hi", got)
			}
		}
	}

	want := []runtime.EventKind{runtime.EventMessage, runtime.EventCompleted}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("events = %v, want %v", kinds, want)
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Error("session was not closed")
	}
}

func TestWebSocketHandler_OpenError(t *testing.T) {
	url := newWebSocketServer(t, func(ctx context.Context, r *http.Request) (*Session, error) {
		return nil, errors.New("invalid agent identifier: Bad Name")
	})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("Dial() error = %v, want bad handshake", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

// idleBackend fails any turn; an agent without history never starts one
type idleBackend struct{}

func (idleBackend) Name() string { return "idle" }

func (idleBackend) Messages(ctx context.Context, req *backend.MessagesRequest) (backend.EventStream, error) {
	return nil, errors.New("no turn expected")
}

func TestWebSocketHandler_ClientLeavesEarly(t *testing.T) {
	tests := []struct {
		name       string
		closeFrame bool
	}{
		{name: "close frame", closeFrame: true},
		{name: "dropped connection", closeFrame: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := runtime.New()
			h := rt.Spawn(idleBackend{}, "m", definition.Default())
			closed := make(chan error, 1)
			url := newWebSocketServer(t, func(ctx context.Context, r *http.Request) (*Session, error) {
				return &Session{
					Runtime: rt,
					Agent:   h,
					Close: func() error {
						err := rt.Close()
						closed <- err
						return err
					},
				}, nil
			})

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			if tt.closeFrame {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
				if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
					t.Fatalf("WriteControl() error = %v", err)
				}
			}
			_ = conn.Close()

			select {
			case err := <-closed:
				if err != nil {
					t.Errorf("session Close() error = %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("session was not closed after the client left")
			}
			if agents := rt.Agents(); len(agents) != 0 {
				t.Errorf("agents after close = %v, want none", agents)
			}
		})
	}
}

func TestServeWebSocket_ClientGone(t *testing.T) {
	rt := newFakeRuntime()
	result := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			result <- err
			return
		}
		defer func() { _ = conn.Close() }()
		_, err = ServeWebSocket(r.Context(), conn, rt, rt.agent)
		result <- err
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_ = conn.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrClientGone) {
			t.Errorf("ServeWebSocket() error = %v, want ErrClientGone", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeWebSocket() did not return after the client left")
	}
}
