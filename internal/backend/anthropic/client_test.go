package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HyphaGroup/kepoki/internal/backend"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	return New(opts)
}

func TestClient_MessagesRequest(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any
	var gotPath string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, helloStream)
	}, Options{APIKey: "sk-test", Betas: []string{"tools-2024", "files-2025"}})

	temp := 0.5
	stream, err := client.Messages(context.Background(), &backend.MessagesRequest{
		Model:       "claude-sonnet-4-5",
		Messages:    []backend.InputMessage{backend.NewUserText("hi")},
		MaxTokens:   1024,
		System:      "be brief",
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	defer func() { _ = stream.Close() }()

	count := 0
	for {
		_, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		count++
	}
	if count != len(helloTypes) {
		t.Errorf("received %d events, want %d", count, len(helloTypes))
	}

	if gotPath != "/v1/messages" {
		t.Errorf("path = %q, want /v1/messages", gotPath)
	}
	checks := map[string]string{
		"anthropic-version": DefaultAPIVersion,
		"x-api-key":         "sk-test",
		"anthropic-beta":    "tools-2024,files-2025",
	}
	for header, want := range checks {
		if got := gotHeaders.Get(header); got != want {
			t.Errorf("header %s = %q, want %q", header, got, want)
		}
	}

	if gotBody["stream"] != true {
		t.Errorf("body stream = %v, want true", gotBody["stream"])
	}
	if gotBody["model"] != "claude-sonnet-4-5" || gotBody["system"] != "be brief" {
		t.Errorf("body model/system = %v/%v", gotBody["model"], gotBody["system"])
	}
	if gotBody["max_tokens"] != float64(1024) || gotBody["temperature"] != 0.5 {
		t.Errorf("body max_tokens/temperature = %v/%v", gotBody["max_tokens"], gotBody["temperature"])
	}
	if _, ok := gotBody["tools"]; ok {
		t.Error("body has tools, want omitted")
	}
	// only fields built from the request are sent; thinking in particular
	// would produce content blocks the stream decoder rejects
	allowed := map[string]bool{"model": true, "messages": true, "max_tokens": true, "stream": true, "system": true, "temperature": true}
	for key := range gotBody {
		if !allowed[key] {
			t.Errorf("body has unexpected field %q", key)
		}
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("body messages = %v", gotBody["messages"])
	}
}

func TestClient_DefaultMaxTokensAndNoBeta(t *testing.T) {
	var gotBody map[string]any
	var gotBeta []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBeta = r.Header.Values("anthropic-beta")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	}, Options{})

	stream, err := client.Messages(context.Background(), &backend.MessagesRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	_ = stream.Close()

	if gotBody["max_tokens"] != float64(backend.DefaultMaxTokens) {
		t.Errorf("max_tokens = %v, want %d", gotBody["max_tokens"], backend.DefaultMaxTokens)
	}
	if len(gotBeta) != 0 {
		t.Errorf("anthropic-beta = %v, want none", gotBeta)
	}
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
		wantText string
	}{
		{
			name:     "provider error payload",
			status:   529,
			body:     `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`,
			wantType: "overloaded_error",
			wantText: "overloaded_error - busy",
		},
		{
			name:     "plain text body",
			status:   http.StatusBadGateway,
			body:     "upstream unavailable",
			wantType: "http_error_502",
			wantText: "http_error_502 - upstream unavailable",
		},
		{
			name:     "json without error object",
			status:   http.StatusUnauthorized,
			body:     `{"detail":"nope"}`,
			wantType: "http_error_401",
			wantText: `http_error_401 - {"detail":"nope"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, Options{APIKey: "k"})

			_, err := client.Messages(context.Background(), &backend.MessagesRequest{Model: "m"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Messages() error = %v, want *APIError", err)
			}
			if apiErr.Details.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", apiErr.Details.Type, tt.wantType)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if err.Error() != tt.wantText {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestClient_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Messages(ctx, &backend.MessagesRequest{Model: "m"}); err == nil {
		t.Error("Messages() expected error for cancelled context")
	}
}
