package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/HyphaGroup/kepoki/internal/auth"
	"github.com/HyphaGroup/kepoki/internal/config"
	"github.com/HyphaGroup/kepoki/internal/definition"
)

func newTestServer(t *testing.T, tokens []config.ServeToken) *httptest.Server {
	t.Helper()
	cfg = config.Default()
	cfg.Serve.Tokens = tokens

	reg, err := definition.OpenRegistry(filepath.Join(t.TempDir(), "agents.db"))
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	weather := definition.Default()
	weather.Name = "weather-bot"
	weather.Description = "Reports the weather"
	if err := reg.Put(context.Background(), weather); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	a := &app{fs: afero.NewMemMapFs(), registry: reg}
	handler, err := a.routes(auth.NewRateLimiter(0, 0))
	if err != nil {
		t.Fatalf("routes() error = %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRoutes_Status(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{path: "/health", want: http.StatusOK},
		{path: "/metrics", want: http.StatusOK},
		{path: "/agents", want: http.StatusOK},
		{path: "/agents/weather-bot", want: http.StatusOK},
		{path: "/agents/conversational-agent", want: http.StatusOK},
		{path: "/agents/ghost", want: http.StatusNotFound},
		{path: "/agents/Not_Valid", want: http.StatusBadRequest},
		{path: "/agents/ghost/ws", want: http.StatusBadRequest},
		{path: "/nope", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := get(t, srv.URL+tt.path, "")
			if resp.StatusCode != tt.want {
				t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRoutes_ListAgents(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := get(t, srv.URL+"/agents", "")
	var body struct {
		Agents []definition.Summary `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	var names []string
	for _, s := range body.Agents {
		names = append(names, s.Name)
	}
	want := []string{definition.DefaultName, "weather-bot"}
	if len(names) != len(want) {
		t.Fatalf("agents = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("agents[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRoutes_Auth(t *testing.T) {
	srv := newTestServer(t, []config.ServeToken{{Name: "ci", Token: "s3cret-token"}})

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "health is open", path: "/health", want: http.StatusOK},
		{name: "metrics is open", path: "/metrics", want: http.StatusOK},
		{name: "agents without token", path: "/agents", want: http.StatusUnauthorized},
		{name: "agents with wrong token", path: "/agents", token: "wrong", want: http.StatusUnauthorized},
		{name: "agents with token", path: "/agents", token: "s3cret-token", want: http.StatusOK},
		{name: "agent with token", path: "/agents/weather-bot", token: "s3cret-token", want: http.StatusOK},
		{name: "mcp without token", path: "/mcp", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, srv.URL+tt.path, tt.token)
			if resp.StatusCode != tt.want {
				t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
			}
		})
	}
}
