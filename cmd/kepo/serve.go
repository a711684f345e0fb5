package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/audit"
	"github.com/HyphaGroup/kepoki/internal/auth"
	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/cleanup"
	"github.com/HyphaGroup/kepoki/internal/definition"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/mcp"
	"github.com/HyphaGroup/kepoki/internal/metrics"
	"github.com/HyphaGroup/kepoki/internal/pump"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve agents over websockets plus the MCP endpoint",
	Long: `Serve agents over HTTP.

Endpoints:
  GET /agents/{agent}/ws   run an agent over a websocket (one JSON command or
                           event per message; ?prompt= starts a turn)
  GET /agents              list agents
  GET /agents/{agent}      show an agent definition
  /mcp                     kepoki's MCP tools (streamable HTTP)
  GET /health              liveness
  GET /metrics             Prometheus metrics

When serve.tokens is configured, /agents and /mcp require a bearer token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides serve.address)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	limiter := auth.NewRateLimiter(cfg.Serve.RequestsPerSecond, cfg.Serve.Burst)
	handler, err := a.routes(limiter)
	if err != nil {
		return err
	}

	cleaner := cleanup.New(cleanup.DefaultConfig(cfg.Logging.Dir), limiter.Cleanup)
	cleaner.Start()
	defer cleaner.Stop()

	addr := cfg.Serve.Address
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("kepo serve listening on %s", addr)
		logger.Info("Health check: http://localhost%s/health", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down...")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}

// routes builds the serve mux. Health and metrics are open; agent and MCP
// endpoints pass through auth and rate limiting.
func (a *app) routes(limiter *auth.RateLimiter) (http.Handler, error) {
	mcpServer, err := mcp.NewServer(mcp.ServerConfig{Version: Version, Agents: a.catalog()})
	if err != nil {
		return nil, err
	}

	tokens := auth.Tokens{}
	for _, t := range cfg.Serve.Tokens {
		tokens[t.Token] = t.Name
	}
	guard := func(h http.Handler) http.Handler {
		return metrics.Middleware(auth.Middleware(tokens)(auth.RateLimitMiddleware(limiter)(h)))
	}

	api := http.NewServeMux()
	api.Handle("GET /agents/{agent}/ws", pump.NewWebSocketHandler(a.openSession))
	api.HandleFunc("GET /agents/{agent}", a.handleShowAgent)
	api.HandleFunc("GET /agents", a.handleListAgents)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/mcp", guard(mcpServer.Handler()))
	mux.Handle("/agents", guard(api))
	mux.Handle("/agents/", guard(api))
	return mux, nil
}

// openSession starts a fresh runtime with the requested agent for one
// websocket connection
func (a *app) openSession(ctx context.Context, r *http.Request) (*pump.Session, error) {
	principal := "anonymous"
	if p := auth.FromContext(ctx); p != nil {
		principal = p.Name
	}
	name := r.PathValue("agent")

	def, err := a.resolveName(ctx, name)
	if err != nil {
		audit.Record(audit.OpSessionOpen, principal, name, err)
		return nil, err
	}

	rt := a.newRuntime()
	var history []backend.InputMessage
	if prompt := r.URL.Query().Get("prompt"); prompt != "" {
		history = append(history, backend.NewUserText(prompt))
	}
	spawned, err := a.spawn(ctx, rt, def, history)
	if err != nil {
		_ = rt.Close()
		audit.Record(audit.OpSessionOpen, principal, name, err)
		return nil, err
	}
	audit.Log(&audit.Event{
		Operation: audit.OpSessionOpen,
		Principal: principal,
		Agent:     name,
		AgentID:   spawned.handle.ID.String(),
		Success:   true,
	})

	return &pump.Session{
		Runtime: rt,
		Agent:   spawned.handle,
		Close: func() error {
			err := errors.Join(rt.Close(), spawned.servers.Close())
			audit.Log(&audit.Event{
				Operation: audit.OpSessionClose,
				Principal: principal,
				Agent:     name,
				AgentID:   spawned.handle.ID.String(),
				Success:   err == nil,
			})
			return err
		},
	}, nil
}

func (a *app) handleListAgents(w http.ResponseWriter, r *http.Request) {
	builtin := definition.Default()
	list := []definition.Summary{{Name: builtin.Name, Description: builtin.Description}}
	if a.registry != nil {
		registered, err := a.registry.List(r.Context())
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, s := range registered {
			if s.Name == builtin.Name {
				list[0] = s
				continue
			}
			list = append(list, s)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": list})
}

func (a *app) handleShowAgent(w http.ResponseWriter, r *http.Request) {
	def, err := a.resolveName(r.Context(), r.PathValue("agent"))
	if errors.Is(err, definition.ErrInvalidIdentifier) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, definition.ErrAgentNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleHealthCheck is a basic liveness check
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
