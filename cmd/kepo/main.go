// Command kepo runs kepoki agents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/config"
	"github.com/HyphaGroup/kepoki/internal/logger"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

// Global flags (persistent across all commands)
var (
	configPath string
	logLevel   string
	logJSON    bool
)

// cfg is loaded before any subcommand runs
var cfg *config.LoadedConfig

// exitCode is the process status once the command returns without error
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "kepo",
	Short: "Run conversational agents over pluggable model backends",
	Long: `kepo runs agents described by JSON or YAML definitions against the
Anthropic Messages API or Amazon Bedrock, with tools from MCP servers.

Without a subcommand kepo starts an interactive chat.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to kepoki.jsonc or the directory holding it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
}

func main() {
	defer func() { _ = logger.CloseSlog() }()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// setup loads configuration and initializes logging. Logs go to stderr
// since stdout carries the event stream.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadAll(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	opts := logger.Options{
		Dir:   cfg.Logging.Dir,
		JSON:  cfg.Logging.JSON || logJSON,
		Level: cfg.Logging.Level,
	}
	if logLevel != "" {
		opts.Level = logLevel
	}
	if err := logger.InitSlog(opts); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	if cfg.Path != "" {
		logger.Slog().Debug("loaded config", "path", cfg.Path)
	}
	return nil
}

// setupContext creates a context cancelled on SIGINT or SIGTERM
func setupContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
