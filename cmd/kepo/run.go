package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/backend"
	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/pump"
	"github.com/HyphaGroup/kepoki/internal/schedule"
)

// Command-specific flags
var (
	runEvery  string
	runPrompt string
)

var runCmd = &cobra.Command{
	Use:   "run <agent>",
	Short: "Run an agent over stdin and stdout",
	Long: `Run an agent, reading one JSON command per line from stdin and writing
one JSON event per line to stdout.

The agent is a path to a JSON or YAML definition, or the name of an agent
added with "kepo agents add". Commands are "Exit", "Pause", "Unpause",
"Terminate", "DumpState" and {"UserMessage": "text"}.

kepo exits 0 when the agent completes and 1 when it is terminated.

Example:
  kepo run ./weather.yaml
  echo '{"UserMessage":"hi"}' | kepo run conversational-agent
  kepo run reporter --every "0 9 * * 1-5" --prompt "Summarize overnight alerts"`,
	Args: cobra.ExactArgs(1),
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "User message to start with, or to send on every --every tick")
	runCmd.Flags().StringVar(&runEvery, "every", "", "Cron expression (5-field or @every 10m) for re-sending --prompt")

	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	if runEvery != "" {
		if runPrompt == "" {
			return fmt.Errorf("--every requires --prompt")
		}
		if err := schedule.ValidateCron(runEvery); err != nil {
			return err
		}
	}

	ctx, cancel := setupContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rt := a.newRuntime()
	defer func() { _ = rt.Close() }()

	var history []backend.InputMessage
	if runPrompt != "" && runEvery == "" {
		history = append(history, backend.NewUserText(runPrompt))
	}
	def, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	spawned, err := a.spawn(ctx, rt, def, history)
	if err != nil {
		return err
	}
	defer func() { _ = spawned.servers.Close() }()

	if runEvery != "" {
		sched := schedule.NewScheduler(rt)
		if _, err := sched.Add("run", runEvery, runPrompt, spawned.handle); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	status, err := pump.Run(ctx, rt, spawned.handle, os.Stdin, os.Stdout)
	if err != nil {
		logger.ErrorContext(ctx, "event pump stopped", "error", err)
	}
	exitCode = status
	return nil
}
