package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/audit"
	"github.com/HyphaGroup/kepoki/internal/definition"
)

var agentsAddName string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage named agent definitions",
}

var agentsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Register a JSON or YAML agent definition under its name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := definition.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}
		if agentsAddName != "" {
			def.Name = agentsAddName
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		err = reg.Put(cmd.Context(), def)
		audit.Record(audit.OpAgentRegister, localPrincipal(), def.Name, err)
		if err != nil {
			return err
		}
		fmt.Printf("%s agent %s\n", color.GreenString("Added"), def.Name)
		return nil
	},
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		agents, err := reg.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tUPDATED\tDESCRIPTION")
		builtin := definition.Default()
		listed := false
		for _, a := range agents {
			if a.Name == builtin.Name {
				listed = true
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.UpdatedAt.Local().Format(time.DateTime), a.Description)
		}
		if !listed {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", builtin.Name, "built-in", builtin.Description)
		}
		return w.Flush()
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a registered agent definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		def, err := reg.Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(def)
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a registered agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		err = reg.Delete(cmd.Context(), args[0])
		audit.Record(audit.OpAgentDelete, localPrincipal(), args[0], err)
		if err != nil {
			return err
		}
		fmt.Printf("%s agent %s\n", color.YellowString("Deleted"), args[0])
		return nil
	},
}

func init() {
	agentsAddCmd.Flags().StringVar(&agentsAddName, "name", "", "Register under this name instead of the definition's")

	agentsCmd.AddCommand(agentsAddCmd, agentsListCmd, agentsShowCmd, agentsDeleteCmd)
	rootCmd.AddCommand(agentsCmd)
}

// localPrincipal names the user running a CLI registry change
func localPrincipal() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
