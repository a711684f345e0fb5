package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/audit"
	"github.com/HyphaGroup/kepoki/internal/backup"
	"github.com/HyphaGroup/kepoki/internal/config"
)

var (
	backupDir  string
	backupKeep int
)

var agentsBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot every registered agent to a tar.gz archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		mgr, err := backup.New(backup.Config{Dir: backupDir, Retention: backupKeep})
		if err != nil {
			return err
		}
		snap, err := mgr.Backup(cmd.Context(), reg)
		if err != nil {
			return err
		}
		fmt.Printf("%s %d agents to %s\n", color.GreenString("Saved"), snap.Agents, filepath.Join(backupDir, snap.Filename))
		return nil
	},
}

var agentsRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot>",
	Short: "Register every agent in a snapshot, replacing same-named agents",
	Long: `Register every agent in a snapshot. The snapshot is a file name from
"kepo agents snapshots" or a path to an archive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()

		n, err := restoreSnapshot(cmd, reg, args[0])
		event := &audit.Event{
			Operation: audit.OpAgentRestore,
			Principal: localPrincipal(),
			Success:   err == nil,
			Details:   map[string]any{"snapshot": args[0], "restored": n},
		}
		if err != nil {
			event.Error = err.Error()
			audit.Log(event)
			return err
		}
		audit.Log(event)
		fmt.Printf("%s %d agents\n", color.GreenString("Restored"), n)
		return nil
	},
}

// restoreSnapshot reads a snapshot from a path when one exists, otherwise
// by file name from the snapshot directory
func restoreSnapshot(cmd *cobra.Command, reg backup.Sink, snapshot string) (int, error) {
	if info, err := os.Stat(snapshot); err == nil && !info.IsDir() {
		f, err := os.Open(snapshot)
		if err != nil {
			return 0, err
		}
		defer func() { _ = f.Close() }()
		return backup.RestoreFrom(cmd.Context(), reg, f)
	}

	mgr, err := backup.New(backup.Config{Dir: backupDir})
	if err != nil {
		return 0, err
	}
	return mgr.Restore(cmd.Context(), reg, snapshot)
}

var agentsSnapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List registry snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := backup.New(backup.Config{Dir: backupDir})
		if err != nil {
			return err
		}
		snapshots, err := mgr.ListSnapshots()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SNAPSHOT\tTAKEN\tSIZE")
		for _, s := range snapshots {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", s.Filename, s.Timestamp.Local().Format(time.DateTime), s.SizeBytes)
		}
		return w.Flush()
	},
}

func init() {
	defaultDir := filepath.Join(config.HomeDir(), "backups")
	for _, c := range []*cobra.Command{agentsBackupCmd, agentsRestoreCmd, agentsSnapshotsCmd} {
		c.Flags().StringVar(&backupDir, "dir", defaultDir, "Snapshot directory")
	}
	agentsBackupCmd.Flags().IntVar(&backupKeep, "keep", backup.DefaultRetention, "Number of snapshots to keep")
	agentsCmd.AddCommand(agentsBackupCmd, agentsRestoreCmd, agentsSnapshotsCmd)
}
