package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/store"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tracker"
)

var checkpointSessionFlag string

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List rollback points recorded for a session",
	Args:  cobra.NoArgs,
	RunE:  runCheckpoints,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <checkpoint-id>",
	Short: "Restore the files a checkpoint recorded",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

var activityLimitFlag int

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the tool activity log of a session",
	Args:  cobra.NoArgs,
	RunE:  runActivity,
}

func init() {
	checkpointsCmd.Flags().StringVarP(&checkpointSessionFlag, "session", "s", "last", `session id, or "last"`)
	activityCmd.Flags().StringVarP(&checkpointSessionFlag, "session", "s", "last", `session id, or "last"`)
	activityCmd.Flags().IntVar(&activityLimitFlag, "limit", 50, "number of entries")
	rootCmd.AddCommand(checkpointsCmd, rollbackCmd, activityCmd)
}

// openDB opens the workspace database and resolves the session reference.
func openDB(cmd *cobra.Command, ref string) (*store.DB, string, error) {
	root, sessions, err := openStore()
	if err != nil {
		return nil, "", err
	}
	cfg, _, err := loadConfig(root)
	if err != nil {
		return nil, "", err
	}
	db, err := store.Open(cmd.Context(), cfg.Store.Path)
	if err != nil {
		return nil, "", err
	}
	if ref == "" {
		return db, "", nil
	}
	s, err := openSession(sessions, root, ref)
	if err != nil {
		db.Close()
		return nil, "", err
	}
	return db, s.ID, nil
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	db, id, err := openDB(cmd, checkpointSessionFlag)
	if err != nil {
		return err
	}
	defer db.Close()

	cps, err := db.ListCheckpoints(cmd.Context(), id)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFILES\tLABEL")
	for _, cp := range cps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Files, cp.Label)
	}
	return w.Flush()
}

func runRollback(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd, "")
	if err != nil {
		return err
	}
	defer db.Close()

	cp, err := db.Checkpoint(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := tracker.Restore(cp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %d file(s) from %s\n", len(cp.Changes), cp.ID)
	return nil
}

func runActivity(cmd *cobra.Command, args []string) error {
	db, id, err := openDB(cmd, checkpointSessionFlag)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.Activities(cmd.Context(), id, activityLimitFlag)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTOOL\tSTATUS\tDURATION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Time.Format("15:04:05"), e.ToolName, e.Status, e.Duration)
	}
	return w.Flush()
}
