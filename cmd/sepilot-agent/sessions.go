package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved sessions for the workspace",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id|last>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRm,
}

func init() {
	sessionsCmd.AddCommand(sessionShowCmd, sessionRmCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	root, store, err := openStore()
	if err != nil {
		return err
	}
	metas, err := store.List(root)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tSTATE\tTITLE")
	for _, m := range metas {
		state := "done"
		if m.Pending {
			state = "pending"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.UpdatedAt.Format("2006-01-02 15:04"), state, m.Title)
	}
	return w.Flush()
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	root, store, err := openStore()
	if err != nil {
		return err
	}
	s, err := openSession(store, root, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", s.ID)
	fmt.Fprintf(out, "Title: %s\n", s.Title)
	fmt.Fprintf(out, "Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Tokens: %d\n\n", s.Usage.Total)
	for _, msg := range s.History {
		if msg.Role == message.RoleSystem {
			continue
		}
		switch {
		case msg.Role == message.RoleTool:
			fmt.Fprintf(out, "[tool %s] %s\n", msg.Name, clip(msg.Content, 160))
		case len(msg.ToolCalls) > 0:
			for _, c := range msg.ToolCalls {
				fmt.Fprintf(out, "[%s → %s] %s\n", msg.Role, c.Name, clip(c.ArgsJSON(), 160))
			}
		default:
			fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
		}
	}
	for _, rec := range s.ApprovalHistory {
		fmt.Fprintf(out, "approval %s by %s: %v\n", rec.Decision, rec.Source, rec.ToolNames)
	}
	return nil
}

// openStore opens the session store without wiring a model client.
func openStore() (string, *session.Store, error) {
	root, err := resolveRoot(repoFlag)
	if err != nil {
		return "", nil, err
	}
	cfg, m, err := loadConfig(root)
	if err != nil {
		return "", nil, err
	}
	store, err := sessionStore(cfg, m)
	return root, store, err
}

func runSessionRm(cmd *cobra.Command, args []string) error {
	root, store, err := openStore()
	if err != nil {
		return err
	}
	return store.Delete(args[0], root)
}
