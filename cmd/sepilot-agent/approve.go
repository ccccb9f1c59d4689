package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
)

var approveSessionFlag string

var approveCmd = &cobra.Command{
	Use:   "approve <yes|no|always|feedback...>",
	Short: "Answer the pending approval of a session and continue it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runApprove,
}

func init() {
	approveCmd.Flags().StringVarP(&approveSessionFlag, "session", "s", "last", `session id, or "last"`)
	approveCmd.Flags().BoolVar(&jsonFlag, "json", false, "write events as NDJSON to stdout")
	rootCmd.AddCommand(approveCmd)
}

// parseApproval maps a reply to a response. Anything that is not a
// yes/no/always word is feedback for the model.
func parseApproval(text string) (approval.Response, bool) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "":
		return approval.Response{}, false
	case "y", "yes", "approve", "ok":
		return approval.Response{Decision: approval.StatusApproved}, true
	case "n", "no", "deny", "reject":
		return approval.Response{Decision: approval.StatusDenied}, true
	case "a", "always":
		return approval.Response{Decision: approval.StatusApproved, Always: true}, true
	}
	return approval.Response{Decision: approval.StatusFeedback, Feedback: text}, true
}

func runApprove(cmd *cobra.Command, args []string) error {
	resp, ok := parseApproval(strings.Join(args, " "))
	if !ok {
		return errors.New("empty approval response")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, repoFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := openSession(a.sessions, a.root, approveSessionFlag)
	if err != nil {
		return err
	}
	st := s.Pending
	if st == nil {
		return fmt.Errorf("session %s has nothing waiting for approval", s.ID)
	}

	var r renderer
	if jsonFlag {
		r = newJSONRenderer(cmd.OutOrStdout())
	} else {
		r = newTextRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	turn := a.turn(s.ID)
	runErr := a.drive(s.ID, r, func() error { return a.engine.Resume(ctx, turn, st, resp, r) })

	in := bufio.NewReader(cmd.InOrStdin())
	for runErr == nil && st.Suspended && !jsonFlag && isTerminal(os.Stdin) {
		next, err := promptApproval(in, cmd.ErrOrStderr())
		if err != nil {
			break
		}
		runErr = a.drive(s.ID, r, func() error { return a.engine.Resume(ctx, turn, st, next, r) })
	}

	s.Absorb(st)
	if err := a.save(context.WithoutCancel(ctx), s); err != nil {
		return errors.Join(runErr, err)
	}
	if st.Suspended {
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s is still waiting for approval\n", s.ID)
	}
	return runErr
}
