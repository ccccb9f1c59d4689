package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/session"
)

var (
	sessionFlag  string
	jsonFlag     bool
	yesFlag      bool
	noPromptFlag bool
	maxIterFlag  int
)

var runCmd = &cobra.Command{
	Use:   "run <task...>",
	Short: "Run one task in the workspace",
	Long: `Run one task through triage, planning, the tool loop and verification.

Risky tool calls stop for approval. In a terminal you are asked inline;
otherwise the session is saved and can be continued with "approve".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", `continue a session by id, or "last"`)
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "write events as NDJSON to stdout")
	runCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "approve every tool call that policy does not block")
	runCmd.Flags().BoolVar(&noPromptFlag, "no-prompt", false, "never ask for approval interactively")
	runCmd.Flags().IntVar(&maxIterFlag, "max-iterations", 0, "iteration ceiling for this turn")
	rootCmd.AddCommand(runCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, repoFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := openSession(a.sessions, a.root, sessionFlag)
	if err != nil {
		return err
	}
	if s.Pending != nil {
		return fmt.Errorf("session %s is waiting for approval; continue it with: sepilot-agent approve -s %s", s.ID, s.ID)
	}
	logger.Debug("running turn", logAttrs(s)...)

	turn := a.turn(s.ID)
	if maxIterFlag > 0 {
		turn.MaxIterations = maxIterFlag
	}
	turn.AlwaysApproveTools = yesFlag
	st := s.NextState(turn, strings.Join(args, " "))

	var r renderer
	var text *textRenderer
	if jsonFlag {
		r = newJSONRenderer(cmd.OutOrStdout())
	} else {
		text = newTextRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
		r = text
	}

	runErr := a.drive(s.ID, r, func() error { return a.engine.Run(ctx, turn, st, r) })

	interactive := text != nil && !noPromptFlag && isTerminal(os.Stdin)
	in := bufio.NewReader(cmd.InOrStdin())
	for runErr == nil && st.Suspended && interactive {
		resp, err := promptApproval(in, cmd.ErrOrStderr())
		if err != nil {
			break
		}
		runErr = a.drive(s.ID, r, func() error { return a.engine.Resume(ctx, turn, st, resp, r) })
	}

	s.Absorb(st)
	// keep the transcript even when the run was aborted
	if err := a.save(context.WithoutCancel(ctx), s); err != nil {
		return errors.Join(runErr, err)
	}
	if st.Suspended {
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s is waiting for approval: sepilot-agent approve -s %s yes|no|always|<feedback>\n", s.ID, s.ID)
	} else if !jsonFlag {
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", s.ID)
	}
	return runErr
}

// drive runs fn with the conversation's stream piped into r.
func (a *app) drive(id string, r renderer, fn func() error) error {
	a.hub.Reset(id)
	done := pump(a.hub.Subscribe(id), r)
	err := fn()
	a.hub.Done(id)
	<-done
	return err
}

// openSession resolves the --session flag. An empty ref starts a new session.
func openSession(store *session.Store, root, ref string) (*session.Session, error) {
	switch ref {
	case "":
		return session.New(root), nil
	case "last":
		s, err := store.Latest(root)
		if errors.Is(err, session.ErrNotFound) {
			return session.New(root), nil
		}
		return s, err
	default:
		return store.Load(ref, root)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// promptApproval asks until it gets a usable answer or input ends.
func promptApproval(in *bufio.Reader, out io.Writer) (approval.Response, error) {
	for {
		fmt.Fprint(out, "approve? [y]es / [n]o / [a]lways / or type feedback: ")
		line, err := in.ReadString('\n')
		if resp, ok := parseApproval(line); ok {
			return resp, nil
		}
		if err != nil {
			return approval.Response{}, err
		}
	}
}

var _ renderer = (*textRenderer)(nil)
var _ engine.EventSink = (*jsonRenderer)(nil)
