package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/config"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/metrics"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/providers"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/session"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/stream"
)

var metricsAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over an NDJSON stdio protocol",
	Long: `Read one JSON command per line from stdin and write events to stdout.

Commands:
  {"type":"user_message","session_id":"...","content":"..."}
  {"type":"approval_response","session_id":"...","decision":"approved|denied|feedback","feedback":"...","always":false}
  {"type":"cancel","session_id":"..."}
  {"type":"save_config","provider":{"provider":"...","model":"...","api_key":"...","base_url":"..."}}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, repoFlag)
	if err != nil {
		// stdout belongs to the protocol
		fmt.Fprintf(os.Stderr, "ERROR: failed to prepare runtime environment: %v\n", err)
		return err
	}
	defer a.Close()

	go func() {
		if err := a.analyzer.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("workspace watcher stopped", "error", err)
		}
	}()

	if metricsAddrFlag != "" {
		srv := &http.Server{Addr: metricsAddrFlag, Handler: metrics.Handler(a.registry), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	s := newStdioServer(cmd.InOrStdin(), cmd.OutOrStdout(), a)
	s.emit(statusEvent{Type: "status", Status: "engine_ready", Message: "stdio protocol ready"})
	return s.Run(ctx)
}

// command is the union of all inbound messages.
type command struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	Content   string              `json:"content,omitempty"`
	Decision  approval.Status     `json:"decision,omitempty"`
	Feedback  string              `json:"feedback,omitempty"`
	Always    bool                `json:"always,omitempty"`
	Provider  *providers.Settings `json:"provider,omitempty"`
}

type statusEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

type errorEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// liveSession is a session the server has touched. running guards against
// overlapping turns on one conversation.
type liveSession struct {
	mu      sync.Mutex
	sess    *session.Session
	running bool
	cancel  context.CancelFunc
}

type stdioServer struct {
	scanner *bufio.Scanner
	writer  *bufio.Writer
	events  chan any
	app     *app
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*liveSession
}

func newStdioServer(in io.Reader, out io.Writer, a *app) *stdioServer {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &stdioServer{
		scanner:  scanner,
		writer:   bufio.NewWriter(out),
		events:   make(chan any, 256),
		app:      a,
		sessions: make(map[string]*liveSession),
	}
}

// Run reads commands until stdin closes, then waits for running turns.
func (s *stdioServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go s.flushEvents(errCh)

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		// handled asynchronously so a cancel can reach a running turn
		s.wg.Add(1)
		go func(l string) {
			defer s.wg.Done()
			if err := s.handleLine(ctx, l); err != nil {
				logger.Warn("stdio command failed", "error", err)
			}
		}(line)
	}
	if err := s.scanner.Err(); err != nil {
		s.emit(errorEvent{Type: "error", Code: "protocol_error", Message: fmt.Sprintf("stdin error: %v", err)})
	}

	s.wg.Wait()
	close(s.events)
	return <-errCh
}

func (s *stdioServer) flushEvents(errCh chan<- error) {
	enc := json.NewEncoder(s.writer)
	for ev := range s.events {
		if err := enc.Encode(ev); err != nil {
			errCh <- fmt.Errorf("write event: %w", err)
			// keep draining so emitters never block
			for range s.events {
			}
			return
		}
		if err := s.writer.Flush(); err != nil {
			errCh <- err
			for range s.events {
			}
			return
		}
	}
	errCh <- nil
}

// emit queues an event. Engine events block rather than drop so a host
// never misses an approval request.
func (s *stdioServer) emit(ev any) {
	s.events <- ev
}

func (s *stdioServer) Emit(ev engine.Event) { s.emit(ev) }

func (s *stdioServer) Chunk(c stream.Chunk) {
	s.emit(chunkEvent{Type: "chunk", ConversationID: c.ConversationID, Text: c.Text, Done: c.Done})
}

func (s *stdioServer) handleLine(ctx context.Context, line string) error {
	var cmd command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		s.emit(errorEvent{Type: "error", Code: "invalid_command", Message: err.Error()})
		return err
	}

	switch cmd.Type {
	case "user_message":
		return s.userMessage(ctx, cmd)
	case "approval_response":
		return s.approvalResponse(ctx, cmd)
	case "cancel":
		live, err := s.session(cmd.SessionID, false)
		if err != nil {
			s.emit(errorEvent{Type: "error", SessionID: cmd.SessionID, Code: "session_error", Message: err.Error()})
			return nil
		}
		s.app.hub.Abort(cmd.SessionID)
		live.mu.Lock()
		if live.cancel != nil {
			live.cancel()
		}
		live.mu.Unlock()
		s.emit(statusEvent{Type: "status", SessionID: cmd.SessionID, Status: "cancelled", Message: "cancelled by user request"})
		return nil
	case "save_config":
		return s.saveConfig(cmd)
	default:
		s.emit(errorEvent{Type: "error", Code: "invalid_command", Message: fmt.Sprintf("unsupported command %q", cmd.Type)})
		return fmt.Errorf("unsupported command %q", cmd.Type)
	}
}

// session returns the live session for id, loading it from disk or, when
// create is set, starting a new one.
func (s *stdioServer) session(id string, create bool) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live, ok := s.sessions[id]; ok && id != "" {
		return live, nil
	}
	var sess *session.Session
	switch {
	case id == "" && create:
		sess = session.New(s.app.root)
	case id == "":
		return nil, errors.New("session_id is required")
	default:
		loaded, err := s.app.sessions.Load(id, s.app.root)
		if err != nil && !(create && errors.Is(err, session.ErrNotFound)) {
			return nil, err
		}
		if loaded == nil {
			loaded = session.New(s.app.root)
			loaded.ID = id
		}
		sess = loaded
	}
	live := &liveSession{sess: sess}
	s.sessions[sess.ID] = live
	return live, nil
}

// claim is the outcome of begin. code is set when the turn was refused.
type claim struct {
	ctx     context.Context
	state   *engine.TaskState
	code    string
	message string
}

// begin marks live as running and returns a cancellable context plus the
// state to run. A fresh turn needs no pending approval; a resume takes the
// pending state. Both checks happen under live.mu so two commands cannot
// claim the same session or the same suspended state.
func (s *stdioServer) begin(ctx context.Context, live *liveSession, turn *engine.TurnContext, content string, resume bool) claim {
	live.mu.Lock()
	defer live.mu.Unlock()
	if live.running {
		return claim{code: "busy", message: "a turn is already running"}
	}
	var st *engine.TaskState
	switch {
	case resume && live.sess.Pending == nil:
		return claim{code: "no_pending_approval", message: "nothing is waiting for approval"}
	case resume:
		st = live.sess.Pending
	case live.sess.Pending != nil:
		return claim{code: "approval_pending", message: "answer the pending approval first"}
	default:
		st = live.sess.NextState(turn, content)
	}
	live.running = true
	runCtx, cancel := context.WithCancel(ctx)
	live.cancel = cancel
	return claim{ctx: runCtx, state: st}
}

func (s *stdioServer) end(ctx context.Context, live *liveSession, st *engine.TaskState) {
	live.mu.Lock()
	defer live.mu.Unlock()
	live.sess.Absorb(st)
	if err := s.app.save(context.WithoutCancel(ctx), live.sess); err != nil {
		s.emit(errorEvent{Type: "error", SessionID: live.sess.ID, Code: "session_error", Message: err.Error()})
	}
	live.cancel()
	live.cancel = nil
	live.running = false
}

func (s *stdioServer) userMessage(ctx context.Context, cmd command) error {
	if strings.TrimSpace(cmd.Content) == "" {
		s.emit(errorEvent{Type: "error", SessionID: cmd.SessionID, Code: "invalid_command", Message: "empty message"})
		return nil
	}
	live, err := s.session(cmd.SessionID, true)
	if err != nil {
		s.emit(errorEvent{Type: "error", SessionID: cmd.SessionID, Code: "session_error", Message: err.Error()})
		return err
	}
	id := live.sess.ID
	turn := s.app.turn(id)
	c := s.begin(ctx, live, turn, cmd.Content, false)
	if c.code != "" {
		s.emit(errorEvent{Type: "error", SessionID: id, Code: c.code, Message: c.message})
		return nil
	}
	s.emit(statusEvent{Type: "status", SessionID: id, Status: "session_ready"})

	st := c.state
	err = s.app.drive(id, s, func() error { return s.app.engine.Run(c.ctx, turn, st, s) })
	s.end(ctx, live, st)
	return err
}

func (s *stdioServer) approvalResponse(ctx context.Context, cmd command) error {
	live, err := s.session(cmd.SessionID, false)
	if err != nil {
		s.emit(errorEvent{Type: "error", SessionID: cmd.SessionID, Code: "session_error", Message: err.Error()})
		return err
	}
	resp := approval.Response{Decision: cmd.Decision, Feedback: cmd.Feedback, Always: cmd.Always}
	if err := resp.Validate(); err != nil {
		s.emit(errorEvent{Type: "error", SessionID: cmd.SessionID, Code: "invalid_command", Message: err.Error()})
		return nil
	}
	turn := s.app.turn(cmd.SessionID)
	c := s.begin(ctx, live, turn, "", true)
	if c.code != "" {
		s.emit(errorEvent{Type: "error", SessionID: cmd.SessionID, Code: c.code, Message: c.message})
		return nil
	}

	st := c.state
	err = s.app.drive(cmd.SessionID, s, func() error { return s.app.engine.Resume(c.ctx, turn, st, resp, s) })
	s.end(ctx, live, st)
	return err
}

// saveConfig stores provider settings in the user config. They apply from
// the next start.
func (s *stdioServer) saveConfig(cmd command) error {
	if cmd.Provider == nil {
		s.emit(errorEvent{Type: "error", Code: "invalid_command", Message: "save_config needs a provider section"})
		return nil
	}
	m, err := config.NewManager()
	if err != nil {
		s.emit(errorEvent{Type: "error", Code: "config_error", Message: err.Error()})
		return err
	}
	cfg, err := m.Load()
	if err != nil {
		s.emit(errorEvent{Type: "error", Code: "config_error", Message: err.Error()})
		return err
	}
	cfg.Provider = *cmd.Provider
	if _, err := providers.Resolve(cfg.Provider, os.Getenv); err != nil {
		s.emit(errorEvent{Type: "error", Code: "config_error", Message: err.Error()})
		return nil
	}
	if err := m.Save(cfg); err != nil {
		s.emit(errorEvent{Type: "error", Code: "config_save_error", Message: err.Error()})
		return err
	}
	s.emit(statusEvent{Type: "status", Status: "setup_complete", Message: "configuration saved; restart to apply"})
	return nil
}

var _ renderer = (*stdioServer)(nil)
