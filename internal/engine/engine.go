// Package engine sequences one user turn through triage, planning, the
// guarded agent loop (model call, approval, tools, verification) and a final
// report, emitting progress events along the way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/analyzer"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/compactor"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/invoker"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/selector"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tracker"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

// StreamSink receives model output as it arrives and reports aborts.
type StreamSink interface {
	EmitChunk(conversationID, text string)
	IsAborted(conversationID string) bool
}

// Retriever supplies workspace context for a query, or "" when it has none.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string) (string, error)
}

// SkillInjector returns extra context messages for a request.
type SkillInjector interface {
	InjectSkills(ctx context.Context, userText, conversationID string) ([]message.Message, error)
}

// Recommender suggests workspace files relevant to a prompt.
type Recommender interface {
	Recommend(prompt string, topN int) ([]string, error)
}

// Verifier checks modified files.
type Verifier interface {
	Verify(ctx context.Context, root string, modified []string) (verify.Report, error)
}

// Config holds the engine limits.
type Config struct {
	Model                string                  `yaml:"model"`
	DefaultMaxIterations int                     `yaml:"max_iterations"`
	ContextTokens        int                     `yaml:"context_tokens"`
	MaxOutputTokens      int                     `yaml:"max_output_tokens"`
	Temperature          float32                 `yaml:"temperature"`
	RecommendTopN        int                     `yaml:"recommend_top_n"`
	Invoker              invoker.Policy          `yaml:"-"`
	Snapshot             tracker.SnapshotOptions `yaml:"-"`
	Analyzer             analyzer.Limits         `yaml:"-"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		DefaultMaxIterations: 15,
		ContextTokens:        64000,
		MaxOutputTokens:      4096,
		Temperature:          0.2,
		RecommendTopN:        5,
		Invoker:              invoker.DefaultPolicy(),
		Snapshot:             tracker.SnapshotOptions{MaxFiles: tracker.DefaultMaxFiles},
		Analyzer:             analyzer.Limits{MaxDepth: analyzer.DefaultMaxDepth, MaxEntries: analyzer.DefaultMaxEntries},
	}
}

// Deps are the collaborators of an Engine. Only Model is required.
type Deps struct {
	Model       llm.Client
	Classifier  triage.Classifier
	Gate        *approval.Gate
	Catalog     *tools.Catalog
	Verifier    Verifier
	Recommender Recommender
	Selector    *selector.Selector
	Compactor   *compactor.Compactor
	Sink        StreamSink
	Retriever   Retriever
	Skills      SkillInjector
	Activity    ActivityLog
	Checkpoints tracker.CheckpointStore
	Hooks       Hooks
	Logger      *slog.Logger
}

// Engine runs turns. It holds no per-turn state and is safe for concurrent
// use across conversations.
type Engine struct {
	cfg     Config
	d       Deps
	invoker *invoker.Invoker
	logger  *slog.Logger
	nodes   map[string]nodeFunc
	routes  map[string]func(*TaskState) string
}

// run bundles the per-turn values every node needs.
type run struct {
	turn *TurnContext
	st   *TaskState
	sink EventSink
}

type nodeFunc func(ctx context.Context, r *run) error

// New validates deps and fills in defaults.
func New(cfg Config, d Deps) (*Engine, error) {
	if d.Model == nil {
		return nil, errors.New("engine: model client is required")
	}
	def := DefaultConfig()
	if cfg.DefaultMaxIterations <= 0 {
		cfg.DefaultMaxIterations = def.DefaultMaxIterations
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = def.ContextTokens
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.RecommendTopN <= 0 {
		cfg.RecommendTopN = def.RecommendTopN
	}
	if cfg.Invoker.Timeout <= 0 {
		cfg.Invoker = def.Invoker
	}
	if cfg.Snapshot.MaxFiles <= 0 {
		cfg.Snapshot.MaxFiles = def.Snapshot.MaxFiles
	}
	if cfg.Analyzer.MaxDepth <= 0 {
		cfg.Analyzer.MaxDepth = def.Analyzer.MaxDepth
	}
	if cfg.Analyzer.MaxEntries <= 0 {
		cfg.Analyzer.MaxEntries = def.Analyzer.MaxEntries
	}

	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Classifier == nil {
		chain, err := triage.NewDefault(triage.DefaultKeywords(), d.Model, cfg.Model)
		if err != nil {
			return nil, err
		}
		d.Classifier = chain
	}
	if d.Gate == nil {
		d.Gate = approval.MustDefaultGate()
	}
	if d.Catalog == nil {
		d.Catalog = &tools.Catalog{}
	}
	if d.Selector == nil {
		d.Selector = selector.New()
	}
	if d.Compactor == nil {
		d.Compactor = compactor.New(compactor.DefaultOptions())
	}

	e := &Engine{cfg: cfg, d: d, logger: d.Logger}
	e.invoker = invoker.New(d.Catalog, cfg.Invoker, invoker.WithRetryObserver(
		func(call message.ToolCall, attempt int, delay time.Duration, err error) {
			e.d.Hooks.OnToolRetry(context.Background(), call, attempt, delay, err)
		}))
	e.nodes = map[string]nodeFunc{
		NodeTriage:         e.triageNode,
		NodeDirectResponse: e.directResponseNode,
		NodePlanner:        e.plannerNode,
		NodeIterationGuard: e.iterationGuardNode,
		NodeAgent:          e.agentNode,
		NodeApproval:       e.approvalNode,
		NodeTools:          e.toolsNode,
		NodeVerifier:       e.verifierNode,
		NodeReporter:       e.reporterNode,
	}
	e.routes = map[string]func(*TaskState) string{
		NodeTriage:         routeAfterTriage,
		NodeDirectResponse: routeToEnd,
		NodePlanner:        routeAfterPlanner,
		NodeIterationGuard: routeAfterGuard,
		NodeAgent:          routeAfterAgent,
		NodeApproval:       routeAfterApproval,
		NodeTools:          routeAfterTools,
		NodeVerifier:       routeAfterVerifier,
		NodeReporter:       routeToEnd,
	}
	return e, nil
}

// Run executes the turn from triage until it finishes or suspends for
// approval. A run error is also emitted as an error event.
func (e *Engine) Run(ctx context.Context, turn *TurnContext, st *TaskState, sink EventSink) error {
	return e.start(ctx, turn, st, sink, NodeTriage)
}

// Stream runs the turn in a goroutine and returns its events. The channel
// is closed when the run ends; a failure arrives as an error event.
func (e *Engine) Stream(ctx context.Context, turn *TurnContext, st *TaskState) <-chan Event {
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		_ = e.Run(ctx, turn, st, chanSink{ctx: ctx, ch: ch})
	}()
	return ch
}

// Resume continues a turn suspended on an approval request.
func (e *Engine) Resume(ctx context.Context, turn *TurnContext, st *TaskState, resp approval.Response, sink EventSink) error {
	if !st.Suspended {
		return ErrNotSuspended
	}
	if err := resp.Validate(); err != nil {
		return err
	}
	if sink == nil {
		sink = nopSink{}
	}
	r := &run{turn: turn, st: st, sink: sink}

	st.Suspended = false
	st.ApprovalHistory = append(st.ApprovalHistory, resp.Record(st.ToolCalls))
	if resp.Always {
		st.AlwaysApproveTools = true
	}
	r.emit(EventApprovalResult, NodeApproval, ApprovalResult{Decision: resp.Decision, Feedback: resp.Feedback, Always: resp.Always})

	var next string
	switch resp.Decision {
	case approval.StatusApproved:
		st.LastApprovalStatus = approval.StatusApproved
		next = NodeTools
	case approval.StatusDenied:
		st.LastApprovalStatus = approval.StatusDenied
		st.ToolResults = skipCalls(st, "the user denied this tool call")
		next = NodeVerifier
	default:
		st.LastApprovalStatus = ""
		st.ToolResults = skipCalls(st, "not executed; the user replied with feedback instead")
		st.Append(message.User(resp.Feedback))
		next = NodeIterationGuard
	}
	return e.start(ctx, turn, st, sink, next)
}

// skipCalls answers every pending call with an error result so the
// transcript keeps one tool message per call id.
func skipCalls(st *TaskState, reason string) []message.ToolResult {
	results := make([]message.ToolResult, 0, len(st.ToolCalls))
	for _, c := range st.ToolCalls {
		res := message.ToolResult{ToolCallID: c.ID, ToolName: c.Name, Error: reason}
		results = append(results, res)
		st.Append(message.Tool(res))
	}
	return results
}

func (e *Engine) start(ctx context.Context, turn *TurnContext, st *TaskState, sink EventSink, first string) error {
	if turn == nil || st == nil {
		return errors.New("engine: turn and state are required")
	}
	if sink == nil {
		sink = nopSink{}
	}
	if st.ConversationID == "" {
		st.ConversationID = turn.ConversationID
	}
	if st.MaxIterations <= 0 {
		st.MaxIterations = turn.MaxIterations
	}
	if st.MaxIterations <= 0 {
		st.MaxIterations = e.cfg.DefaultMaxIterations
	}
	if turn.AlwaysApproveTools {
		st.AlwaysApproveTools = true
	}

	r := &run{turn: turn, st: st, sink: sink}
	err := e.drive(ctx, r, first)
	if err != nil {
		r.emit(EventError, "", ErrorData{Message: err.Error(), Aborted: errors.Is(err, ErrAborted)})
	}
	return err
}

// drive executes nodes until a route returns the end marker.
func (e *Engine) drive(ctx context.Context, r *run, node string) error {
	for node != nodeEnd {
		if err := e.checkAbort(ctx, r); err != nil {
			return err
		}
		fn, ok := e.nodes[node]
		if !ok {
			return fmt.Errorf("engine: unknown node %q", node)
		}
		e.d.Hooks.OnNodeStart(ctx, node, r.st)
		start := time.Now()
		err := fn(ctx, r)
		e.d.Hooks.OnNodeEnd(ctx, node, r.st, time.Since(start), err)
		if err != nil {
			if isAbort(ctx, err) {
				return aborted(err)
			}
			return &NodeError{Node: node, Iteration: r.st.IterationCount, Err: err}
		}
		node = e.routes[node](r.st)
	}
	return nil
}

func (e *Engine) checkAbort(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	if e.d.Sink != nil && e.d.Sink.IsAborted(r.st.ConversationID) {
		return ErrAborted
	}
	return nil
}

func (r *run) emit(t EventType, node string, data any) {
	r.sink.Emit(Event{Type: t, Node: node, ConversationID: r.st.ConversationID, Data: data, Time: time.Now()})
}

func (e *Engine) model(turn *TurnContext) string {
	if turn.Model != "" {
		return turn.Model
	}
	return e.cfg.Model
}
