package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/analyzer"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/compactor"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/config"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/metrics"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/project"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/providers"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/retrieval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/session"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/store"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/stream"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/builtin"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools/search"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

// app is everything one CLI invocation needs to run turns.
type app struct {
	root     string
	cfg      config.Config
	model    string
	engine   *engine.Engine
	hub      *stream.Hub
	db       *store.DB
	activity *engine.AsyncActivityLog
	analyzer *analyzer.Analyzer
	index    *retrieval.Index
	runner   sandbox.Runner
	sessions *session.Store
	summary  *session.Summarizer
	registry *prometheus.Registry
}

// resolveRoot returns the absolute workspace directory.
func resolveRoot(repo string) (string, error) {
	if repo == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		repo = wd
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("repository path is not a valid directory: %s", abs)
	}
	return abs, nil
}

// loadConfig reads the layered configuration for root.
func loadConfig(root string) (config.Config, *config.Manager, error) {
	m, err := config.NewManager()
	if err != nil {
		logger.Warn("user config unavailable", "error", err)
		m = nil
	}
	cfg, err := config.Load(root, m, os.Getenv, logger)
	return cfg, m, err
}

// sessionStore opens the session store configured for root.
func sessionStore(cfg config.Config, m *config.Manager) (*session.Store, error) {
	dir := cfg.Session.Dir
	if dir == "" {
		if m == nil {
			return nil, errors.New("no session directory: set session.dir in the config")
		}
		dir = m.Dir()
	}
	return session.NewStore(dir), nil
}

// newApp wires the engine for the workspace. Close must be called.
func newApp(ctx context.Context, repo string) (*app, error) {
	root, err := resolveRoot(repo)
	if err != nil {
		return nil, err
	}
	cfg, mgr, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	logger.Debug("workspace", "root", root)

	client, model, err := providers.New(cfg.Provider, os.Getenv)
	if err != nil {
		return nil, err
	}
	if cfg.Engine.Model == "" || cfg.Engine.Model == cfg.Provider.Model {
		cfg.Engine.Model = model
	}

	a := &app{root: root, cfg: cfg, model: cfg.Engine.Model, hub: stream.NewHub(), registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if a.sessions, err = sessionStore(cfg, mgr); err != nil {
		return nil, err
	}
	a.summary = session.NewSummarizer(client, a.model)

	if a.runner, err = sandbox.New(ctx, cfg.Sandbox, logger); err != nil {
		return nil, err
	}
	if a.db, err = store.Open(ctx, cfg.Store.Path); err != nil {
		return nil, err
	}
	a.activity = engine.NewAsyncActivityLog(a.db, 256, logger)

	a.analyzer = analyzer.New(root, analyzer.WithLimits(cfg.Engine.Analyzer), analyzer.WithLogger(logger))
	var searcher search.Searcher
	if cfg.Retrieval.Enabled {
		a.index = retrieval.New(a.analyzer, cfg.Retrieval.Options, logger)
		searcher = a.index
	}

	registry := builtin.NewRegistry(builtin.Options{
		Root:     root,
		Runner:   a.runner,
		Searcher: searcher,
		Logger:   logger,
		Set:      cfg.Tools,
	})

	verifyOpts, err := cfg.Verify.PipelineOptions()
	if err != nil {
		return nil, err
	}
	classifier, err := triage.NewDefault(cfg.Triage, client, a.model)
	if err != nil {
		return nil, err
	}
	gate, err := approval.NewGate(cfg.Approval)
	if err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Model:       client,
		Classifier:  classifier,
		Gate:        gate,
		Catalog:     &tools.Catalog{Builtin: registry},
		Verifier:    verify.New(a.runner, verifyOpts, logger),
		Recommender: a.analyzer,
		Compactor:   compactor.New(cfg.Compactor),
		Sink:        a.hub,
		Skills:      project.NewInjector(root, logger),
		Activity:    a.activity,
		Checkpoints: a.db,
		Hooks:       engine.Hooks{engine.LoggerHook{L: logger}, metrics.New(a.registry)},
		Logger:      logger,
	}
	if a.index != nil {
		deps.Retriever = a.index
	}
	if a.engine, err = engine.New(cfg.Engine, deps); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// turn returns the per-turn settings for a conversation.
func (a *app) turn(conversationID string) *engine.TurnContext {
	return &engine.TurnContext{
		ConversationID:   conversationID,
		WorkingDirectory: a.root,
		MaxIterations:    a.cfg.Engine.DefaultMaxIterations,
		EnableRAG:        a.index != nil,
		EnableTools:      true,
	}
}

// save names a new session, then persists it. Naming failures only log.
func (a *app) save(ctx context.Context, s *session.Session) error {
	if s.Title == "" && s.Pending == nil && len(s.History) > 0 {
		tctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		title, err := a.summary.GenerateTitle(tctx, s.History)
		cancel()
		if err != nil {
			logger.Warn("could not title session", "error", err)
		} else {
			s.Title = title
		}
	}
	return a.sessions.Save(s)
}

// Close flushes the activity log and releases resources.
func (a *app) Close() {
	if a.activity != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.activity.Close(ctx); err != nil {
			logger.Warn("activity log not fully flushed", "error", err)
		}
		cancel()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if c, ok := a.runner.(io.Closer); ok {
		_ = c.Close()
	}
}

var _ engine.StreamSink = (*stream.Hub)(nil)

func logAttrs(s *session.Session) []any {
	return []any{slog.String("session", s.ID), slog.Int("messages", len(s.History))}
}
