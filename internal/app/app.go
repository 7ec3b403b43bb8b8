package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bassista/go_docstore/internal/cache"
	"github.com/bassista/go_docstore/internal/config"
	"github.com/bassista/go_docstore/internal/document"
	"github.com/bassista/go_docstore/internal/logger"
	"github.com/bassista/go_docstore/internal/paths"
	"github.com/bassista/go_docstore/internal/report"
	"github.com/bassista/go_docstore/internal/repository"
)

// App is the application container (immutable dependencies + lifecycle context).
type App struct {
	Config  *config.Config
	Manager *document.Manager

	BaseCtx context.Context
	Cancel  context.CancelFunc

	mu           sync.Mutex
	stopping     bool
	autosaveDone <-chan struct{}
}

// NewManager builds the document manager described by cfg.
func NewManager(cfg *config.Config, reporter report.Reporter) (*document.Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	engine, err := repository.NewEngineFromConfig(cfg.Store.Engine)
	if err != nil {
		return nil, fmt.Errorf("cannot init engine: %w", err)
	}
	resolver := paths.NewPlatform(cfg.Misc.AppName, cfg.Store.DocumentsDir, cfg.Store.SupportDir)

	return document.New(engine, resolver,
		document.WithDatabaseName(cfg.Store.DatabaseName),
		document.WithModelName(cfg.Store.ModelName),
		document.WithReporter(reporter),
	)
}

func New(cfg *config.Config, mgr *document.Manager) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if mgr == nil {
		return nil, errors.New("document manager is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:  cfg,
		Manager: mgr,
		BaseCtx: ctx,
		Cancel:  cancel,
	}, nil
}

// Start opens the managed document; background jobs start once it is open.
func (a *App) Start() {
	a.Manager.AddStorageCompletionHandler(a.startBackground)
	a.Manager.UseManagedDocument()
}

func (a *App) startBackground(res document.Result) {
	log := logger.WithComponent("app")
	if !res.OK() {
		log.Errorf("document unavailable, background jobs not started: %v", res.Err)
		return
	}
	h, err := a.Manager.Handle()
	if err != nil {
		log.Errorf("document closed before background jobs started: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		log.Debug("shutdown in progress, background jobs not started")
		return
	}
	a.autosaveDone = cache.StartAutosaveScheduler(a.BaseCtx, h.Context, a.Manager, a.Config.Data.AutosaveInterval)

	if !a.Config.Data.WatchEnabled {
		return
	}
	w, ok := h.Store.(repository.Watchable)
	if !ok {
		log.Debugf("store at %s does not support watching", h.Store.Path())
		return
	}
	if err := w.StartWatcher(a.BaseCtx, h.Context); err != nil {
		log.Errorf("cannot start document watcher: %v", err)
	}
}

// Shutdown stops background jobs, waits for the final autosave and closes
// the document.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.mu.Lock()
	a.stopping = true
	done := a.autosaveDone
	a.mu.Unlock()
	a.Cancel()
	if done != nil {
		<-done
	}

	if err := a.Manager.Close(); err != nil {
		logger.WithComponent("app").Errorf("close document: %v", err)
	}
}
