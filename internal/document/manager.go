package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bassista/go_docstore/internal/cache"
	"github.com/bassista/go_docstore/internal/logger"
	"github.com/bassista/go_docstore/internal/paths"
	"github.com/bassista/go_docstore/internal/report"
	"github.com/bassista/go_docstore/internal/repository"
)

const (
	DefaultDatabaseName = "Database"
	DefaultModelName    = "Model"
)

// Handle is the open store together with its change-tracking context.
type Handle struct {
	Store   repository.Store
	Context cache.ContextStore
}

// Option configures a Manager at construction.
type Option func(*Manager)

func WithDatabaseName(name string) Option {
	return func(m *Manager) { m.databaseName = name }
}

func WithModelName(name string) Option {
	return func(m *Manager) { m.modelName = name }
}

func WithModelVersion(version int) Option {
	return func(m *Manager) { m.modelVersion = version }
}

// WithReporter sends open and save failures to r.
func WithReporter(r report.Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// Manager owns the managed document: its lifecycle state, its handle and the
// queue of callers waiting for it.
type Manager struct {
	engine   repository.Engine
	resolver paths.Resolver
	reporter report.Reporter

	// saveMu serializes saves and Close; taken before mu.
	saveMu sync.Mutex

	// mu guards everything below.
	mu           sync.RWMutex
	state        State
	err          error
	handle       *Handle
	queue        []func(Result)
	databaseName string
	modelName    string
	modelVersion int

	notify notifier
}

// New creates a closed Manager. The open sequence only starts on
// UseManagedDocument.
func New(engine repository.Engine, resolver paths.Resolver, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if resolver == nil {
		return nil, errors.New("path resolver is nil")
	}

	m := &Manager{
		engine:       engine,
		resolver:     resolver,
		reporter:     nopReporter{},
		databaseName: DefaultDatabaseName,
		modelName:    DefaultModelName,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.reporter == nil {
		m.reporter = nopReporter{}
	}
	if err := validNames(m.databaseName, m.modelName); err != nil {
		return nil, err
	}
	return m, nil
}

// Configure sets the database and model names. It fails with
// ErrConfigLocked unless the manager is Closed.
func (m *Manager) Configure(databaseName, modelName string) error {
	if err := validNames(databaseName, modelName); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateClosed {
		return fmt.Errorf("%w (state is %s)", ErrConfigLocked, m.state)
	}
	m.databaseName = databaseName
	m.modelName = modelName
	return nil
}

func (m *Manager) DatabaseName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.databaseName
}

func (m *Manager) ModelName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modelName
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Err returns the failure reason while the manager is Failed, nil otherwise.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Handle returns the open store handle, or ErrNotReady.
func (m *Manager) Handle() (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateOpen {
		return nil, fmt.Errorf("%w (state is %s)", ErrNotReady, m.state)
	}
	return m.handle, nil
}

// Context returns the change-tracking context of the open store, or ErrNotReady.
func (m *Manager) Context() (cache.ContextStore, error) {
	h, err := m.Handle()
	if err != nil {
		return nil, err
	}
	return h.Context, nil
}

// UseManagedDocument starts opening the store if the manager is Closed and
// returns immediately. In any other state it does nothing.
func (m *Manager) UseManagedDocument() {
	m.mu.Lock()
	if m.state != StateClosed {
		state := m.state
		m.mu.Unlock()
		logger.WithComponent("docmgr").Debugf("open requested while %s, ignoring", state)
		return
	}
	m.state = StateOpening
	name := m.databaseName
	schema := repository.Schema{Name: m.modelName, Version: m.modelVersion}
	m.mu.Unlock()

	logger.WithComponent("docmgr").Infof("opening %s (model %s, engine %s)", name, schema.Name, m.engine.Name())
	go m.openOrCreate(name, schema)
}

// openOrCreate opens the store at the resolved location, creating it when
// none exists, and concludes the Opening state either way.
func (m *Manager) openOrCreate(name string, schema repository.Schema) {
	ctx := context.Background()
	log := logger.WithComponent("docmgr")

	path, err := paths.Locate(m.resolver, name+m.engine.Ext())
	if err != nil {
		m.finishOpen(nil, "", err)
		return
	}

	store, err := m.engine.Open(ctx, path, schema)
	if errors.Is(err, repository.ErrStoreNotFound) {
		log.Infof("no store at %s, creating it", path)
		store, err = m.engine.Create(ctx, path, schema)
	}
	if err != nil {
		m.finishOpen(nil, path, err)
		return
	}

	doc, err := store.Load(ctx)
	if err != nil {
		store.Close()
		m.finishOpen(nil, path, err)
		return
	}
	changes, err := cache.NewStore(*doc)
	if err != nil {
		store.Close()
		m.finishOpen(nil, path, err)
		return
	}

	m.finishOpen(&Handle{Store: store, Context: changes}, path, nil)
}

// finishOpen applies the outcome of the open sequence and hands every queued
// handler to the notifier in one critical section.
func (m *Manager) finishOpen(h *Handle, path string, cause error) {
	var res Result

	m.mu.Lock()
	if cause != nil {
		oerr := &OpenError{Path: path, Reason: cause}
		m.state = StateFailed
		m.err = oerr
		res = Result{State: StateFailed, Err: oerr}
	} else {
		m.state = StateOpen
		m.handle = h
		res = Result{State: StateOpen}
	}
	queued := m.queue
	m.queue = nil
	m.notify.post(deliveries(queued, res)...)
	m.mu.Unlock()

	log := logger.WithComponent("docmgr")
	if res.Err != nil {
		log.Errorf("%v", res.Err)
		m.reporter.Report(res.Err, map[string]any{"path": path, "engine": m.engine.Name()}, "open")
		return
	}
	log.Infof("store open at %s, notifying %d waiting handlers", path, len(queued))
}

// AddStorageCompletionHandler registers fn to be called once with the
// outcome of the open sequence. If the sequence already finished, fn is
// scheduled right away instead of being queued. It never blocks and does not
// start the open sequence.
func (m *Manager) AddStorageCompletionHandler(fn func(Result)) {
	if fn == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.terminal() {
		res := Result{State: m.state, Err: m.err}
		m.notify.post(func() { fn(res) })
		return
	}
	m.queue = append(m.queue, fn)
}

// Ready returns a channel that receives exactly one Result, like a
// completion handler registered now.
func (m *Manager) Ready() <-chan Result {
	ch := make(chan Result, 1)
	m.AddStorageCompletionHandler(func(r Result) { ch <- r })
	return ch
}

// SaveContext persists pending changes of the open store. A clean context is
// a no-op. It returns ErrNotReady without touching the engine unless the
// store is Open, and a *SaveError when the engine rejects the save, in
// which case nothing of the change set is committed.
func (m *Manager) SaveContext() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.RLock()
	state, h := m.state, m.handle
	m.mu.RUnlock()

	if state != StateOpen || h == nil {
		return fmt.Errorf("%w (state is %s)", ErrNotReady, state)
	}
	saved, err := persist(context.Background(), h.Context, h.Store)
	if err != nil {
		return m.saveFailed(h, err)
	}
	if saved {
		logger.WithComponent("docmgr").Debugf("saved changes to %s", h.Store.Path())
	}
	return nil
}

// persist writes the pending changes of changes through saver with a fresh
// LastUpdate. It reports false without any I/O when nothing is pending.
func persist(ctx context.Context, changes cache.PersistableStore, saver repository.Saver) (bool, error) {
	if !changes.IsDirty() {
		return false, nil
	}
	doc, generation, err := changes.SnapshotForSave()
	if err != nil {
		return false, err
	}
	ts := time.Now().UnixMilli()
	doc.Metadata.LastUpdate = ts

	if err := saver.Save(ctx, &doc); err != nil {
		return false, err
	}
	changes.MarkSaved(generation, ts)
	return true, nil
}

func (m *Manager) saveFailed(h *Handle, cause error) error {
	serr := &SaveError{Path: h.Store.Path(), Reason: cause}
	logger.WithComponent("docmgr").Errorf("%v", serr)
	m.reporter.Report(serr, map[string]any{"path": serr.Path, "engine": m.engine.Name()}, "save")
	return serr
}

// Close releases an Open store and returns the manager to Closed. Unsaved
// changes are discarded. In any other state it does nothing; Failed stays
// Failed.
func (m *Manager) Close() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if m.state != StateOpen {
		m.mu.Unlock()
		return nil
	}
	h := m.handle
	m.handle = nil
	m.state = StateClosed
	m.mu.Unlock()

	logger.WithComponent("docmgr").Infof("closing store at %s", h.Store.Path())
	if err := h.Store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// validNames checks that the database name is a plain file name, so the
// store stays inside the resolved location, and that a model is named.
func validNames(databaseName, modelName string) error {
	switch {
	case strings.TrimSpace(databaseName) == "":
		return errors.New("database name is required")
	case databaseName == "." || databaseName == "..":
		return fmt.Errorf("database name must be a plain name, got %q", databaseName)
	case strings.ContainsAny(databaseName, `/\`):
		return fmt.Errorf("database name must be a plain name, got %q", databaseName)
	case strings.TrimSpace(modelName) == "":
		return errors.New("model name is required")
	}
	return nil
}

func deliveries(handlers []func(Result), res Result) []func() {
	out := make([]func(), len(handlers))
	for i, fn := range handlers {
		out[i] = func() { fn(res) }
	}
	return out
}

type nopReporter struct{}

func (nopReporter) Report(error, map[string]any, ...string) {}
