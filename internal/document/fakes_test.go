package document

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bassista/go_docstore/internal/repository"
)

var testSchema = repository.Schema{Name: DefaultModelName}

type stubResolver struct {
	primary    string
	primaryErr error
	support    string
	supportErr error
}

func (s stubResolver) ResolvePrimaryLocation() (string, error) { return s.primary, s.primaryErr }
func (s stubResolver) ResolveSupportLocation() (string, error) { return s.support, s.supportErr }

// fakeEngine counts open and create attempts. When gate is non-nil, Open
// blocks until it is closed.
type fakeEngine struct {
	mu        sync.Mutex
	opens     int
	creates   int
	exists    bool
	openErr   error
	createErr error
	gate      chan struct{}
	store     *fakeStore
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{store: &fakeStore{doc: *repository.NewDocument(testSchema)}}
}

func (e *fakeEngine) Name() string { return "fake" }
func (e *fakeEngine) Ext() string  { return ".fake" }

func (e *fakeEngine) Open(_ context.Context, path string, _ repository.Schema) (repository.Store, error) {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opens++
	if e.openErr != nil {
		return nil, e.openErr
	}
	if !e.exists {
		return nil, repository.ErrStoreNotFound
	}
	e.store.path = path
	return e.store, nil
}

func (e *fakeEngine) Create(_ context.Context, path string, _ repository.Schema) (repository.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creates++
	if e.createErr != nil {
		return nil, e.createErr
	}
	e.exists = true
	e.store.path = path
	return e.store, nil
}

func (e *fakeEngine) attempts() (opens, creates int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens, e.creates
}

// fakeStore keeps the persisted document in memory. A failing save leaves
// doc untouched.
type fakeStore struct {
	mu      sync.Mutex
	path    string
	doc     repository.Document
	saves   int
	saveErr error
	closed  bool
}

func (s *fakeStore) Path() string { return s.path }

func (s *fakeStore) Load(context.Context) (*repository.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := copyDocument(s.doc)
	return &doc, err
}

func (s *fakeStore) Save(_ context.Context, doc *repository.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	saved, err := copyDocument(*doc)
	if err != nil {
		return err
	}
	s.doc = saved
	return nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeStore) persisted() repository.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, _ := copyDocument(s.doc)
	return doc
}

func copyDocument(doc repository.Document) (repository.Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return repository.Document{}, err
	}
	var out repository.Document
	err = json.Unmarshal(b, &out)
	return out, err
}

// MockReporter is a mock implementation of report.Reporter
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(err error, fields map[string]any, tags ...string) {
	m.Called(err, fields, tags)
}

func newTestManager(t *testing.T, engine repository.Engine, opts ...Option) *Manager {
	t.Helper()
	m, err := New(engine, stubResolver{primary: t.TempDir()}, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func waitResult(t *testing.T, m *Manager) Result {
	t.Helper()
	select {
	case res := <-m.Ready():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the store")
		return Result{}
	}
}

var errDisk = errors.New("disk I/O error")
