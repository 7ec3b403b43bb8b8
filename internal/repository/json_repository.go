package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONEngine stores a document as a single JSON file.
type JSONEngine struct{}

func NewJSONEngine() *JSONEngine {
	return &JSONEngine{}
}

func (e *JSONEngine) Name() string { return "json" }

func (e *JSONEngine) Ext() string { return ".json" }

// Open binds to an existing JSON store and checks it against schema.
func (e *JSONEngine) Open(ctx context.Context, path string, schema Schema) (Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("stat data file: %w", err)
	}

	store, err := NewJSONRepository(path)
	if err != nil {
		return nil, err
	}
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := doc.CheckSchema(schema); err != nil {
		return nil, err
	}
	return store, nil
}

// Create writes an empty document for schema at path. It refuses to
// overwrite an existing file.
func (e *JSONEngine) Create(ctx context.Context, path string, schema Schema) (Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := NewJSONRepository(path)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, NewDocument(schema)); err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}
	return store, nil
}

// JSONRepository handles disk persistence and watching of the data file.
type JSONRepository struct {
	path   string
	dir    string
	base   string
	mu     sync.Mutex
	closed bool
}

// NewJSONRepository creates a repository for the given JSON file path.
func NewJSONRepository(path string) (*JSONRepository, error) {
	if path == "" {
		return nil, errors.New("data file path is required")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "" || dir == "." {
		dir = "."
	}

	return &JSONRepository{path: path, dir: dir, base: base}, nil
}

func (r *JSONRepository) Path() string { return r.path }

// Load reads the JSON file, parses and validates it.
func (r *JSONRepository) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStoreClosed
	}
	return r.loadUnlocked()
}

// loadUnlocked reads the JSON file without acquiring the lock (caller must hold it).
func (r *JSONRepository) loadUnlocked() (*Document, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}

	doc.ApplyDefaults()

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate data file: %w", err)
	}

	return &doc, nil
}

// Save validates and writes the document atomically to disk.
func (r *JSONRepository) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validate before save: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStoreClosed
	}
	return r.saveUnlocked(doc)
}

// saveUnlocked writes the document without acquiring the lock (caller must hold it).
// The data file is only touched by the final rename.
func (r *JSONRepository) saveUnlocked(doc *Document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	tmpFile, err := os.CreateTemp(r.dir, r.base+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), r.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}

	return nil
}

// Close releases the repository. Later Load and Save calls fail with ErrStoreClosed.
func (r *JSONRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
