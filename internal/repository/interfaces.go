package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrStoreNotFound is returned by Engine.Open when nothing exists at the path.
	ErrStoreNotFound = fmt.Errorf("store not found: %w", errdefs.ErrNotFound)
	// ErrStoreExists is returned by Engine.Create when the path is already taken.
	ErrStoreExists = fmt.Errorf("store already exists: %w", errdefs.ErrAlreadyExists)
	// ErrSchemaMismatch is returned when a store was written for another model.
	ErrSchemaMismatch = fmt.Errorf("schema mismatch: %w", errdefs.ErrFailedPrecondition)
	// ErrStoreClosed is returned by operations on a closed Store.
	ErrStoreClosed = errors.New("store is closed")
)

// Saver persists a Document.
// Small interface used by callers that only write.
type Saver interface {
	Save(ctx context.Context, doc *Document) error
}

// Store is an opened backing store. Save commits the whole document or
// nothing.
type Store interface {
	Saver
	Path() string
	Load(ctx context.Context) (*Document, error)
	Close() error
}

// Engine opens and creates stores of one storage technology.
type Engine interface {
	Name() string
	// Ext is the file extension, including the dot, of stores this engine writes.
	Ext() string
	Open(ctx context.Context, path string, schema Schema) (Store, error)
	Create(ctx context.Context, path string, schema Schema) (Store, error)
}

// Watchable is implemented by stores that can follow external edits to
// their backing file.
type Watchable interface {
	StartWatcher(ctx context.Context, target ReloadTarget) error
}
