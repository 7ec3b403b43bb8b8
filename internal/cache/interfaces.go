package cache

import "github.com/bassista/go_docstore/internal/repository"

// ReadOnlyStore is the minimal context API for readers.
type ReadOnlyStore interface {
	Snapshot() (repository.Document, error)
	Get(id string) (repository.Record, bool)
	Records() []repository.Record
}

// PersistableStore is the context API needed by a save.
type PersistableStore interface {
	IsDirty() bool
	SnapshotForSave() (repository.Document, uint64, error)
	MarkSaved(generation uint64, ts int64)
}

// ContextStore is the full change-tracking context contract: readable,
// editable, persistable and reloadable from disk.
type ContextStore interface {
	repository.ReloadTarget
	ReadOnlyStore
	PersistableStore
	Insert(rec repository.Record) (repository.Record, error)
	Update(rec repository.Record) (repository.Record, error)
	Delete(id string) error
}

// ContextSaver persists the change-tracking context through its owner.
type ContextSaver interface {
	SaveContext() error
}
