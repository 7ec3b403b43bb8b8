package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bassista/go_docstore/internal/repository"
)

// ErrRecordNotFound is returned when an id is not present in the context.
var ErrRecordNotFound = errors.New("record not found")

// Store keeps an in-memory copy of the document and tracks pending changes.
type Store struct {
	mu         sync.RWMutex
	data       repository.Document
	index      map[string]int // record id -> position in data.Records
	dirty      bool           // true if the context changed since last save
	generation uint64         // bumped on every mutation
	lastUpdate int64          // document's metadata.lastUpdate
}

// NewStore creates a context holding a deep copy of doc.
func NewStore(doc repository.Document) (*Store, error) {
	cloned, err := cloneData(doc)
	if err != nil {
		return nil, err
	}
	cloned.ApplyDefaults()
	s := &Store{data: cloned, lastUpdate: doc.Metadata.LastUpdate}
	s.reindex()
	return s, nil
}

// IsDirty returns true if the context has unsaved changes.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// GetLastUpdate returns the context's last update timestamp.
func (s *Store) GetLastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() (repository.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneData(s.data)
}

// SnapshotForSave returns a deep copy together with the generation it was
// taken at, for use with MarkSaved.
func (s *Store) SnapshotForSave() (repository.Document, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := cloneData(s.data)
	return doc, s.generation, err
}

// MarkSaved records a successful save of the snapshot taken at generation.
// The dirty flag is only cleared when nothing changed since that snapshot.
func (s *Store) MarkSaved(generation uint64, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = ts
	s.data.Metadata.LastUpdate = ts
	if s.generation == generation {
		s.dirty = false
	}
}

// Replace swaps the document, discarding pending changes.
func (s *Store) Replace(doc repository.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned, err := cloneData(doc)
	if err != nil {
		return err
	}
	cloned.ApplyDefaults()
	s.data = cloned
	s.reindex()
	s.lastUpdate = doc.Metadata.LastUpdate
	s.generation++
	s.dirty = false
	return nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (repository.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return repository.Record{}, false
	}
	rec, err := cloneRecord(s.data.Records[i])
	if err != nil {
		return repository.Record{}, false
	}
	return rec, true
}

// Records returns copies of all records in document order.
func (s *Store) Records() []repository.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.Record, 0, len(s.data.Records))
	for _, r := range s.data.Records {
		if rec, err := cloneRecord(r); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// Insert adds a new record. An empty ID is replaced with a random UUID.
func (s *Store) Insert(rec repository.Record) (repository.Record, error) {
	if rec.Kind == "" {
		return repository.Record{}, errors.New("record kind is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[rec.ID]; exists {
		return repository.Record{}, fmt.Errorf("record %s already exists", rec.ID)
	}
	cloned, err := cloneRecord(rec)
	if err != nil {
		return repository.Record{}, err
	}
	if cloned.Attributes == nil {
		cloned.Attributes = map[string]any{}
	}
	cloned.UpdatedAt = time.Now().UnixMilli()

	s.data.Records = append(s.data.Records, cloned)
	s.index[cloned.ID] = len(s.data.Records) - 1
	s.touch()
	return cloneRecord(cloned)
}

// Update replaces an existing record by id.
func (s *Store) Update(rec repository.Record) (repository.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[rec.ID]
	if !ok {
		return repository.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, rec.ID)
	}
	cloned, err := cloneRecord(rec)
	if err != nil {
		return repository.Record{}, err
	}
	if cloned.Kind == "" {
		cloned.Kind = s.data.Records[i].Kind
	}
	if cloned.Attributes == nil {
		cloned.Attributes = map[string]any{}
	}
	cloned.UpdatedAt = time.Now().UnixMilli()

	s.data.Records[i] = cloned
	s.touch()
	return cloneRecord(cloned)
}

// Delete removes a record by id, preserving the order of the rest.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	s.data.Records = append(s.data.Records[:i], s.data.Records[i+1:]...)
	s.reindex()
	s.touch()
	return nil
}

// touch marks a mutation (caller must hold the write lock).
func (s *Store) touch() {
	s.generation++
	s.dirty = true
}

// reindex rebuilds the id index (caller must hold the write lock).
func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.data.Records))
	for i, r := range s.data.Records {
		s.index[r.ID] = i
	}
}

// cloneData deep-copies the document to avoid shared maps between the context and callers.
func cloneData(doc repository.Document) (repository.Document, error) {
	bytes, err := json.Marshal(doc)
	if err != nil {
		return repository.Document{}, err
	}
	var copy repository.Document
	if err := json.Unmarshal(bytes, &copy); err != nil {
		return repository.Document{}, err
	}
	return copy, nil
}

// cloneRecord deep-copies a record to avoid shared attribute maps.
func cloneRecord(r repository.Record) (repository.Record, error) {
	bytes, err := json.Marshal(r)
	if err != nil {
		return repository.Record{}, err
	}
	var copy repository.Record
	if err := json.Unmarshal(bytes, &copy); err != nil {
		return repository.Record{}, err
	}
	return copy, nil
}

var _ ContextStore = (*Store)(nil)
