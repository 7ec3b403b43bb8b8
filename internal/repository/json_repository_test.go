package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetSchema = Schema{Name: "Widgets", Version: 1}

func writeDocument(t *testing.T, path string, doc Document) {
	t.Helper()
	data, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestNewJSONRepository_EmptyPath(t *testing.T) {
	_, err := NewJSONRepository("")
	if err == nil {
		t.Error("expected error for empty path")
	}
}

func TestJSONEngine_OpenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widgets.json")

	_, err := NewJSONEngine().Open(context.Background(), path, widgetSchema)
	assert.ErrorIs(t, err, ErrStoreNotFound)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestJSONEngine_CreateThenOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "Widgets.json")
	engine := NewJSONEngine()

	created, err := engine.Create(ctx, path, widgetSchema)
	require.NoError(t, err)
	assert.Equal(t, path, created.Path())
	require.NoError(t, created.Close())

	opened, err := engine.Open(ctx, path, widgetSchema)
	require.NoError(t, err)
	doc, err := opened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Widgets", doc.Metadata.Model)
	assert.Empty(t, doc.Records)
}

func TestJSONEngine_CreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widgets.json")
	writeDocument(t, path, createTestDocument())

	_, err := NewJSONEngine().Create(context.Background(), path, widgetSchema)
	assert.ErrorIs(t, err, ErrStoreExists)
}

func TestJSONEngine_OpenSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widgets.json")
	writeDocument(t, path, createTestDocument())

	_, err := NewJSONEngine().Open(context.Background(), path, Schema{Name: "Gadgets", Version: 1})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestJSONEngine_OpenUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widgets.json")
	require.NoError(t, os.WriteFile(path, []byte("not valid json"), 0644))

	_, err := NewJSONEngine().Open(context.Background(), path, widgetSchema)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStoreNotFound)
}

func TestJSONRepository_LoadAndSave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "Widgets.json")
	writeDocument(t, path, Document{Metadata: Metadata{Model: "Widgets", Version: 1}})

	repo, err := NewJSONRepository(path)
	require.NoError(t, err)

	doc := createTestDocument()
	require.NoError(t, repo.Save(ctx, &doc))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Records, 2)
	assert.Equal(t, "w1", loaded.Records[0].ID)
	assert.Equal(t, "red", loaded.Records[0].Attributes["color"])
	assert.Equal(t, int64(1000), loaded.Metadata.LastUpdate)
}

func TestJSONRepository_Load_ValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widgets.json")
	invalid := map[string]interface{}{
		"metadata": map[string]interface{}{"model": "Widgets"},
		"records":  []map[string]interface{}{{"id": "w1"}}, // missing kind
	}
	data, _ := json.Marshal(invalid)
	require.NoError(t, os.WriteFile(path, data, 0644))

	repo, _ := NewJSONRepository(path)
	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}

func TestJSONRepository_Save_NilDocument(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "Widgets.json"))
	assert.Error(t, repo.Save(context.Background(), nil))
}

func TestJSONRepository_Save_ValidationErrorLeavesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "Widgets.json")
	writeDocument(t, path, createTestDocument())
	before, _ := os.ReadFile(path)

	repo, _ := NewJSONRepository(path)
	bad := Document{Metadata: Metadata{Model: "Widgets"}, Records: []Record{{ID: "x"}}}
	assert.Error(t, repo.Save(ctx, &bad))

	after, _ := os.ReadFile(path)
	assert.Equal(t, before, after)
}

func TestJSONRepository_Save_FailureMidWriteLeavesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "Widgets.json")
	writeDocument(t, path, createTestDocument())
	before, _ := os.ReadFile(path)

	repo, _ := NewJSONRepository(path)
	doc := createTestDocument()
	doc.Records[1].Attributes["weight"] = math.NaN() // unencodable

	assert.Error(t, repo.Save(ctx, &doc))

	after, _ := os.ReadFile(path)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestJSONRepository_Closed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "Widgets.json")
	writeDocument(t, path, createTestDocument())

	repo, _ := NewJSONRepository(path)
	require.NoError(t, repo.Close())

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	doc := createTestDocument()
	assert.ErrorIs(t, repo.Save(ctx, &doc), ErrStoreClosed)
}

type fakeTarget struct {
	lastUpdate int64
	dirty      bool
	doc        Document
	replaced   bool
}

func (f *fakeTarget) GetLastUpdate() int64        { return f.lastUpdate }
func (f *fakeTarget) IsDirty() bool               { return f.dirty }
func (f *fakeTarget) Snapshot() (Document, error) { return f.doc, nil }
func (f *fakeTarget) Replace(doc Document) error {
	f.doc = doc
	f.lastUpdate = doc.Metadata.LastUpdate
	f.replaced = true
	return nil
}

func TestDecideReload(t *testing.T) {
	tests := []struct {
		name       string
		diskUpdate int64
		target     *fakeTarget
		want       reloadDecision
	}{
		{"disk newer", 2000, &fakeTarget{lastUpdate: 1000}, reloadApply},
		{"disk older", 500, &fakeTarget{lastUpdate: 1000}, reloadSkipOlder},
		{"pending changes", 2000, &fakeTarget{lastUpdate: 1000, dirty: true}, reloadSkipPending},
		{"same content", 1000, &fakeTarget{lastUpdate: 1000, doc: createTestDocument()}, reloadSkipUnchanged},
		{"same timestamp, different content", 1000, &fakeTarget{lastUpdate: 1000}, reloadApply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disk := createTestDocument()
			disk.Metadata.LastUpdate = tt.diskUpdate

			got, err := decideReload(&disk, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestJSONRepository_ReloadInto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Widgets.json")
	doc := createTestDocument()
	doc.Metadata.LastUpdate = 2000
	writeDocument(t, path, doc)
	repo, err := NewJSONRepository(path)
	require.NoError(t, err)

	pending := &fakeTarget{lastUpdate: 1000, dirty: true}
	reloaded, err := repo.ReloadInto(context.Background(), pending)
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.False(t, pending.replaced, "unsaved changes must not be overwritten")

	clean := &fakeTarget{lastUpdate: 1000}
	reloaded, err = repo.ReloadInto(context.Background(), clean)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, int64(2000), clean.lastUpdate)
	assert.Len(t, clean.doc.Records, 2)

	require.NoError(t, repo.Close())
	_, err = repo.ReloadInto(context.Background(), &fakeTarget{})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

type syncTarget struct {
	replaced chan Document
}

func (s *syncTarget) GetLastUpdate() int64        { return 0 }
func (s *syncTarget) IsDirty() bool               { return false }
func (s *syncTarget) Snapshot() (Document, error) { return Document{}, nil }
func (s *syncTarget) Replace(doc Document) error {
	select {
	case s.replaced <- doc:
	default:
	}
	return nil
}

func TestJSONRepository_StartWatcher_ReloadsOnExternalWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "Widgets.json")
	writeDocument(t, path, Document{Metadata: Metadata{Model: "Widgets", Version: 1}})

	repo, _ := NewJSONRepository(path)
	target := &syncTarget{replaced: make(chan Document, 1)}
	require.NoError(t, repo.StartWatcher(ctx, target))

	doc := createTestDocument()
	doc.Metadata.LastUpdate = 3000
	writeDocument(t, path, doc)

	select {
	case got := <-target.replaced:
		assert.Len(t, got.Records, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("expected watcher to reload the context")
	}
}

func TestJSONRepository_StartWatcher_NilStore(t *testing.T) {
	repo, _ := NewJSONRepository(filepath.Join(t.TempDir(), "Widgets.json"))
	err := repo.StartWatcher(context.Background(), nil)
	if err == nil || errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected argument error, got %v", err)
	}
}
