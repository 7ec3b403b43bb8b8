package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bassista/go_docstore/internal/logger"
)

const watchDebounce = 200 * time.Millisecond

// ReloadTarget is the in-memory copy a watched store reloads into.
type ReloadTarget interface {
	GetLastUpdate() int64
	IsDirty() bool
	Snapshot() (Document, error)
	Replace(doc Document) error
}

type reloadDecision int

const (
	reloadApply reloadDecision = iota
	reloadSkipOlder
	reloadSkipPending
	reloadSkipUnchanged
)

func (d reloadDecision) String() string {
	switch d {
	case reloadApply:
		return "apply"
	case reloadSkipOlder:
		return "disk copy is older"
	case reloadSkipPending:
		return "unsaved changes pending"
	case reloadSkipUnchanged:
		return "disk copy unchanged"
	default:
		return "unknown"
	}
}

// decideReload compares the disk copy with target. A disk copy with the
// same LastUpdate is only applied when its records differ. Pending changes
// always win: the next save overwrites the file.
func decideReload(disk *Document, target ReloadTarget) (reloadDecision, error) {
	current := target.GetLastUpdate()
	switch {
	case disk.Metadata.LastUpdate < current:
		return reloadSkipOlder, nil
	case target.IsDirty():
		return reloadSkipPending, nil
	case disk.Metadata.LastUpdate > current:
		return reloadApply, nil
	}

	snapshot, err := target.Snapshot()
	if err != nil {
		return reloadSkipUnchanged, fmt.Errorf("snapshot context: %w", err)
	}
	if AreDocumentsEqual(&snapshot, disk) {
		return reloadSkipUnchanged, nil
	}
	return reloadApply, nil
}

// ReloadInto loads the file and replaces target with it when the disk copy
// is newer and target has no unsaved changes. It reports whether target was
// replaced.
func (r *JSONRepository) ReloadInto(ctx context.Context, target ReloadTarget) (bool, error) {
	disk, err := r.Load(ctx)
	if err != nil {
		return false, err
	}
	decision, err := decideReload(disk, target)
	if err != nil {
		return false, err
	}
	if decision != reloadApply {
		logger.WithComponent("json-store").Debugf("reload of %s skipped: %s", r.base, decision)
		return false, nil
	}
	if err := target.Replace(*disk); err != nil {
		return false, fmt.Errorf("replace context: %w", err)
	}
	return true, nil
}

// StartWatcher reloads target whenever the JSON file changes on disk. The
// parent directory is watched so the temp+rename of a save is seen as well;
// bursts of events are coalesced into one reload. The goroutine stops when
// ctx is done or the repository is closed.
func (r *JSONRepository) StartWatcher(ctx context.Context, target ReloadTarget) error {
	if target == nil {
		return errors.New("reload target is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	go r.watch(ctx, watcher, target)
	return nil
}

func (r *JSONRepository) watch(ctx context.Context, watcher *fsnotify.Watcher, target ReloadTarget) {
	log := logger.WithComponent("json-store")
	defer watcher.Close()

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == r.base && event.Op != 0 {
				debounce.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher error: %v", err)
		case <-debounce.C:
			reloaded, err := r.ReloadInto(ctx, target)
			switch {
			case errors.Is(err, ErrStoreClosed):
				log.Debugf("store %s closed, watcher stopped", r.path)
				return
			case err != nil:
				log.Warnf("reload of %s failed: %v", r.path, err)
			case reloaded:
				log.Infof("context reloaded from %s", r.path)
			}
		}
	}
}
