package cache

import (
	"context"
	"time"

	"github.com/bassista/go_docstore/internal/logger"
)

// DirtyChecker reports whether a context has unsaved changes.
type DirtyChecker interface {
	IsDirty() bool
}

// StartAutosaveScheduler runs a goroutine that periodically saves a dirty context.
// On ctx.Done, it performs a final save before returning.
// Returns a channel that is closed when the scheduler has completed shutdown.
func StartAutosaveScheduler(
	ctx context.Context,
	store DirtyChecker,
	saver ContextSaver,
	interval time.Duration,
) <-chan struct{} {
	done := make(chan struct{})
	log := logger.WithComponent("autosave")
	log.Debugf("starting autosave scheduler with interval: %v", interval)
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Debug("autosave scheduler received context cancellation, performing final save")
				flushContext(store, saver)
				log.Info("autosave scheduler stopped after final save")
				return
			case <-ticker.C:
				log.Trace("autosave tick, checking if dirty")
				flushContext(store, saver)
			}
		}
	}()

	return done
}

// flushContext saves the context if dirty. Failures are logged; the owner
// has already reported them.
func flushContext(store DirtyChecker, saver ContextSaver) {
	if !store.IsDirty() {
		logger.WithComponent("autosave").Trace("context is clean, skipping save")
		return
	}

	if err := saver.SaveContext(); err != nil {
		logger.WithComponent("autosave").Errorf("autosave failed: %v", err)
		return
	}
	logger.WithComponent("autosave").Debug("context saved")
}
