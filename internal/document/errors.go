package document

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrNotReady is returned by operations that need an Open store.
	ErrNotReady = fmt.Errorf("store not ready: %w", errdefs.ErrUnavailable)
	// ErrConfigLocked is returned by Configure once the open sequence has started.
	ErrConfigLocked = fmt.Errorf("configuration is locked once opening has started: %w", errdefs.ErrFailedPrecondition)
)

// OpenError is the failure reason of an open sequence.
type OpenError struct {
	Path   string
	Reason error
}

func (e *OpenError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("open failed: %v", e.Reason)
	}
	return fmt.Sprintf("open %s failed: %v", e.Path, e.Reason)
}

func (e *OpenError) Unwrap() error { return e.Reason }

// SaveError is returned by SaveContext when the engine rejects a save.
type SaveError struct {
	Path   string
	Reason error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s failed: %v", e.Path, e.Reason)
}

func (e *SaveError) Unwrap() error { return e.Reason }
