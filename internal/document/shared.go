package document

import (
	"sync"

	"github.com/bassista/go_docstore/internal/paths"
	"github.com/bassista/go_docstore/internal/repository"
)

// DefaultAppName names the platform directories used by Shared.
const DefaultAppName = "go_docstore"

var (
	sharedOnce sync.Once
	shared     *Manager
	newShared  = defaultManager
)

// Shared returns the process-wide Manager, creating it on first use with the
// default names, the JSON engine and the platform resolver. It does not start
// the open sequence. Code that can take a *Manager as a dependency should use
// New instead.
func Shared() *Manager {
	sharedOnce.Do(func() {
		shared = newShared()
	})
	return shared
}

func defaultManager() *Manager {
	m, err := New(repository.NewJSONEngine(), paths.NewPlatform(DefaultAppName, "", ""))
	if err != nil {
		panic(err)
	}
	return m
}
