// Package paths resolves the directories a managed document may live in.
package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNoWritableLocation is returned when a location cannot be resolved to a
// writable directory.
var ErrNoWritableLocation = errors.New("no writable location")

// Resolver yields the primary (documents) and fallback (application support)
// directories for the managed document. Resolving has no side effects on the
// filesystem.
type Resolver interface {
	ResolvePrimaryLocation() (string, error)
	ResolveSupportLocation() (string, error)
}

// Platform resolves locations from platform conventions:
// <home>/Documents/<AppName> and <user config dir>/<AppName>.
// Non-empty overrides replace the conventional base directory.
type Platform struct {
	AppName       string
	DocumentsDir  string
	SupportDir    string
	userHomeDir   func() (string, error)
	userConfigDir func() (string, error)
}

// NewPlatform returns a resolver for appName. documentsDir and supportDir
// are optional overrides.
func NewPlatform(appName, documentsDir, supportDir string) *Platform {
	return &Platform{
		AppName:       appName,
		DocumentsDir:  documentsDir,
		SupportDir:    supportDir,
		userHomeDir:   os.UserHomeDir,
		userConfigDir: os.UserConfigDir,
	}
}

func (p *Platform) ResolvePrimaryLocation() (string, error) {
	dir := p.DocumentsDir
	if dir == "" {
		home, err := p.userHomeDir()
		if err != nil {
			return "", fmt.Errorf("documents location: %w: %v", ErrNoWritableLocation, err)
		}
		dir = filepath.Join(home, "Documents", p.AppName)
	}
	return checkWritable(dir)
}

func (p *Platform) ResolveSupportLocation() (string, error) {
	dir := p.SupportDir
	if dir == "" {
		base, err := p.userConfigDir()
		if err != nil {
			return "", fmt.Errorf("support location: %w: %v", ErrNoWritableLocation, err)
		}
		dir = filepath.Join(base, p.AppName)
	}
	return checkWritable(dir)
}

// checkWritable reports whether dir could hold the document: dir itself, or
// the nearest ancestor that exists, must be a writable directory. Nothing is
// created; the engine makes missing directories when it creates the store.
func checkWritable(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoWritableLocation, dir, err)
	}

	existing := abs
	for {
		info, err := os.Stat(existing)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%w: %s is not a directory", ErrNoWritableLocation, existing)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: %v", ErrNoWritableLocation, existing, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", fmt.Errorf("%w: %s has no existing ancestor", ErrNoWritableLocation, abs)
		}
		existing = parent
	}

	if err := writable(existing); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoWritableLocation, existing, err)
	}
	return abs, nil
}

// Locate returns the path of fileName inside the first usable location,
// trying the primary location before the support location.
func Locate(r Resolver, fileName string) (string, error) {
	primary, primaryErr := r.ResolvePrimaryLocation()
	if primaryErr == nil {
		return filepath.Join(primary, fileName), nil
	}
	support, supportErr := r.ResolveSupportLocation()
	if supportErr == nil {
		return filepath.Join(support, fileName), nil
	}
	return "", errors.Join(primaryErr, supportErr)
}
