// Package tempfile provisions private temporary files that are removed when
// the owning process exits.
//
// File names embed a UUIDv7, so they are unique and sort by creation time.
// Go has no exit hooks; binaries call Cleanup on their way out (the CLI does
// so on normal exit and on SIGINT/SIGTERM).
package tempfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	mu      sync.Mutex
	created = make(map[string]struct{})
)

// Create makes an empty file in os.TempDir() named prefix + UUIDv7 and
// registers it for Cleanup.
func Create(prefix string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := filepath.Join(os.TempDir(), prefix+id.String())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	mu.Lock()
	created[path] = struct{}{}
	mu.Unlock()
	return path, nil
}

// Remove deletes a file returned by Create and unregisters it.
// Removing a file that no longer exists is not an error.
func Remove(path string) error {
	mu.Lock()
	delete(created, path)
	mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// Pending returns the number of files created and not yet removed.
func Pending() int {
	mu.Lock()
	defer mu.Unlock()
	return len(created)
}

// Cleanup removes every file still registered.
func Cleanup() error {
	mu.Lock()
	paths := make([]string, 0, len(created))
	for p := range created {
		paths = append(paths, p)
	}
	clear(created)
	mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
	}
	return errors.Join(errs...)
}
