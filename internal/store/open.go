package store

import (
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ClosableStore is a Store that holds resources.
type ClosableStore interface {
	Store
	Close() error
}

type nopCloser struct{ *MemoryStore }

func (nopCloser) Close() error { return nil }

// Open creates the configured backend.
func Open(backend, path string, hotReload bool) (ClosableStore, error) {
	switch strings.ToLower(backend) {
	case BackendMemory, "":
		return nopCloser{NewMemoryStore()}, nil
	case BackendFile:
		if path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return OpenFileStore(path, hotReload)
	case BackendSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
