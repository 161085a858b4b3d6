package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileStore keeps all keys in one YAML document on disk.
//
// Reads are served from an in-memory snapshot swapped atomically, so Get
// never touches the disk. With hot reload enabled, edits made by another
// process (for example the settings editor) replace the snapshot.
type FileStore struct {
	path     string
	snapshot atomic.Value // map[string][]string

	mu      sync.Mutex // serialises writes and reloads
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// OpenFileStore loads path, creating an empty snapshot if the file does not
// exist yet. If hotReload is set, changes to the file are picked up.
func OpenFileStore(path string, hotReload bool) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		stopCh: make(chan struct{}),
	}
	fs.snapshot.Store(map[string][]string{})

	if err := fs.reload(); err != nil {
		return nil, err
	}

	if hotReload {
		if err := fs.startWatcher(); err != nil {
			log.Warn().
				Err(err).
				Str("path", path).
				Msg("Failed to start store watcher, hot-reload disabled")
		} else {
			log.Info().Str("path", path).Msg("Hot-reload enabled for exclusion store")
		}
	}

	return fs, nil
}

// Get implements Store.
func (fs *FileStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	values, ok := fs.current()[key]
	return slices.Clone(values), ok, nil
}

// Set implements Store. The file is replaced atomically via rename.
func (fs *FileStore) Set(ctx context.Context, key string, values []string) error {
	if key == "" {
		return ErrStoreKeyInvalid
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed {
		return ErrStoreClosed
	}

	next := make(map[string][]string, len(fs.current())+1)
	for k, v := range fs.current() {
		next[k] = v
	}
	next[key] = slices.Clone(values)

	data, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	if err := writeFileAtomic(fs.path, data); err != nil {
		return err
	}

	fs.snapshot.Store(next)
	return nil
}

// Close stops the watcher. Safe to call multiple times.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	fs.mu.Unlock()

	close(fs.stopCh)
	fs.wg.Wait()

	if fs.watcher != nil {
		return fs.watcher.Close()
	}
	return nil
}

func (fs *FileStore) current() map[string][]string {
	return fs.snapshot.Load().(map[string][]string)
}

// reload reads the file and swaps the snapshot. A missing file is an empty
// store; a malformed one is an error and the previous snapshot is kept.
func (fs *FileStore) reload() error {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		fs.snapshot.Store(map[string][]string{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}

	values := map[string][]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	if values == nil {
		values = map[string][]string{}
	}

	fs.snapshot.Store(values)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".adr-store-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// startWatcher watches the parent directory, since atomic saves replace the
// file and a watch on the file itself would be lost after the first rename.
func (fs *FileStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	fs.watcher = watcher

	fs.wg.Add(1)
	go fs.watchFile()

	return nil
}

func (fs *FileStore) watchFile() {
	defer fs.wg.Done()

	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer

	target := filepath.Clean(fs.path)

	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Exclusion store file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				fs.mu.Lock()
				defer fs.mu.Unlock()
				if fs.closed {
					return
				}
				if err := fs.reload(); err != nil {
					log.Warn().
						Err(err).
						Str("path", fs.path).
						Msg("Store reload failed, keeping previous values")
					return
				}
				log.Info().Str("path", fs.path).Msg("Exclusion store reloaded")
			})

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Store watcher error")

		case <-fs.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
