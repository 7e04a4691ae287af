package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "invitely/pkg/errors"
)

const fileSuffix = ".kv"

// FileKV stores each key in its own file under dataDir. Writes are atomic
// (temp file then rename). A watcher reports changes made by other
// processes sharing the directory, so two editors on the same data see
// each other's saves the way browser tabs see storage events.
type FileKV struct {
	dataDir      string
	quota        int64
	mutex        sync.RWMutex
	watcher      *fsnotify.Watcher
	fileModTimes map[string]time.Time
	onChange     func(key string)
	log          *log.Logger
}

// NewFileKV creates a file-backed store; quota <= 0 means unlimited
func NewFileKV(dataDir string, quota int64, logger *log.Logger) (*FileKV, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.ErrStorageFailed.WithCause(err).WithContext("dir", dataDir)
	}

	kv := &FileKV{
		dataDir:      dataDir,
		quota:        quota,
		fileModTimes: make(map[string]time.Time),
		log:          logger,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("Warning: Could not create file watcher: %v", err)
		return kv, nil
	}
	if err := watcher.Add(dataDir); err != nil {
		logger.Printf("Warning: Could not watch data directory: %v", err)
		watcher.Close()
		return kv, nil
	}
	kv.watcher = watcher
	go kv.watch()

	return kv, nil
}

// OnExternalChange registers the callback fired when another process
// writes or removes a key
func (f *FileKV) OnExternalChange(fn func(key string)) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.onChange = fn
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dataDir, hex.EncodeToString([]byte(key))+fileSuffix)
}

func keyFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	raw, err := hex.DecodeString(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// Get reads the value for key
func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return data, nil
}

// Set writes the value for key atomically
func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	target := f.path(key)

	if f.quota > 0 {
		used, err := f.usedBytes(target)
		if err != nil {
			return apperrors.ErrStorageFailed.WithCause(err)
		}
		if used+int64(len(value)) > f.quota {
			return apperrors.ErrQuotaExceeded.WithContext("key", key).
				WithContext("size", len(value))
		}
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}

	// Remember our own write so the watcher does not report it
	if info, err := os.Stat(target); err == nil {
		f.fileModTimes[target] = info.ModTime()
	}
	return nil
}

// usedBytes sums the sizes of all values except the one at skip
func (f *FileKV) usedBytes(skip string) (int64, error) {
	entries, err := os.ReadDir(f.dataDir)
	if err != nil {
		return 0, err
	}
	var used int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		p := filepath.Join(f.dataDir, e.Name())
		if p == skip {
			continue
		}
		if info, err := e.Info(); err == nil {
			used += info.Size()
		}
	}
	return used, nil
}

// Delete removes key
func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	target := f.path(key)
	delete(f.fileModTimes, target)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return nil
}

// Close stops the watcher
func (f *FileKV) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *FileKV) watch() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			key, ok := keyFromPath(event.Name)
			if !ok {
				continue
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				f.handleWrite(event.Name, key)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				f.handleRemove(event.Name, key)
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Printf("Watcher error: %v", err)
		}
	}
}

func (f *FileKV) handleWrite(path, key string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	f.mutex.Lock()
	last, known := f.fileModTimes[path]
	if known && !info.ModTime().After(last) {
		// Our own write
		f.mutex.Unlock()
		return
	}
	f.fileModTimes[path] = info.ModTime()
	fn := f.onChange
	f.mutex.Unlock()

	f.log.Printf("external change to %q", key)
	if fn != nil {
		fn(key)
	}
}

func (f *FileKV) handleRemove(path, key string) {
	f.mutex.Lock()
	_, known := f.fileModTimes[path]
	delete(f.fileModTimes, path)
	fn := f.onChange
	f.mutex.Unlock()

	if !known {
		return
	}
	f.log.Printf("external removal of %q", key)
	if fn != nil {
		fn(key)
	}
}

// String describes the store for startup logs
func (f *FileKV) String() string {
	return fmt.Sprintf("file:%s", f.dataDir)
}
