package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 25 * time.Millisecond

// jsonFile is a JSON document on disk guarded by an in-process mutex and an
// advisory file lock, so two bot processes sharing DATA_DIR cannot interleave
// read-modify-write cycles.
type jsonFile struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func newJSONFile(path string) *jsonFile {
	return &jsonFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// withLock runs fn while holding both locks.
func (f *jsonFile) withLock(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	locked, err := f.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.path, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", f.path)
	}
	defer f.lock.Unlock()

	return fn()
}

// read decodes the document into v. A missing, blank or literal null file
// leaves v as is; decoding null would nil out the caller's map.
func (f *jsonFile) read(v interface{}) error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	return nil
}

// write replaces the document atomically via a temp file and rename.
func (f *jsonFile) write(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// load reads the document under lock.
func (f *jsonFile) load(ctx context.Context, v interface{}) error {
	return f.withLock(ctx, func() error { return f.read(v) })
}

// save writes the document under lock.
func (f *jsonFile) save(ctx context.Context, v interface{}) error {
	return f.withLock(ctx, func() error { return f.write(v) })
}
