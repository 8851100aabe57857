package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// File keeps every key in one JSON document on disk, shared by every process
// using the same path. Reads and writes hold a lock on a sibling ".lock" file
// and re-read the document, so a write only changes its own keys. Writes go
// through a temp file and rename.
type File struct {
	Values map[string]string
	Path   string
	mu     sync.Mutex
	lock   *flock.Flock
}

// DefaultFilePath is ~/.config/famtasks/store.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "famtasks", "store.json"), nil
}

func NewFile(path string) (*File, error) {
	f := &File{
		Values: make(map[string]string),
		Path:   path,
		lock:   flock.New(path + ".lock"),
	}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load re-reads the document from disk.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked(false, f.readLocked)
}

func (f *File) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.locked(false, f.readLocked); err != nil {
		return "", false, err
	}
	v, ok := f.Values[key]
	return v, ok, nil
}

func (f *File) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.update(func(values map[string]string) bool {
		if old, ok := values[key]; ok && old == value {
			return false
		}
		values[key] = value
		return true
	})
}

func (f *File) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.update(func(values map[string]string) bool {
		changed := false
		for _, k := range keys {
			if _, ok := values[k]; ok {
				delete(values, k)
				changed = true
			}
		}
		return changed
	})
}

// update applies change to the current document under the exclusive lock and
// writes it back when change reports a modification. A failed write leaves
// the in-memory values as they were on disk.
func (f *File) update(change func(map[string]string) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked(true, func() error {
		if err := f.readLocked(); err != nil {
			return err
		}
		before := maps.Clone(f.Values)
		if !change(f.Values) {
			return nil
		}
		if err := f.writeLocked(); err != nil {
			f.Values = before
			return err
		}
		return nil
	})
}

func (f *File) locked(exclusive bool, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	lock := f.lock.RLock
	if exclusive {
		lock = f.lock.Lock
	}
	if err := lock(); err != nil {
		return fmt.Errorf("lock store %s: %w", f.Path, err)
	}
	defer f.lock.Unlock()
	return fn()
}

func (f *File) readLocked() error {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		f.Values = make(map[string]string)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store %s: %w", f.Path, err)
	}
	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to decode store %s: %w", f.Path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	f.Values = values
	return nil
}

func (f *File) writeLocked() error {
	data, err := json.MarshalIndent(f.Values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename store: %w", err)
	}
	return nil
}
