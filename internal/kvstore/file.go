package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every document in a single JSON file on disk.
// Writes go through a temp file followed by a rename so a crash mid-write
// leaves the previous snapshot intact. This is the default backend: all
// state is local to one installation, volume is low, and the whole map is
// rewritten per call anyway.
type FileStore struct {
	mu   sync.Mutex
	path string
	docs map[string]json.RawMessage
}

// NewFileStore loads the snapshot at path, treating a missing file as an
// empty store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		docs: make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %s: %w", path, err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.docs); err != nil {
			return nil, fmt.Errorf("kvstore: parse %s: %w", path, err)
		}
	}

	return s, nil
}

func (s *FileStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if doc, ok := s.docs[k]; ok {
			cp := make(json.RawMessage, len(doc))
			copy(cp, doc)
			out[k] = cp
		}
	}
	return out, nil
}

func (s *FileStore) Set(ctx context.Context, docs map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage on a copy so a failed flush leaves the in-memory view untouched.
	staged := make(map[string]json.RawMessage, len(s.docs)+len(docs))
	for k, v := range s.docs {
		staged[k] = v
	}
	for k, v := range docs {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		staged[k] = cp
	}

	if err := s.flush(staged); err != nil {
		return err
	}
	s.docs = staged
	return nil
}

func (s *FileStore) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]json.RawMessage, len(s.docs))
	for k, v := range s.docs {
		staged[k] = v
	}
	changed := false
	for _, k := range keys {
		if _, ok := staged[k]; ok {
			delete(staged, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if err := s.flush(staged); err != nil {
		return err
	}
	s.docs = staged
	return nil
}

// flush writes the full snapshot atomically: temp file in the same
// directory, then rename over the target.
func (s *FileStore) flush(docs map[string]json.RawMessage) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("kvstore: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvstore: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("kvstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kvstore: rename temp file: %w", err)
	}
	return nil
}
