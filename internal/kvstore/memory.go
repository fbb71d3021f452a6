package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is the in-memory backend. Used in tests and for ephemeral runs
// where persistence across restarts does not matter.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

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

func (s *MemoryStore) Set(ctx context.Context, docs map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range docs {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		s.docs[k] = cp
	}
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.docs, k)
	}
	return nil
}

// Len returns the number of stored documents. Useful in tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
