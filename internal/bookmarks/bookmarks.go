package bookmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/kvstore"
)

// Bookmark is one saved listing, keyed by URL: re-adding the same URL
// overwrites rather than duplicates.
type Bookmark struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// Manager persists the bookmark map through the durable store. Each
// operation is a read-modify-write of the whole map; volume is tiny.
type Manager struct {
	mu     sync.Mutex
	store  kvstore.Store
	logger *zap.Logger
}

func NewManager(store kvstore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger.Named("bookmarks"),
	}
}

func (m *Manager) Add(ctx context.Context, title, url string) (Bookmark, error) {
	if url == "" {
		return Bookmark{}, fmt.Errorf("bookmark url is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return Bookmark{}, err
	}

	b := Bookmark{
		Title:     title,
		URL:       url,
		Timestamp: time.Now().UnixMilli(),
	}
	all[url] = b

	if err := m.persist(ctx, all); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}

func (m *Manager) Remove(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return err
	}

	if _, ok := all[url]; !ok {
		return nil
	}
	delete(all, url)
	return m.persist(ctx, all)
}

// List returns all bookmarks, newest first.
func (m *Manager) List(ctx context.Context) ([]Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Bookmark, 0, len(all))
	for _, b := range all {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

func (m *Manager) load(ctx context.Context) (map[string]Bookmark, error) {
	docs, err := m.store.Get(ctx, kvstore.KeyBookmarks)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}

	all := make(map[string]Bookmark)
	if raw, ok := docs[kvstore.KeyBookmarks]; ok {
		if err := json.Unmarshal(raw, &all); err != nil {
			// A corrupt record degrades to an empty map rather than
			// blocking new bookmarks.
			m.logger.Warn("bookmark record malformed, resetting", zap.Error(err))
			return make(map[string]Bookmark), nil
		}
	}
	return all, nil
}

func (m *Manager) persist(ctx context.Context, all map[string]Bookmark) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal bookmarks: %w", err)
	}
	if err := m.store.Set(ctx, map[string]json.RawMessage{kvstore.KeyBookmarks: raw}); err != nil {
		return fmt.Errorf("persist bookmarks: %w", err)
	}
	return nil
}
