package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/kvstore"
)

// Preferences is the user preference record: preferred platform, purchasing
// agent and display currency.
type Preferences struct {
	Platform string `json:"platform"`
	Agent    string `json:"agent"`
	Currency string `json:"currency"`
}

// Default preferences for a fresh installation.
func Default() Preferences {
	return Preferences{
		Platform: "weidian",
		Agent:    "superbuy",
		Currency: "CNY",
	}
}

// Event types broadcast from the settings surface to every active
// resolution context.
const (
	EventPreferencesUpdated = "preferences-updated"
	EventCacheToggled       = "cache-toggled"
)

type Event struct {
	Type        string       `json:"type"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Enabled     *bool        `json:"enabled,omitempty"`
}

// Service persists the preference record and fans change events out to
// subscribers. Delivery is best-effort: a subscriber with a full channel is
// skipped, never blocks the broadcast, and the broadcast itself cannot fail.
type Service struct {
	store  kvstore.Store
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewService(store kvstore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger.Named("prefs"),
		subs:   make(map[int]chan Event),
	}
}

// Get returns the stored preferences, or the defaults when none are
// persisted yet.
func (s *Service) Get(ctx context.Context) (Preferences, error) {
	docs, err := s.store.Get(ctx, kvstore.KeyPreferences)
	if err != nil {
		return Default(), fmt.Errorf("load preferences: %w", err)
	}

	raw, ok := docs[kvstore.KeyPreferences]
	if !ok {
		return Default(), nil
	}

	p := Default()
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn("preference record malformed, using defaults", zap.Error(err))
		return Default(), nil
	}
	return p, nil
}

// Save persists the record and broadcasts the change.
func (s *Service) Save(ctx context.Context, p Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := s.store.Set(ctx, map[string]json.RawMessage{kvstore.KeyPreferences: raw}); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}

	s.broadcast(Event{Type: EventPreferencesUpdated, Preferences: &p})
	return nil
}

// NotifyCacheToggled broadcasts a cache enable/disable change.
func (s *Service) NotifyCacheToggled(enabled bool) {
	s.broadcast(Event{Type: EventCacheToggled, Enabled: &enabled})
}

// Subscribe registers a listener. The returned cancel func removes it and
// closes the channel.
func (s *Service) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Service) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// unreachable context: skipped without failing the broadcast
			s.logger.Debug("subscriber channel full, event dropped",
				zap.Int("subscriber", id),
				zap.String("type", ev.Type),
			)
		}
	}
}
