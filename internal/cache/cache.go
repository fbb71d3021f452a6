package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/kvstore"
)

// SchemaVersion is the running build's cache schema. Persisted metadata whose
// version differs causes a full wipe before any entry is trusted.
const SchemaVersion = "2"

// Entry is one cached record. Timestamps are epoch milliseconds so the
// persisted form stays a plain JSON document.
type Entry[T any] struct {
	Payload        T     `json:"payload"`
	CreatedAt      int64 `json:"createdAt"`
	LastAccessedAt int64 `json:"lastAccessedAt"`
}

// Metadata is the single process-wide record tracked alongside the entries.
type Metadata struct {
	SchemaVersion string `json:"schemaVersion"`
	LastCleanupAt int64  `json:"lastCleanupAt"`
}

type Options struct {
	MaxAge          time.Duration // entry TTL
	MaxItems        int           // capacity bound enforced by Cleanup
	CleanupInterval time.Duration // how often Init runs a sweep
	SchemaVersion   string
	EntriesKey      string // durable-store key for the entry map
	MetadataKey     string // durable-store key for the metadata record
}

func (o Options) withDefaults() Options {
	if o.MaxAge <= 0 {
		o.MaxAge = 24 * time.Hour
	}
	if o.MaxItems <= 0 {
		o.MaxItems = 500
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 24 * time.Hour
	}
	if o.SchemaVersion == "" {
		o.SchemaVersion = SchemaVersion
	}
	if o.EntriesKey == "" {
		o.EntriesKey = kvstore.KeyPriceCache
	}
	if o.MetadataKey == "" {
		o.MetadataKey = kvstore.KeyCacheMetadata
	}
	return o
}

// Cache is a persistent, version-aware TTL cache with LRU eviction.
//
// It owns its entry map exclusively: callers only ever see payload copies
// from Get. Persistence is best-effort: a failed write is logged and the
// in-memory view stays serviceable, which is acceptable for a performance
// cache that is not a system of record.
type Cache[T any] struct {
	opts   Options
	store  kvstore.Store
	logger *zap.Logger

	initOnce sync.Once
	initDone chan struct{}

	mu      sync.RWMutex
	entries map[string]Entry[T]
	meta    Metadata
}

func New[T any](store kvstore.Store, opts Options, logger *zap.Logger) *Cache[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[T]{
		opts:     opts.withDefaults(),
		store:    store,
		logger:   logger.Named("cache"),
		initDone: make(chan struct{}),
		entries:  make(map[string]Entry[T]),
	}
}

// Init loads persisted state. It is idempotent and memoized: the first
// caller performs the work, concurrent callers block until that one
// in-flight initialization completes. Always succeeds: a broken durable
// store degrades to an empty cache rather than blocking anything.
func (c *Cache[T]) Init(ctx context.Context) {
	c.initOnce.Do(func() {
		defer close(c.initDone)
		c.initialize(ctx)
	})
	<-c.initDone
}

func (c *Cache[T]) initialize(ctx context.Context) {
	now := time.Now()

	docs, err := c.store.Get(ctx, c.opts.EntriesKey, c.opts.MetadataKey)
	if err != nil {
		c.logger.Error("cache load failed, starting empty", zap.Error(err))
		c.persistMetadata(ctx)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if raw, ok := docs[c.opts.MetadataKey]; ok {
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			c.logger.Warn("cache metadata malformed, wiping", zap.Error(err))
			c.wipeLocked(ctx)
		} else if meta.SchemaVersion != c.opts.SchemaVersion {
			// Hard precondition: a version change invalidates everything.
			c.logger.Info("cache schema changed, wiping",
				zap.String("persisted", meta.SchemaVersion),
				zap.String("expected", c.opts.SchemaVersion),
			)
			c.wipeLocked(ctx)
		} else {
			c.meta = meta
			c.loadEntriesLocked(docs[c.opts.EntriesKey], now)
		}
	}

	if now.Sub(time.UnixMilli(c.meta.LastCleanupAt)) > c.opts.CleanupInterval {
		c.cleanupLocked(ctx, now)
	}

	c.meta.SchemaVersion = c.opts.SchemaVersion
	c.persistLocked(ctx, false, true)

	c.logger.Info("cache initialized",
		zap.Int("entries", len(c.entries)),
		zap.String("schema_version", c.opts.SchemaVersion),
	)
}

// loadEntriesLocked fills the in-memory map from the persisted document,
// discarding expired or malformed entries. This pass only filters in memory;
// the durable copy is untouched until the next write.
func (c *Cache[T]) loadEntriesLocked(raw json.RawMessage, now time.Time) {
	if len(raw) == 0 {
		return
	}

	var persisted map[string]Entry[T]
	if err := json.Unmarshal(raw, &persisted); err != nil {
		c.logger.Warn("cache entries malformed, dropping", zap.Error(err))
		return
	}

	dropped := 0
	for key, e := range persisted {
		if !c.validAt(e, now) {
			dropped++
			continue
		}
		c.entries[key] = e
	}
	if dropped > 0 {
		c.logger.Debug("dropped invalid entries at load", zap.Int("dropped", dropped))
	}
}

// validAt is the single validity predicate: present and younger than MaxAge.
func (c *Cache[T]) validAt(e Entry[T], now time.Time) bool {
	return now.Sub(time.UnixMilli(e.CreatedAt)) < c.opts.MaxAge
}

// Get returns the payload for key if a valid entry exists, updating its
// last-access time. Missing or expired keys return ok=false, never an error.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	c.Init(ctx)

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !c.validAt(e, now) {
		// opportunistic purge; durable copy catches up on the next write
		delete(c.entries, key)
		var zero T
		return zero, false
	}

	e.LastAccessedAt = now.UnixMilli()
	c.entries[key] = e
	return e.Payload, true
}

// Set stores a brand-new entry for key (no merge with any prior entry)
// and persists the entire map synchronously with the write.
func (c *Cache[T]) Set(ctx context.Context, key string, payload T) {
	c.Init(ctx)

	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry[T]{
		Payload:        payload,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	c.persistLocked(ctx, true, false)
}

// Cleanup runs the two-phase sweep: drop invalid entries, then evict the
// least-recently-accessed entries until the cache fits MaxItems. Persists
// once if anything was removed.
func (c *Cache[T]) Cleanup(ctx context.Context) {
	c.Init(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked(ctx, time.Now())
}

func (c *Cache[T]) cleanupLocked(ctx context.Context, now time.Time) {
	removed := 0

	// Phase 1: validity.
	for key, e := range c.entries {
		if !c.validAt(e, now) {
			delete(c.entries, key)
			removed++
		}
	}

	// Phase 2: capacity. Sort survivors by last access, most recent first,
	// and pop from the tail so the hot end is preserved.
	if len(c.entries) > c.opts.MaxItems {
		type keyed struct {
			key          string
			lastAccessed int64
		}
		byAccess := make([]keyed, 0, len(c.entries))
		for key, e := range c.entries {
			byAccess = append(byAccess, keyed{key, e.LastAccessedAt})
		}
		sort.SliceStable(byAccess, func(i, j int) bool {
			return byAccess[i].lastAccessed > byAccess[j].lastAccessed
		})
		for _, victim := range byAccess[c.opts.MaxItems:] {
			delete(c.entries, victim.key)
			removed++
		}
	}

	c.meta.LastCleanupAt = now.UnixMilli()

	if removed > 0 {
		c.logger.Info("cache cleanup", zap.Int("removed", removed), zap.Int("remaining", len(c.entries)))
		c.persistLocked(ctx, true, true)
	}
}

// Clear empties the in-memory state and removes both persisted records.
func (c *Cache[T]) Clear(ctx context.Context) {
	c.Init(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeLocked(ctx)
	c.meta = Metadata{SchemaVersion: c.opts.SchemaVersion}
}

func (c *Cache[T]) wipeLocked(ctx context.Context) {
	c.entries = make(map[string]Entry[T])
	c.meta = Metadata{}
	if err := c.store.Remove(ctx, c.opts.EntriesKey, c.opts.MetadataKey); err != nil {
		c.logger.Error("cache wipe failed", zap.Error(err))
	}
}

// Size returns the number of in-memory entries, valid or not.
func (c *Cache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// persistLocked writes the requested records in one store call. Failures are
// logged, never propagated: the in-memory cache stays authoritative and the
// durable copy reconverges on the next successful write.
func (c *Cache[T]) persistLocked(ctx context.Context, entries, metadata bool) {
	docs := make(map[string]json.RawMessage, 2)

	if entries {
		raw, err := json.Marshal(c.entries)
		if err != nil {
			c.logger.Error("cache marshal entries failed", zap.Error(err))
			return
		}
		docs[c.opts.EntriesKey] = raw
	}
	if metadata {
		raw, err := json.Marshal(c.meta)
		if err != nil {
			c.logger.Error("cache marshal metadata failed", zap.Error(err))
			return
		}
		docs[c.opts.MetadataKey] = raw
	}

	if err := c.store.Set(ctx, docs); err != nil {
		c.logger.Error("cache persist failed", zap.Error(err))
	}
}

func (c *Cache[T]) persistMetadata(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta.SchemaVersion = c.opts.SchemaVersion
	c.persistLocked(ctx, false, true)
}
