package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1etu/easyupoo/internal/kvstore"
)

type testPayload struct {
	Value string `json:"value"`
}

func newTestCache(t *testing.T, store kvstore.Store, opts Options) *Cache[testPayload] {
	t.Helper()
	if store == nil {
		store = kvstore.NewMemoryStore()
	}
	return New[testPayload](store, opts, nil)
}

func TestGetReturnsPayloadWithinMaxAge(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{MaxAge: 50 * time.Millisecond})

	c.Set(ctx, "k", testPayload{Value: "v"})

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Value)
}

func TestGetExpiresAfterMaxAge(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{MaxAge: 20 * time.Millisecond})

	c.Set(ctx, "k", testPayload{Value: "v"})
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "entry should be treated as absent once maxAge is crossed")
}

func TestGetMissingKeyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{})

	_, ok := c.Get(ctx, "never-set")
	assert.False(t, ok)
}

func TestSetSupersedesPriorEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{})

	c.Set(ctx, "k", testPayload{Value: "first"})
	c.Set(ctx, "k", testPayload{Value: "second"})

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "second", got.Value)
	assert.Equal(t, 1, c.Size())
}

func TestCleanupEvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{MaxAge: time.Hour, MaxItems: 2})

	c.Set(ctx, "cold", testPayload{Value: "cold"})
	time.Sleep(2 * time.Millisecond)
	c.Set(ctx, "warm", testPayload{Value: "warm"})
	time.Sleep(2 * time.Millisecond)
	c.Set(ctx, "hot", testPayload{Value: "hot"})

	// Touch the oldest entry so recency, not insertion order, decides.
	time.Sleep(2 * time.Millisecond)
	_, ok := c.Get(ctx, "cold")
	require.True(t, ok)

	c.Cleanup(ctx)

	assert.LessOrEqual(t, c.Size(), 2)
	_, ok = c.Get(ctx, "cold")
	assert.True(t, ok, "recently accessed entry must survive eviction")
	_, ok = c.Get(ctx, "warm")
	assert.False(t, ok, "least recently accessed entry must be evicted")
	_, ok = c.Get(ctx, "hot")
	assert.True(t, ok)
}

func TestCleanupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{MaxAge: time.Hour, MaxItems: 3})

	for i := 0; i < 6; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), testPayload{Value: "v"})
		time.Sleep(time.Millisecond)
	}

	c.Cleanup(ctx)
	sizeAfterFirst := c.Size()
	require.Equal(t, 3, sizeAfterFirst)

	c.Cleanup(ctx)
	assert.Equal(t, sizeAfterFirst, c.Size(), "second sweep with no writes must delete nothing")
}

func TestInitWipesOnSchemaVersionMismatch(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	// Persist entries under an old schema version.
	old := newTestCache(t, store, Options{SchemaVersion: "1"})
	old.Set(ctx, "k", testPayload{Value: "stale"})

	fresh := newTestCache(t, store, Options{SchemaVersion: "2"})
	fresh.Init(ctx)

	_, ok := fresh.Get(ctx, "k")
	assert.False(t, ok, "schema mismatch must leave an empty cache")
	assert.Equal(t, 0, fresh.Size())
}

func TestInitKeepsEntriesOnMatchingSchema(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	first := newTestCache(t, store, Options{SchemaVersion: "2", MaxAge: time.Hour})
	first.Set(ctx, "k", testPayload{Value: "kept"})

	second := newTestCache(t, store, Options{SchemaVersion: "2", MaxAge: time.Hour})
	got, ok := second.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "kept", got.Value)
}

func TestInitFiltersExpiredEntriesAtLoad(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	first := newTestCache(t, store, Options{SchemaVersion: "2", MaxAge: 10 * time.Millisecond})
	first.Set(ctx, "k", testPayload{Value: "soon stale"})

	time.Sleep(20 * time.Millisecond)

	second := newTestCache(t, store, Options{SchemaVersion: "2", MaxAge: 10 * time.Millisecond})
	second.Init(ctx)
	assert.Equal(t, 0, second.Size())
}

func TestInitConcurrentCallersShareOneInitialization(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: kvstore.NewMemoryStore()}
	c := New[testPayload](store, Options{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Init(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.gets, "concurrent callers must await one in-flight initialization")
}

func TestBrokenStoreDegradesToEmptyCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, failingStore{}, Options{})

	c.Init(ctx)

	// Init must not block or panic; the cache serves from memory.
	c.Set(ctx, "k", testPayload{Value: "v"})
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Value)
}

func TestClearRemovesPersistedRecords(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := newTestCache(t, store, Options{})

	c.Set(ctx, "k", testPayload{Value: "v"})
	c.Clear(ctx)

	assert.Equal(t, 0, c.Size())
	docs, err := store.Get(ctx, kvstore.KeyPriceCache, kvstore.KeyCacheMetadata)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// countingStore counts Get calls to observe initialization sharing.
type countingStore struct {
	kvstore.Store
	mu   sync.Mutex
	gets int
}

func (s *countingStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.Store.Get(ctx, keys...)
}

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, ...string) (map[string]json.RawMessage, error) {
	return nil, errors.New("store down")
}

func (failingStore) Set(context.Context, map[string]json.RawMessage) error {
	return errors.New("store down")
}

func (failingStore) Remove(context.Context, ...string) error {
	return errors.New("store down")
}
