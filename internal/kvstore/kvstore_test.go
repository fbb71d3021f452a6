package kvstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	docs := map[string]json.RawMessage{
		KeyPreferences: json.RawMessage(`{"agent":"superbuy"}`),
		KeyBookmarks:   json.RawMessage(`{}`),
	}
	require.NoError(t, s.Set(ctx, docs))

	got, err := s.Get(ctx, KeyPreferences, KeyBookmarks, "absent")
	require.NoError(t, err)
	assert.Len(t, got, 2, "absent keys are omitted, not errors")
	assert.JSONEq(t, `{"agent":"superbuy"}`, string(got[KeyPreferences]))
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{
		KeyPriceCache: json.RawMessage(`{"k":1}`),
	}))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, KeyPriceCache)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":1}`, string(got[KeyPriceCache]))
}

func TestFileStoreRemovePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`2`),
	}))
	require.NoError(t, s.Remove(ctx, "a", "never-existed"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.NotContains(t, got, "a")
	assert.Contains(t, got, "b")
}

func TestFileStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestMemoryStoreCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := json.RawMessage(`{"v":1}`)
	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{"k": doc}))

	// Mutating the caller's slice must not reach the stored copy.
	doc[5] = '9'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got["k"]))

	// And mutating a returned document must not reach the store.
	got["k"][5] = '7'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(again["k"]))
}

func TestStoreHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	_, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, nil))
	assert.Error(t, s.Remove(ctx, "k"))
}
