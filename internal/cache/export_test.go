package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestCache(t, nil, Options{MaxAge: time.Hour, SchemaVersion: "2"})

	src.Set(ctx, "https://mirror.example/a", testPayload{Value: "a"})
	src.Set(ctx, "https://mirror.example/b", testPayload{Value: "b"})

	dump, err := src.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", dump.Version)
	assert.Len(t, dump.Items, 2)

	raw, err := json.Marshal(dump)
	require.NoError(t, err)

	dst := newTestCache(t, nil, Options{MaxAge: time.Hour, SchemaVersion: "2"})
	n, err := dst.Import(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, key := range []string{"https://mirror.example/a", "https://mirror.example/b"} {
		want, ok := src.Get(ctx, key)
		require.True(t, ok)
		got, ok := dst.Get(ctx, key)
		require.True(t, ok, "imported entry %q must be valid", key)
		assert.Equal(t, want, got)
	}
}

func TestExportSkipsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{MaxAge: 10 * time.Millisecond})

	c.Set(ctx, "k", testPayload{Value: "v"})
	time.Sleep(20 * time.Millisecond)

	dump, err := c.Export(ctx)
	require.NoError(t, err)
	assert.Empty(t, dump.Items)
}

func TestImportRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{SchemaVersion: "2"})

	raw, err := json.Marshal(Dump{
		Version:   "1",
		Timestamp: time.Now().UnixMilli(),
		Items:     map[string]json.RawMessage{"k": json.RawMessage(`{"value":"v"}`)},
	})
	require.NoError(t, err)

	_, err = c.Import(ctx, raw)
	require.ErrorIs(t, err, ErrInvalidDump)
	assert.Equal(t, 0, c.Size(), "cache must be untouched after a rejected import")
}

func TestImportRejectsMissingItems(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{SchemaVersion: "2"})

	_, err := c.Import(ctx, []byte(`{"version":"2","timestamp":1}`))
	require.ErrorIs(t, err, ErrInvalidDump)
}

func TestImportRejectsMalformedFileUntouched(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil, Options{SchemaVersion: "2", MaxAge: time.Hour})
	c.Set(ctx, "existing", testPayload{Value: "keep"})

	_, err := c.Import(ctx, []byte(`not json at all`))
	require.ErrorIs(t, err, ErrInvalidDump)

	got, ok := c.Get(ctx, "existing")
	require.True(t, ok)
	assert.Equal(t, "keep", got.Value)
	assert.Equal(t, 1, c.Size())
}
