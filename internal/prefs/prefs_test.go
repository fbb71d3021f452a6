package prefs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1etu/easyupoo/internal/kvstore"
)

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	s := NewService(kvstore.NewMemoryStore(), nil)

	got, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s := NewService(store, nil)

	want := Preferences{Platform: "taobao", Agent: "cssbuy", Currency: "USD"}
	require.NoError(t, s.Save(ctx, want))

	// A fresh service over the same store sees the persisted record.
	got, err := NewService(store, nil).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveBroadcastsToSubscribers(t *testing.T) {
	s := NewService(kvstore.NewMemoryStore(), nil)

	ch, cancel := s.Subscribe(1)
	defer cancel()

	want := Preferences{Platform: "weidian", Agent: "cssbuy", Currency: "EUR"}
	require.NoError(t, s.Save(context.Background(), want))

	select {
	case ev := <-ch:
		assert.Equal(t, EventPreferencesUpdated, ev.Type)
		require.NotNil(t, ev.Preferences)
		assert.Equal(t, want, *ev.Preferences)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast event")
	}
}

func TestBroadcastSkipsFullSubscribers(t *testing.T) {
	s := NewService(kvstore.NewMemoryStore(), nil)

	full, cancelFull := s.Subscribe(1)
	defer cancelFull()
	healthy, cancelHealthy := s.Subscribe(4)
	defer cancelHealthy()

	// Fill the first subscriber's buffer and never drain it.
	s.NotifyCacheToggled(true)
	require.Len(t, full, 1)

	// The next broadcast must still reach the healthy subscriber.
	s.NotifyCacheToggled(false)

	drained := 0
	for len(healthy) > 0 {
		<-healthy
		drained++
	}
	assert.Equal(t, 2, drained, "healthy subscriber receives every event")
	assert.Len(t, full, 1, "full subscriber is skipped, not blocked on")
}

func TestCacheToggledEvent(t *testing.T) {
	s := NewService(kvstore.NewMemoryStore(), nil)

	ch, cancel := s.Subscribe(1)
	defer cancel()

	s.NotifyCacheToggled(false)

	select {
	case ev := <-ch:
		assert.Equal(t, EventCacheToggled, ev.Type)
		require.NotNil(t, ev.Enabled)
		assert.False(t, *ev.Enabled)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast event")
	}
}
