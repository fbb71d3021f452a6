package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDump marks an import file the cache refuses to load. The cache
// is left unmodified whenever Import returns an error wrapping it.
var ErrInvalidDump = errors.New("invalid cache dump")

// Dump is the file-based interchange format for the cache.
type Dump struct {
	Version   string                     `json:"version"`
	Timestamp int64                      `json:"timestamp"`
	Items     map[string]json.RawMessage `json:"items"`
}

// Export snapshots every currently valid entry into the interchange format.
func (c *Cache[T]) Export(ctx context.Context) (Dump, error) {
	c.Init(ctx)

	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	dump := Dump{
		Version:   c.opts.SchemaVersion,
		Timestamp: now.UnixMilli(),
		Items:     make(map[string]json.RawMessage, len(c.entries)),
	}

	for key, e := range c.entries {
		if !c.validAt(e, now) {
			continue
		}
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return Dump{}, fmt.Errorf("marshal payload for %q: %w", key, err)
		}
		dump.Items[key] = raw
	}

	return dump, nil
}

// Import loads a dump produced by Export. The version must match the running
// schema version exactly (strict equality, deliberately stricter than older
// clients which only checked presence) and items must be present; anything
// else is rejected with ErrInvalidDump and the cache stays untouched.
// Imported entries get fresh timestamps, since only post-import validity
// matters.
func (c *Cache[T]) Import(ctx context.Context, raw []byte) (int, error) {
	c.Init(ctx)

	var dump Dump
	if err := json.Unmarshal(raw, &dump); err != nil {
		return 0, fmt.Errorf("%w: not a JSON cache dump: %v", ErrInvalidDump, err)
	}
	if dump.Version == "" {
		return 0, fmt.Errorf("%w: missing version", ErrInvalidDump)
	}
	if dump.Version != c.opts.SchemaVersion {
		return 0, fmt.Errorf("%w: version %q does not match %q",
			ErrInvalidDump, dump.Version, c.opts.SchemaVersion)
	}
	if dump.Items == nil {
		return 0, fmt.Errorf("%w: missing items", ErrInvalidDump)
	}

	// Decode every payload before mutating anything so a bad item rejects
	// the whole file.
	decoded := make(map[string]T, len(dump.Items))
	for key, item := range dump.Items {
		var payload T
		if err := json.Unmarshal(item, &payload); err != nil {
			return 0, fmt.Errorf("%w: item %q: %v", ErrInvalidDump, key, err)
		}
		decoded[key] = payload
	}

	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, payload := range decoded {
		c.entries[key] = Entry[T]{
			Payload:        payload,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
	}
	c.persistLocked(ctx, true, false)

	return len(decoded), nil
}
