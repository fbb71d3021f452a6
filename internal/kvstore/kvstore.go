package kvstore

import (
	"context"
	"encoding/json"
)

// Logical record keys shared by every backend. Store-agnostic on purpose:
// the same names are used whether the documents live in a file, redis or
// postgres.
const (
	KeyPriceCache    = "product_price_cache"
	KeyCacheMetadata = "product_price_cache_metadata"
	KeyBookmarks     = "bookmarks"
	KeyPreferences   = "preferences"
)

// Store is the durable key→JSON-document contract.
// Every call applies atomically: a Set either persists all documents in the
// map or none of them. Absent keys are simply omitted from Get results,
// never reported as errors.
//
// Implemented by the file store (default), redis, postgres and the in-memory
// store used in tests.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, docs map[string]json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
}
