package resolve

import "github.com/1etu/easyupoo/internal/platform"

// ResolvedPrice is the canonical outcome of one resolution attempt.
// Immutable once created; a later resolution for the same listing key
// supersedes it in the cache, never mutates it.
type ResolvedPrice struct {
	// Platform that supplied the winning price; empty when no platform
	// reference was found on the listing page at all.
	Platform platform.ID `json:"platform,omitempty"`

	// Price in the upstream (base) currency. nil is the "unavailable"
	// sentinel.
	Price *float64 `json:"price"`

	// Link is the upstream listing URL, absent if no platform matched.
	Link string `json:"link,omitempty"`

	// ProductID is kept so agent purchase links can be built from cached
	// results without re-fetching the page.
	ProductID string `json:"productId,omitempty"`
}

// Available reports whether this result carries both a price and a link.
// This is the survival predicate for selection.
func (r ResolvedPrice) Available() bool {
	return r.Price != nil && r.Link != ""
}
