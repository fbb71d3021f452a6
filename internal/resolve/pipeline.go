package resolve

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/1etu/easyupoo/internal/cache"
	"github.com/1etu/easyupoo/internal/fetch"
	"github.com/1etu/easyupoo/internal/metrics"
	"github.com/1etu/easyupoo/internal/platform"
)

// Fetcher is the restricted proxy channel the pipeline issues GETs through.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// Pipeline resolves one authoritative upstream price per listing URL:
// cache check, primary page fetch, per-platform reference extraction,
// concurrent secondary lookups, deterministic selection, persist.
//
// Concurrent resolutions for the same key share a single network round trip
// (singleflight over the network path). The cache check stays outside the
// flight so a Refresh caller can never be handed a cached value by
// coalescing.
type Pipeline struct {
	cache     *cache.Cache[ResolvedPrice]
	client    Fetcher
	platforms *platform.Registry
	logger    *zap.Logger

	sf singleflight.Group
}

func New(c *cache.Cache[ResolvedPrice], client Fetcher, reg *platform.Registry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cache:     c,
		client:    client,
		platforms: reg,
		logger:    logger.Named("resolve"),
	}
}

// Resolve returns the price for a listing, serving from the cache when a
// valid entry exists. It never returns an error: every failure mode
// terminates in a well-formed ResolvedPrice with an unavailable price.
func (p *Pipeline) Resolve(ctx context.Context, listingURL string) ResolvedPrice {
	start := time.Now()

	if cached, ok := p.cache.Get(ctx, listingURL); ok {
		metrics.CacheHitsTotal.Inc()
		metrics.ResolveLatencySeconds.
			WithLabelValues("cache", outcome(cached)).
			Observe(time.Since(start).Seconds())
		return cached
	}

	return p.resolveShared(ctx, listingURL, start)
}

// Refresh re-runs the resolution from the network, bypassing the cache
// check. The result still supersedes the cached entry.
func (p *Pipeline) Refresh(ctx context.Context, listingURL string) ResolvedPrice {
	return p.resolveShared(ctx, listingURL, time.Now())
}

func (p *Pipeline) resolveShared(ctx context.Context, listingURL string, start time.Time) ResolvedPrice {
	v, _, shared := p.sf.Do(listingURL, func() (any, error) {
		return p.resolveNetwork(ctx, listingURL), nil
	})
	result := v.(ResolvedPrice)

	if shared {
		p.logger.Debug("resolution shared with in-flight request",
			zap.String("listing", listingURL),
		)
	}

	metrics.ResolveLatencySeconds.
		WithLabelValues("network", outcome(result)).
		Observe(time.Since(start).Seconds())
	return result
}

// resolveNetwork runs steps Fetch → Extract → ConcurrentQuery → Select →
// Persist.
func (p *Pipeline) resolveNetwork(ctx context.Context, listingURL string) ResolvedPrice {
	primary := p.client.Fetch(ctx, listingURL)
	if !primary.Success {
		// Transient by definition; resolved to Unavailable without
		// persisting so one bad fetch does not poison the cache for a TTL.
		p.logger.Debug("primary fetch failed",
			zap.String("listing", listingURL),
			zap.String("error", primary.Error),
		)
		return ResolvedPrice{}
	}

	// Extract: platforms with no reference on the page are skipped.
	type candidate struct {
		platform *platform.Platform
		ref      string
	}
	var candidates []candidate
	for _, pl := range p.platforms.All() {
		if ref, ok := pl.FindReference(primary.Data); ok {
			candidates = append(candidates, candidate{platform: pl, ref: ref})
		}
	}

	// ConcurrentQuery: one goroutine per matched platform, each writing its
	// own result slot. A platform's failure never cancels or fails the
	// others; all outcomes are gathered.
	results := make([]platformResult, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(slot int, c candidate) {
			defer wg.Done()
			results[slot] = platformResult{
				priority: c.platform.Priority,
				result:   p.queryPlatform(ctx, c.platform, c.ref),
			}
		}(i, c)
	}
	wg.Wait()

	selected := selectPlatformPrice(results)

	p.cache.Set(ctx, listingURL, selected)

	p.logger.Info("listing resolved",
		zap.String("listing", listingURL),
		zap.String("platform", string(selected.Platform)),
		zap.Bool("available", selected.Available()),
		zap.Int("platforms_matched", len(candidates)),
	)
	return selected
}

// queryPlatform runs one platform's secondary lookup. Always returns a
// result for the platform; failures just leave the price unavailable.
func (p *Pipeline) queryPlatform(ctx context.Context, pl *platform.Platform, ref string) ResolvedPrice {
	productID, ok := pl.ExtractProductID(ref)
	if !ok {
		metrics.PlatformFetchFailuresTotal.WithLabelValues(string(pl.ID)).Inc()
		return ResolvedPrice{Platform: pl.ID}
	}

	lookupURL := pl.LookupURL(productID)

	res := p.client.Fetch(ctx, lookupURL)
	if !res.Success {
		metrics.PlatformFetchFailuresTotal.WithLabelValues(string(pl.ID)).Inc()
		p.logger.Debug("platform lookup failed",
			zap.String("platform", string(pl.ID)),
			zap.String("error", res.Error),
		)
		return ResolvedPrice{Platform: pl.ID, Link: lookupURL, ProductID: productID}
	}

	price, ok := pl.ParsePrice(res.Data)
	if !ok {
		metrics.PlatformFetchFailuresTotal.WithLabelValues(string(pl.ID)).Inc()
		return ResolvedPrice{Platform: pl.ID, Link: lookupURL, ProductID: productID}
	}

	return ResolvedPrice{
		Platform:  pl.ID,
		Price:     &price,
		Link:      lookupURL,
		ProductID: productID,
	}
}

func outcome(r ResolvedPrice) string {
	if r.Available() {
		return "resolved"
	}
	return "unavailable"
}
