package rates

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/1etu/easyupoo/internal/metrics"
)

// ErrRatesUnavailable is the distinguishable "all sources exhausted"
// condition. Callers decide whether to fall back to an unconverted price.
var ErrRatesUnavailable = errors.New("exchange rates unavailable")

// BaseCurrency is the neutral currency all conversions pass through.
// Upstream platform prices are quoted in it.
const BaseCurrency = "CNY"

// Table maps 3-letter currency codes to multipliers: one unit of the base
// currency equals Rates[code] units of the target.
type Table struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// Source fetches a conversion table from one upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[string]float64, error)
}

// Provider owns the single in-memory table, refreshed at most once per
// interval. Concurrent refreshes collapse into one upstream round trip via
// singleflight; everyone else shares that flight's result.
type Provider struct {
	sources         []Source
	refreshInterval time.Duration
	logger          *zap.Logger

	sf singleflight.Group

	mu    sync.RWMutex
	table *Table
}

func NewProvider(sources []Source, refreshInterval time.Duration, logger *zap.Logger) *Provider {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		sources:         sources,
		refreshInterval: refreshInterval,
		logger:          logger.Named("rates"),
	}
}

// Rates returns the cached table when fresh, otherwise tries the configured
// sources in order and returns the first parseable table. When every source
// fails it returns ErrRatesUnavailable, together with the stale table if
// one exists, as a last resort the caller may still choose to use.
func (p *Provider) Rates(ctx context.Context) (Table, error) {
	if t, ok := p.fresh(); ok {
		return t, nil
	}

	v, err, _ := p.sf.Do("refresh", func() (any, error) {
		// A concurrent flight may have refreshed while we queued.
		if t, ok := p.fresh(); ok {
			return t, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		p.mu.RLock()
		stale := p.table
		p.mu.RUnlock()
		if stale != nil {
			return *stale, err
		}
		return Table{}, err
	}
	return v.(Table), nil
}

func (p *Provider) fresh() (Table, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.table != nil && time.Since(p.table.FetchedAt) < p.refreshInterval {
		return *p.table, true
	}
	return Table{}, false
}

func (p *Provider) refresh(ctx context.Context) (Table, error) {
	for _, src := range p.sources {
		rates, err := src.Fetch(ctx)
		if err != nil {
			p.logger.Warn("rates source failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			continue
		}
		if len(rates) == 0 {
			p.logger.Warn("rates source returned empty table",
				zap.String("source", src.Name()),
			)
			continue
		}

		table := Table{
			Base:      BaseCurrency,
			Rates:     rates,
			FetchedAt: time.Now(),
		}

		p.mu.Lock()
		p.table = &table
		p.mu.Unlock()

		metrics.RatesRefreshTotal.WithLabelValues("success").Inc()
		p.logger.Info("rates refreshed",
			zap.String("source", src.Name()),
			zap.Int("currencies", len(rates)),
		)
		return table, nil
	}

	metrics.RatesRefreshTotal.WithLabelValues("failure").Inc()
	return Table{}, ErrRatesUnavailable
}

// Convert is pure over the currently cached table. With no table loaded it
// returns the amount unchanged: availability of a number over correctness
// of the conversion; callers know the value may be un-converted. Unknown
// codes pass through the base at multiplier 1.
func (p *Provider) Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}

	p.mu.RLock()
	table := p.table
	p.mu.RUnlock()

	if table == nil {
		return amount
	}

	return convert(table.Rates, amount, from, to)
}

func convert(rates map[string]float64, amount float64, from, to string) float64 {
	inBase := amount
	if from != BaseCurrency {
		if r, ok := rates[from]; ok && r > 0 {
			inBase = amount / r
		}
	}
	if to == BaseCurrency {
		return inBase
	}
	if r, ok := rates[to]; ok && r > 0 {
		return inBase * r
	}
	return inBase
}
