package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name  string
	rates map[string]float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(ctx context.Context) (map[string]float64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.rates, nil
}

func TestRatesFirstSourceWins(t *testing.T) {
	primary := &fakeSource{name: "primary", rates: map[string]float64{"USD": 0.14}}
	backup := &fakeSource{name: "backup", rates: map[string]float64{"USD": 0.99}}
	p := NewProvider([]Source{primary, backup}, time.Hour, nil)

	table, err := p.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.14, table.Rates["USD"])
	assert.Equal(t, BaseCurrency, table.Base)
	assert.Equal(t, int32(0), backup.calls.Load(), "backup source must not be consulted")
}

func TestRatesOrderedFallback(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("boom")}
	backup := &fakeSource{name: "backup", rates: map[string]float64{"USD": 0.14}}
	p := NewProvider([]Source{primary, backup}, time.Hour, nil)

	table, err := p.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.14, table.Rates["USD"])
}

func TestRatesAllSourcesExhausted(t *testing.T) {
	p := NewProvider([]Source{
		&fakeSource{name: "a", err: errors.New("down")},
		&fakeSource{name: "b", err: errors.New("down")},
	}, time.Hour, nil)

	_, err := p.Rates(context.Background())
	assert.ErrorIs(t, err, ErrRatesUnavailable)
}

func TestRatesStaleTableReturnedWithError(t *testing.T) {
	src := &fakeSource{name: "flaky", rates: map[string]float64{"USD": 0.14}}
	p := NewProvider([]Source{src}, time.Nanosecond, nil)

	_, err := p.Rates(context.Background())
	require.NoError(t, err)

	// Table is now stale and the source starts failing.
	src.err = errors.New("down")
	time.Sleep(time.Millisecond)

	table, err := p.Rates(context.Background())
	assert.ErrorIs(t, err, ErrRatesUnavailable)
	assert.Equal(t, 0.14, table.Rates["USD"], "stale table is still handed back as a last resort")
}

func TestRatesFreshTableSkipsNetwork(t *testing.T) {
	src := &fakeSource{name: "src", rates: map[string]float64{"USD": 0.14}}
	p := NewProvider([]Source{src}, time.Hour, nil)

	ctx := context.Background()
	_, err := p.Rates(ctx)
	require.NoError(t, err)
	_, err = p.Rates(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRatesConcurrentRefreshShared(t *testing.T) {
	src := &fakeSource{
		name:  "slow",
		rates: map[string]float64{"USD": 0.14},
		delay: 20 * time.Millisecond,
	}
	p := NewProvider([]Source{src}, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Rates(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load(), "concurrent refreshers must share one flight")
}

func TestConvertIdentityWithoutTable(t *testing.T) {
	p := NewProvider(nil, time.Hour, nil)
	assert.Equal(t, 100.0, p.Convert(100, "CNY", "USD"))
}

func TestConvert(t *testing.T) {
	src := &fakeSource{name: "src", rates: map[string]float64{"USD": 0.14, "EUR": 0.13}}
	p := NewProvider([]Source{src}, time.Hour, nil)
	_, err := p.Rates(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 14.0, p.Convert(100, "CNY", "USD"), 1e-9)
	assert.InDelta(t, 100.0, p.Convert(14, "USD", "CNY"), 1e-9)
	assert.InDelta(t, 13.0, p.Convert(14, "USD", "EUR"), 1e-9)

	// Unknown codes pass through the base at multiplier 1.
	assert.InDelta(t, 100.0, p.Convert(100, "XXX", "CNY"), 1e-9)
	assert.InDelta(t, 50.0, p.Convert(50, "CNY", "CNY"), 1e-9)
}
