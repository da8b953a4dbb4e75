package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/internal/price-service/fetcher"
	"github.com/radieske/crypto-price-stream/internal/price-service/metrics"
	"github.com/radieske/crypto-price-stream/internal/price-service/store"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// scriptedFetcher devolve os resultados na ordem; depois do último repete o último
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

type fetchResult struct {
	prices map[string]float64
	err    error
}

func (f *scriptedFetcher) Fetch(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].prices, f.results[i].err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingBroadcaster struct {
	mu    sync.Mutex
	calls int
	seen  []map[string]events.AssetPrice
}

func (b *countingBroadcaster) Broadcast(src store.Reader) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.seen = append(b.seen, src.Snapshot())
	return 1
}

func (b *countingBroadcaster) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newLoop(f fetcher.Fetcher, b Broadcaster, clock clockwork.Clock) (*Loop, *store.Store, *metrics.Metrics) {
	st := store.New([]string{"btc", "eth"})
	m := metrics.NewNop()
	return &Loop{
		Log:          zap.NewNop(),
		Fetcher:      f,
		Store:        st,
		Broadcaster:  b,
		Symbols:      []string{"btc", "eth"},
		Interval:     10 * time.Second,
		FetchTimeout: 10 * time.Second,
		Clock:        clock,
		Metrics:      m,
	}, st, m
}

func TestCycle_SuccessAppliesAndBroadcasts(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	f := &scriptedFetcher{results: []fetchResult{{prices: map[string]float64{"btc": 50000, "eth": 3000}}}}
	b := &countingBroadcaster{}
	l, st, m := newLoop(f, b, clock)

	var hooked []events.PriceUpdate
	l.OnAfterBroadcast = func(ctx context.Context, u events.PriceUpdate) { hooked = append(hooked, u) }

	require.True(t, l.Cycle(context.Background()))

	snap := st.Snapshot()
	assert.Equal(t, 50000.0, snap["btc"].Price)
	assert.Equal(t, 3000.0, snap["eth"].Price)
	assert.True(t, snap["btc"].LastUpdated.Equal(clock.Now()))
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 50000.0, b.seen[0]["btc"].Price)

	require.Len(t, hooked, 1)
	assert.Equal(t, 3000.0, hooked[0].Data["eth"].Price)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchResults.WithLabelValues(metrics.FetchOK)))
}

func TestCycle_FailureKeepsStoreAndSkipsBroadcast(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		result string
	}{
		{"timeout", fetcher.ErrTimeout, metrics.FetchTimeout},
		{"unavailable", fetcher.ErrUnavailable, metrics.FetchUnavailable},
		{"wrapped unavailable", errors.Join(fetcher.ErrUnavailable, errors.New("status 503")), metrics.FetchUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			f := &scriptedFetcher{results: []fetchResult{
				{prices: map[string]float64{"btc": 1, "eth": 2}},
				{err: tt.err},
			}}
			b := &countingBroadcaster{}
			l, st, m := newLoop(f, b, clock)
			hookCalls := 0
			l.OnAfterBroadcast = func(context.Context, events.PriceUpdate) { hookCalls++ }

			require.True(t, l.Cycle(context.Background()))
			before := st.Snapshot()

			clock.Advance(10 * time.Second)
			assert.False(t, l.Cycle(context.Background()))

			assert.Equal(t, before, st.Snapshot())
			assert.Equal(t, 1, b.Calls())
			assert.Equal(t, 1, hookCalls)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchResults.WithLabelValues(tt.result)))
		})
	}
}

func TestRun_EachCycleReflectsItsFetch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &scriptedFetcher{results: []fetchResult{
		{prices: map[string]float64{"btc": 100, "eth": 10}},
		{prices: map[string]float64{"btc": 200, "eth": 20}},
		{err: fetcher.ErrTimeout},
		{prices: map[string]float64{"btc": 300, "eth": 30}},
	}}
	b := &countingBroadcaster{}
	l, st, _ := newLoop(f, b, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	// cada ciclo termina bloqueado no sleep do clock
	for cycle := 1; cycle <= 4; cycle++ {
		waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
		require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
		waitCancel()
		require.Equal(t, cycle, f.Calls())
		if cycle < 4 {
			clock.Advance(10 * time.Second)
		}
	}

	assert.Equal(t, 3, b.Calls())
	assert.Equal(t, 200.0, b.seen[1]["btc"].Price)
	snap := st.Snapshot()
	assert.Equal(t, 300.0, snap["btc"].Price)
	assert.Equal(t, 30.0, snap["eth"].Price)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop during sleep")
	}
}

func TestRun_CanceledBeforeStartDoesNotFetch(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{prices: map[string]float64{"btc": 1}}}}
	l, _, _ := newLoop(f, &countingBroadcaster{}, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, 0, f.Calls())
}

func TestRun_CancelDuringFetch(t *testing.T) {
	started := make(chan struct{})
	blocking := fetcher.FetchFunc(func(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	b := &countingBroadcaster{}
	l, _, m := newLoop(blocking, b, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop during fetch")
	}
	assert.Equal(t, 0, b.Calls())
	assert.Equal(t, 0, testutil.CollectAndCount(m.FetchResults))
}
