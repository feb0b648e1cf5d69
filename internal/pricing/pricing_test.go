package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cashback/internal/core"
	"cashback/internal/store/jsonfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGecko serves the two CoinGecko endpoints used by the client.
type fakeGecko struct {
	history map[string]float64 // dd-mm-yyyy -> price
	fail    atomic.Bool
	calls   atomic.Int64
	lastKey atomic.Value
	release chan struct{}

	mu   sync.Mutex
	spot float64
}

func (f *fakeGecko) setSpot(v float64) {
	f.mu.Lock()
	f.spot = v
	f.mu.Unlock()
}

func (f *fakeGecko) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /coins/solana/history", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.lastKey.Store(r.Header.Get(apiKeyHeader))
		if f.release != nil {
			<-f.release
		}
		if f.fail.Load() {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		if r.URL.Query().Get("localization") != "false" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		p, ok := f.history[r.URL.Query().Get("date")]
		if !ok {
			fmt.Fprint(w, `{"id":"solana"}`)
			return
		}
		fmt.Fprintf(w, `{"id":"solana","market_data":{"current_price":{"usd":%v,"eur":1}}}`, p)
	})
	mux.HandleFunc("GET /simple/price", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		f.mu.Lock()
		spot := f.spot
		f.mu.Unlock()
		fmt.Fprintf(w, `{"%s":{"usd":%v}}`, r.URL.Query().Get("ids"), spot)
	})
	return mux
}

func newFake(t *testing.T, f *fakeGecko) *CoinGeckoClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewCoinGeckoClient(srv.URL+"/", "demo-key", 2*time.Second)
}

func newResolver(t *testing.T, client *CoinGeckoClient, today time.Time) (*Resolver, *jsonfile.Store) {
	t.Helper()
	st, err := jsonfile.New(t.TempDir(), nil)
	require.NoError(t, err)
	r := NewResolver(ResolverConfig{Symbol: "SOL", CoinID: "solana", MemorySize: 16}, client, st, nil).
		WithClock(func() time.Time { return today })
	return r, st
}

func TestCoinGeckoHistorical(t *testing.T) {
	f := &fakeGecko{history: map[string]float64{"03-01-2026": 187.42}}
	client := newFake(t, f)

	p, err := client.Historical(context.Background(), "solana", core.NewDate(2026, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 187.42, p)
	assert.Equal(t, "demo-key", f.lastKey.Load())

	_, err = client.Historical(context.Background(), "solana", core.NewDate(2026, 1, 4))
	assert.ErrorIs(t, err, ErrUpstream, "missing market data is an upstream failure")

	f.fail.Store(true)
	_, err = client.Historical(context.Background(), "solana", core.NewDate(2026, 1, 3))
	assert.ErrorIs(t, err, ErrUpstream)
	assert.EqualValues(t, 3, f.calls.Load(), "no retries")
}

func TestCoinGeckoSpot(t *testing.T) {
	f := &fakeGecko{spot: 201.5}
	client := newFake(t, f)
	p, err := client.Spot(context.Background(), "solana")
	require.NoError(t, err)
	assert.Equal(t, 201.5, p)

	f.setSpot(0)
	_, err = client.Spot(context.Background(), "solana")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestResolverSources(t *testing.T) {
	ctx := context.Background()
	f := &fakeGecko{history: map[string]float64{"03-01-2026": 150}}
	today := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	r, st := newResolver(t, newFake(t, f), today)
	d := core.NewDate(2026, 1, 3)

	q, err := r.Resolve(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, Quote{Symbol: "SOL", Date: d, PriceUSD: 150, Source: SourceAPI}, q)

	p, ok, err := st.GetPrice(ctx, "SOL", d)
	require.NoError(t, err)
	assert.True(t, ok, "fetched price must be persisted")
	assert.Equal(t, 150.0, p)

	q, err = r.Resolve(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, q.Source)
	assert.EqualValues(t, 1, f.calls.Load())

	// A fresh resolver over the same store reads the persisted cache.
	r2 := NewResolver(ResolverConfig{Symbol: "SOL", CoinID: "solana"}, newFake(t, &fakeGecko{}), st, nil).
		WithClock(func() time.Time { return today })
	q, err = r2.Resolve(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, q.Source)
	assert.Equal(t, 150.0, q.PriceUSD)
	assert.EqualValues(t, 1, r2.Stats().StoreHits)
}

func TestResolverRejectsFutureDates(t *testing.T) {
	f := &fakeGecko{}
	today := time.Date(2026, 1, 10, 23, 59, 0, 0, time.UTC)
	r, _ := newResolver(t, newFake(t, f), today)

	_, err := r.Resolve(context.Background(), core.NewDate(2026, 1, 11))
	assert.ErrorIs(t, err, core.ErrFutureDate)
	assert.EqualValues(t, 0, f.calls.Load(), "future dates never reach the API")

	_, ok := r.PriceOn(context.Background())(core.NewDate(2026, 1, 11))
	assert.False(t, ok)
}

func TestResolverFailureIsSkipNotZero(t *testing.T) {
	f := &fakeGecko{}
	f.fail.Store(true)
	r, st := newResolver(t, newFake(t, f), time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	_, err := r.Resolve(context.Background(), core.NewDate(2026, 1, 3))
	assert.ErrorIs(t, err, ErrUpstream)

	p, ok := r.PriceOn(context.Background())(core.NewDate(2026, 1, 3))
	assert.False(t, ok)
	assert.Zero(t, p)

	_, cached, _ := st.GetPrice(context.Background(), "SOL", core.NewDate(2026, 1, 3))
	assert.False(t, cached, "failures must not be cached")
	assert.EqualValues(t, 2, r.Stats().Failures)
}

func TestResolverCoalescesConcurrentMisses(t *testing.T) {
	f := &fakeGecko{history: map[string]float64{"03-01-2026": 99}, release: make(chan struct{})}
	r, _ := newResolver(t, newFake(t, f), time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := r.Resolve(context.Background(), core.NewDate(2026, 1, 3))
			if err == nil && q.PriceUSD != 99 {
				err = errors.New("wrong price")
			}
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestResolverCallerCancelDoesNotFailOthers(t *testing.T) {
	f := &fakeGecko{history: map[string]float64{"03-01-2026": 99}, release: make(chan struct{})}
	r, st := newResolver(t, newFake(t, f), time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	date := core.NewDate(2026, 1, 3)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, date)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan Quote, 1)
	secondErr := make(chan error, 1)
	go func() {
		q, err := r.Resolve(context.Background(), date)
		second <- q
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(f.release)
	require.NoError(t, <-secondErr)
	q := <-second
	assert.Equal(t, 99.0, q.PriceUSD)
	assert.Equal(t, SourceAPI, q.Source)
	assert.EqualValues(t, 1, f.calls.Load())

	p, ok, err := st.GetPrice(context.Background(), "SOL", date)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 99.0, p)
}

func TestLiveResolver(t *testing.T) {
	ctx := context.Background()
	f := &fakeGecko{spot: 200}
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	lc := &LiveCache{}
	l := NewLiveResolver("SOL", "solana", newFake(t, f), lc, 15*time.Minute, nil).
		WithClock(func() time.Time { return now })

	q, err := l.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200.0, q.PriceUSD)
	assert.Equal(t, SourceAPI, q.Source)
	assert.False(t, q.Stale)

	f.setSpot(210)
	now = now.Add(14 * time.Minute)
	q, err = l.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200.0, q.PriceUSD, "still fresh")
	assert.Equal(t, SourceCache, q.Source)
	assert.EqualValues(t, 14*60, q.AgeSeconds)

	now = now.Add(2 * time.Minute)
	q, err = l.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, 210.0, q.PriceUSD, "refetched after ttl")
	assert.EqualValues(t, 2, f.calls.Load())

	f.fail.Store(true)
	now = now.Add(time.Hour)
	q, err = l.Live(ctx)
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.Equal(t, 210.0, q.PriceUSD)
	assert.EqualValues(t, 3600, q.AgeSeconds)
}

func TestLiveResolverWithoutAnyValue(t *testing.T) {
	f := &fakeGecko{}
	f.fail.Store(true)
	l := NewLiveResolver("SOL", "solana", newFake(t, f), nil, 0, nil)

	_, err := l.Live(context.Background())
	assert.ErrorIs(t, err, ErrNoPrice)
}
