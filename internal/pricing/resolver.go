package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cashback/internal/cache"
	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/store"

	"golang.org/x/sync/singleflight"
)

const (
	SourceCache = "cache"
	SourceAPI   = "api"
)

// HistoricalSource returns the USD price of a coin on a calendar date.
type HistoricalSource interface {
	Historical(ctx context.Context, coinID string, date core.Date) (float64, error)
}

// Quote is a resolved historical price.
type Quote struct {
	Symbol   string    `json:"symbol"`
	Date     core.Date `json:"date"`
	PriceUSD float64   `json:"priceUSD"`
	Source   string    `json:"source"`
}

// ResolverStats counts where resolved prices came from.
type ResolverStats struct {
	MemoryHits uint64
	StoreHits  uint64
	APIFetches uint64
	Failures   uint64
	Memory     cache.Stats
}

// Resolver looks up a date's price in memory, then in the persisted price
// cache, then from the API. Fetched prices are persisted and never refreshed.
type Resolver struct {
	symbol string
	coinID string
	source HistoricalSource
	store  store.PriceCacheStore
	memory *cache.LRUCache[float64]
	group  singleflight.Group
	now    func() time.Time
	logger *log.Logger

	storeHits  atomic.Uint64
	apiFetches atomic.Uint64
	failures   atomic.Uint64
	memoryHits atomic.Uint64
}

type ResolverConfig struct {
	Symbol     string
	CoinID     string
	MemorySize int
}

func NewResolver(cfg ResolverConfig, source HistoricalSource, st store.PriceCacheStore, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = 1024
	}
	return &Resolver{
		symbol: cfg.Symbol,
		coinID: cfg.CoinID,
		source: source,
		store:  st,
		// Historical prices are immutable, so memory entries never expire.
		memory: cache.NewLRUCache[float64](cfg.MemorySize, 0),
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentPricing),
	}
}

// WithClock overrides the clock used to decide what "today" is.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) Symbol() string { return r.symbol }

// Resolve returns the price for date. Dates after today fail with
// core.ErrFutureDate without contacting the API.
func (r *Resolver) Resolve(ctx context.Context, date core.Date) (Quote, error) {
	if date.After(core.DateOf(r.now())) {
		return Quote{}, fmt.Errorf("resolve %s: %w", date, core.ErrFutureDate)
	}
	key := date.String()
	quote := Quote{Symbol: r.symbol, Date: date, Source: SourceCache}

	if p, ok := r.memory.Get(key); ok {
		r.memoryHits.Add(1)
		quote.PriceUSD = p
		return quote, nil
	}

	if p, ok := r.fromStore(ctx, date); ok {
		quote.PriceUSD = p
		return quote, nil
	}

	// The flight outlives any single caller: a caller that gives up must not
	// fail the others waiting on the same date.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		// A flight that finished just before this one may have filled memory.
		if p, ok := r.memory.Get(key); ok {
			return fetched{price: p, source: SourceCache}, nil
		}
		p, err := r.source.Historical(flightCtx, r.coinID, date)
		if err != nil {
			return nil, err
		}
		r.apiFetches.Add(1)
		if err := r.store.PutPrice(flightCtx, r.symbol, date, p); err != nil {
			r.logger.WarnContext(flightCtx, "Failed to persist fetched price",
				log.FieldSymbol, r.symbol,
				log.FieldDate, key,
				log.FieldError, err)
		}
		r.memory.Set(key, p)
		return fetched{price: p, source: SourceAPI}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Quote{}, fmt.Errorf("resolve %s %s: %w", r.symbol, key, ctx.Err())
	}
	if res.Err != nil {
		r.failures.Add(1)
		return Quote{}, fmt.Errorf("resolve %s %s: %w", r.symbol, key, res.Err)
	}
	f := res.Val.(fetched)
	quote.PriceUSD = f.price
	quote.Source = f.source
	return quote, nil
}

type fetched struct {
	price  float64
	source string
}

func (r *Resolver) fromStore(ctx context.Context, date core.Date) (float64, bool) {
	p, ok, err := r.store.GetPrice(ctx, r.symbol, date)
	if err != nil {
		r.logger.WarnContext(ctx, "Price cache read failed, falling back to API",
			log.FieldSymbol, r.symbol,
			log.FieldDate, date.String(),
			log.FieldError, err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	r.storeHits.Add(1)
	r.memory.Set(date.String(), p)
	return p, true
}

// PriceOn adapts Resolve to core.PriceFunc. Failures are logged and reported
// as a missing price so callers skip the transaction instead of using zero.
func (r *Resolver) PriceOn(ctx context.Context) core.PriceFunc {
	return func(date core.Date) (float64, bool) {
		q, err := r.Resolve(ctx, date)
		if err != nil {
			if !errors.Is(err, core.ErrFutureDate) {
				r.logger.WarnContext(ctx, "Price unavailable, transaction skipped",
					log.FieldSymbol, r.symbol,
					log.FieldDate, date.String(),
					log.FieldError, err)
			}
			return 0, false
		}
		return q.PriceUSD, true
	}
}

func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		MemoryHits: r.memoryHits.Load(),
		StoreHits:  r.storeHits.Load(),
		APIFetches: r.apiFetches.Load(),
		Failures:   r.failures.Load(),
		Memory:     r.memory.Stats(),
	}
}
