package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cashback/internal/log"

	"golang.org/x/sync/singleflight"
)

// DefaultLiveTTL is how long a fetched spot price counts as fresh.
const DefaultLiveTTL = 15 * time.Minute

// SpotSource returns the current USD price of a coin.
type SpotSource interface {
	Spot(ctx context.Context, coinID string) (float64, error)
}

// LiveCache holds the last fetched spot price and when it was fetched.
// Freshness is decided by the reader at read time.
type LiveCache struct {
	mu        sync.RWMutex
	value     float64
	fetchedAt time.Time
}

// Load returns the cached value, or false if nothing was ever stored.
func (c *LiveCache) Load() (float64, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.fetchedAt, !c.fetchedAt.IsZero()
}

func (c *LiveCache) Store(value float64, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.fetchedAt = fetchedAt
}

// LiveQuote is the current price with its age.
type LiveQuote struct {
	Symbol     string    `json:"symbol"`
	PriceUSD   float64   `json:"priceUSD"`
	FetchedAt  time.Time `json:"fetchedAt"`
	AgeSeconds int64     `json:"ageSeconds"`
	Stale      bool      `json:"stale"`
	Source     string    `json:"source"`
}

type LiveResolver struct {
	symbol string
	coinID string
	source SpotSource
	cache  *LiveCache
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group
	logger *log.Logger
}

func NewLiveResolver(symbol, coinID string, source SpotSource, lc *LiveCache, ttl time.Duration, logger *log.Logger) *LiveResolver {
	if lc == nil {
		lc = &LiveCache{}
	}
	if ttl <= 0 {
		ttl = DefaultLiveTTL
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &LiveResolver{
		symbol: symbol,
		coinID: coinID,
		source: source,
		cache:  lc,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentPricing),
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *LiveResolver) WithClock(now func() time.Time) *LiveResolver {
	l.now = now
	return l
}

// Live returns a fresh cached price, or fetches one. When the fetch fails the
// last known price is returned marked stale; with no price ever fetched the
// result is ErrNoPrice.
func (l *LiveResolver) Live(ctx context.Context) (LiveQuote, error) {
	now := l.now()
	if v, at, ok := l.cache.Load(); ok && now.Sub(at) < l.ttl {
		return l.quote(v, at, now, false, SourceCache), nil
	}

	flightCtx := context.WithoutCancel(ctx)
	_, err, _ := l.group.Do(l.coinID, func() (any, error) {
		p, err := l.source.Spot(flightCtx, l.coinID)
		if err != nil {
			return nil, err
		}
		l.cache.Store(p, l.now())
		return nil, nil
	})
	if err == nil {
		v, at, _ := l.cache.Load()
		return l.quote(v, at, now, false, SourceAPI), nil
	}

	if v, at, ok := l.cache.Load(); ok {
		l.logger.WarnContext(ctx, "Live price fetch failed, serving stale value",
			log.FieldSymbol, l.symbol,
			"age_seconds", int64(now.Sub(at).Seconds()),
			log.FieldError, err)
		return l.quote(v, at, now, true, SourceCache), nil
	}
	return LiveQuote{}, fmt.Errorf("live %s price: %w: %v", l.symbol, ErrNoPrice, err)
}

func (l *LiveResolver) quote(v float64, at, now time.Time, stale bool, source string) LiveQuote {
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	return LiveQuote{
		Symbol:     l.symbol,
		PriceUSD:   v,
		FetchedAt:  at.UTC(),
		AgeSeconds: int64(age.Seconds()),
		Stale:      stale,
		Source:     source,
	}
}
