package services

import (
	"context"
	"fmt"
	"time"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/pricing"
	"cashback/internal/store"
)

type (
	// HistoricalPricer resolves a calendar date's price.
	HistoricalPricer interface {
		Resolve(ctx context.Context, date core.Date) (pricing.Quote, error)
		PriceOn(ctx context.Context) core.PriceFunc
		Symbol() string
	}

	// LivePricer returns the current price.
	LivePricer interface {
		Live(ctx context.Context) (pricing.LiveQuote, error)
	}
)

// DashboardService recomputes the monthly dashboard from stored data on every call.
type DashboardService struct {
	transactions store.TransactionStore
	settings     store.SettingsStore
	historical   HistoricalPricer
	live         LivePricer
	now          func() time.Time
	logger       *log.Logger
}

func NewDashboardService(txs store.TransactionStore, settings store.SettingsStore, historical HistoricalPricer, live LivePricer, logger *log.Logger) *DashboardService {
	if logger == nil {
		logger = log.Discard()
	}
	return &DashboardService{
		transactions: txs,
		settings:     settings,
		historical:   historical,
		live:         live,
		now:          time.Now,
		logger:       logger.WithComponent(log.ComponentDashboard),
	}
}

// WithClock overrides the clock used for "today".
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

func (s *DashboardService) Dashboard(ctx context.Context, year, month int) (core.Dashboard, error) {
	txs, err := s.transactions.ListAll(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("list transactions: %w", err)
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("load settings: %w", err)
	}

	today := core.DateOf(s.now())
	d := core.BuildDashboard(core.DashboardInput{
		Transactions: txs,
		Year:         year,
		Month:        month,
		Settings:     settings.Normalize(),
		Symbol:       s.historical.Symbol(),
		Today:        today,
		TodayPrice:   s.todayPrice(ctx, today),
		PriceOn:      s.historical.PriceOn(ctx),
	})

	s.logger.DebugContext(ctx, "Dashboard computed",
		log.FieldYear, year,
		log.FieldMonth, month,
		"priced", d.Position.PricedCount,
		"skipped", d.Position.Skipped)
	return d, nil
}

// todayPrice tries the live price, then today's historical price. Nil means unknown.
func (s *DashboardService) todayPrice(ctx context.Context, today core.Date) *float64 {
	if s.live != nil {
		q, err := s.live.Live(ctx)
		if err == nil {
			return &q.PriceUSD
		}
		s.logger.WarnContext(ctx, "Live price unavailable, trying historical price for today",
			log.FieldError, err)
	}
	q, err := s.historical.Resolve(ctx, today)
	if err != nil {
		s.logger.WarnContext(ctx, "No price for today, accrual valued at zero",
			log.FieldDate, today.String(),
			log.FieldError, err)
		return nil
	}
	return &q.PriceUSD
}

// Price resolves the historical price for date.
func (s *DashboardService) Price(ctx context.Context, date core.Date) (pricing.Quote, error) {
	return s.historical.Resolve(ctx, date)
}

// LivePrice returns the current price, possibly stale.
func (s *DashboardService) LivePrice(ctx context.Context) (pricing.LiveQuote, error) {
	if s.live == nil {
		return pricing.LiveQuote{}, pricing.ErrNoPrice
	}
	return s.live.Live(ctx)
}
