// Package jsonfile stores every collection as one JSON document under a data
// directory. Each mutation rewrites the whole document.
//
// A mutex per document serializes read-modify-write cycles within one
// process. Separate processes sharing the directory can still lose updates.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/store"
)

const (
	TransactionsFile = "transactions.json"
	SettingsFile     = "settings.json"
	PriceCacheFile   = "price_cache.json"
	CategoriesFile   = "categories.json"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	dir      string
	logger   *log.Logger
	defaults core.Settings
	now      func() time.Time

	txMu       sync.Mutex
	settingsMu sync.Mutex
	priceMu    sync.Mutex
	categoryMu sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithDefaults sets the settings returned when nothing valid is stored.
func WithDefaults(s core.Settings) Option {
	return func(st *Store) { st.defaults = s.Normalize() }
}

// WithClock overrides the clock used to name quarantined files.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// New opens dir, creating it and any missing document with its default content.
func New(dir string, logger *log.Logger, opts ...Option) (*Store, error) {
	if dir == "" {
		dir = "data"
	}
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{
		dir:      dir,
		logger:   logger.WithComponent(log.ComponentStorage),
		defaults: core.DefaultSettings(),
		now:      systemNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap() error {
	seeds := []struct {
		name string
		v    any
	}{
		{TransactionsFile, []core.Transaction{}},
		{SettingsFile, s.defaults},
		{PriceCacheFile, priceBook{}},
		{CategoriesFile, []string{}},
	}
	for _, seed := range seeds {
		_, err := os.Stat(s.path(seed.name))
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", seed.name, err)
		}
		if err := s.save(seed.name, seed.v); err != nil {
			return err
		}
		s.logger.Info("Created data file", log.FieldFile, seed.name)
	}
	return nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Ping checks that the data directory is still present.
func (s *Store) Ping(_ context.Context) error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op; files are never held open.
func (s *Store) Close() error { return nil }

/* ======================== Transactions ======================== */

func (s *Store) readTransactions() ([]core.Transaction, error) {
	// Records are decoded one by one so a single bad entry cannot hide the rest.
	var raw []json.RawMessage
	ok, err := s.load(TransactionsFile, &raw)
	if err != nil || !ok {
		return []core.Transaction{}, err
	}
	out := make([]core.Transaction, 0, len(raw))
	for i, rec := range raw {
		var t core.Transaction
		if err := json.Unmarshal(rec, &t); err != nil {
			s.logger.Warn("Skipping undecodable stored transaction",
				"index", i,
				log.FieldError, err)
			continue
		}
		if err := t.Validate(); err != nil {
			s.logger.Warn("Skipping invalid stored transaction",
				log.FieldTransactionID, t.ID,
				log.FieldError, err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) Append(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	txs, err := s.readTransactions()
	if err != nil {
		return err
	}
	for _, t := range txs {
		if t.ID == tx.ID {
			return fmt.Errorf("transaction %s: %w", tx.ID, core.ErrConflict)
		}
	}
	return s.save(TransactionsFile, append(txs, tx))
}

func (s *Store) Delete(_ context.Context, id string) (core.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	txs, err := s.readTransactions()
	if err != nil {
		return core.Transaction{}, err
	}
	for i, t := range txs {
		if t.ID != id {
			continue
		}
		rest := append(txs[:i:i], txs[i+1:]...)
		if err := s.save(TransactionsFile, rest); err != nil {
			return core.Transaction{}, err
		}
		return t, nil
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) ListAll(_ context.Context) ([]core.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.readTransactions()
}

func (s *Store) ListForMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	txs, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterMonth(txs, year, month), nil
}

/* ======================== Settings ======================== */

func (s *Store) GetSettings(_ context.Context) (core.Settings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	var patch core.SettingsPatch
	ok, err := s.load(SettingsFile, &patch)
	if err != nil {
		return s.defaults, err
	}
	if !ok {
		return s.defaults, nil
	}
	return patch.Resolve(s.defaults), nil
}

func (s *Store) SaveSettings(_ context.Context, settings core.Settings) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.save(SettingsFile, settings)
}

/* ======================== Price cache ======================== */

// priceBook is symbol -> YYYY-MM-DD -> USD price.
type priceBook map[string]map[string]float64

func (s *Store) readPrices() (priceBook, error) {
	book := priceBook{}
	ok, err := s.load(PriceCacheFile, &book)
	if err != nil || !ok {
		return priceBook{}, err
	}
	return book, nil
}

func (s *Store) GetPrice(_ context.Context, symbol string, date core.Date) (float64, bool, error) {
	s.priceMu.Lock()
	defer s.priceMu.Unlock()
	book, err := s.readPrices()
	if err != nil {
		return 0, false, err
	}
	p, ok := book[symbol][date.String()]
	if !ok || p <= 0 {
		return 0, false, nil
	}
	return p, true, nil
}

func (s *Store) PutPrice(_ context.Context, symbol string, date core.Date, price float64) error {
	if price <= 0 {
		return fmt.Errorf("price for %s on %s: %w", symbol, date, core.ErrInvalidAmount)
	}
	s.priceMu.Lock()
	defer s.priceMu.Unlock()
	book, err := s.readPrices()
	if err != nil {
		return err
	}
	byDate := book[symbol]
	if byDate == nil {
		byDate = map[string]float64{}
		book[symbol] = byDate
	}
	if _, exists := byDate[date.String()]; exists {
		return nil
	}
	byDate[date.String()] = price
	return s.save(PriceCacheFile, book)
}

/* ======================== Categories ======================== */

func (s *Store) readCategories() ([]string, error) {
	var raw []string
	ok, err := s.load(CategoriesFile, &raw)
	if err != nil || !ok {
		return []string{}, err
	}
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" || containsFold(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()
	return s.readCategories()
}

func (s *Store) AddCategory(_ context.Context, name string) error {
	name = strings.TrimSpace(name)
	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()
	cats, err := s.readCategories()
	if err != nil {
		return err
	}
	if containsFold(cats, name) {
		return fmt.Errorf("category %q: %w", name, core.ErrConflict)
	}
	return s.save(CategoriesFile, append(cats, name))
}

func (s *Store) DeleteCategory(_ context.Context, name string) error {
	name = strings.TrimSpace(name)
	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()
	cats, err := s.readCategories()
	if err != nil {
		return err
	}
	for i, c := range cats {
		if strings.EqualFold(c, name) {
			return s.save(CategoriesFile, append(cats[:i:i], cats[i+1:]...))
		}
	}
	return fmt.Errorf("category %q: %w", name, core.ErrNotFound)
}

func containsFold(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
