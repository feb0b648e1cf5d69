// Package storage is the SQLite backend. It honours the same contracts as the
// JSON document store: insertion order is preserved, every mutation is one
// statement, the price cache never overwrites, and unreadable settings fall
// back to defaults.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/store"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	settingCashbackRate = "cashback_rate"
	settingStakingAPR   = "staking_apr"
)

var _ store.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db       *sql.DB
	logger   *log.Logger
	defaults core.Settings
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and migrates it.
func NewSQLiteRepository(dbPath string, defaults core.Settings, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("SQLite schema ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:       db,
		logger:   logger,
		defaults: defaults.Normalize(),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

/* ======================== Transactions ======================== */

func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, date, description, category, amount_cents) VALUES (?, ?, ?, ?, ?)`,
		tx.ID, tx.Date.String(), tx.Description, core.NormalizeCategory(tx.Category), toCents(tx.Amount))
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", tx.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	r.logger.DebugContext(ctx, "Transaction saved to SQLite",
		log.FieldTransactionID, tx.ID,
		log.FieldDate, tx.Date.String(),
		log.FieldAmount, tx.Amount)
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`DELETE FROM transactions WHERE id = ? RETURNING id, date, description, category, amount_cents`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT id, date, description, category, amount_cents FROM transactions ORDER BY seq`)
}

func (r *SQLiteRepository) ListForMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	return r.queryTransactions(ctx,
		`SELECT id, date, description, category, amount_cents FROM transactions WHERE date LIKE ? || '%' ORDER BY seq`,
		prefix)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping unreadable transaction row", log.FieldError, err)
			continue
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx    core.Transaction
		date  string
		cents int64
	)
	if err := s.Scan(&tx.ID, &date, &tx.Description, &tx.Category, &cents); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Date = d
	tx.Amount = fromCents(cents)
	return tx, nil
}

/* ======================== Settings ======================== */

func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.Settings, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return r.defaults, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var patch core.SettingsPatch
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return r.defaults, fmt.Errorf("scan setting: %w", err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			r.logger.WarnContext(ctx, "Ignoring unparsable setting", "key", key, log.FieldError, err)
			continue
		}
		switch key {
		case settingCashbackRate:
			patch.CashbackRate = &v
		case settingStakingAPR:
			patch.StakingAPR = &v
		}
	}
	if err := rows.Err(); err != nil {
		return r.defaults, fmt.Errorf("iterate settings: %w", err)
	}
	return patch.Resolve(r.defaults), nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?), (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingCashbackRate, strconv.FormatFloat(s.CashbackRate, 'f', -1, 64),
		settingStakingAPR, strconv.FormatFloat(s.StakingAPR, 'f', -1, 64))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

/* ======================== Price cache ======================== */

func (r *SQLiteRepository) GetPrice(ctx context.Context, symbol string, date core.Date) (float64, bool, error) {
	var price float64
	err := r.db.QueryRowContext(ctx,
		`SELECT price_usd FROM price_cache WHERE symbol = ? AND date = ?`, symbol, date.String()).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get price: %w", err)
	}
	if price <= 0 {
		return 0, false, nil
	}
	return price, true, nil
}

func (r *SQLiteRepository) PutPrice(ctx context.Context, symbol string, date core.Date, price float64) error {
	if price <= 0 {
		return fmt.Errorf("price for %s on %s: %w", symbol, date, core.ErrInvalidAmount)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO price_cache (symbol, date, price_usd) VALUES (?, ?, ?)`,
		symbol, date.String(), price)
	if err != nil {
		return fmt.Errorf("put price: %w", err)
	}
	return nil
}

/* ======================== Categories ======================== */

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM categories ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AddCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, name)
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", name, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %q: %w", name, core.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func toCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}
