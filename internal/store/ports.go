// Package store declares the persistence ports shared by every backend.
//
// Each collection is read and written as a whole: a reader never observes a
// partially applied mutation.
package store

import (
	"context"

	"cashback/internal/core"
)

type (
	// TransactionStore keeps the ordered purchase list. Insertion order is list order.
	TransactionStore interface {
		Append(ctx context.Context, tx core.Transaction) error
		// Delete removes exactly one transaction and returns it, or core.ErrNotFound.
		Delete(ctx context.Context, id string) (core.Transaction, error)
		ListAll(ctx context.Context) ([]core.Transaction, error)
		ListForMonth(ctx context.Context, year, month int) ([]core.Transaction, error)
	}

	// SettingsStore holds the singleton settings document. Missing or invalid
	// fields come back as defaults.
	SettingsStore interface {
		GetSettings(ctx context.Context) (core.Settings, error)
		SaveSettings(ctx context.Context, s core.Settings) error
	}

	// PriceCacheStore is an append-only symbol -> date -> USD price map.
	PriceCacheStore interface {
		GetPrice(ctx context.Context, symbol string, date core.Date) (price float64, ok bool, err error)
		// PutPrice records a price unless one already exists for that symbol and date.
		PutPrice(ctx context.Context, symbol string, date core.Date, price float64) error
	}

	// CategoryStore keeps user-defined category names. Built-ins are not stored.
	CategoryStore interface {
		ListCategories(ctx context.Context) ([]string, error)
		// AddCategory returns core.ErrConflict for a case-insensitive duplicate.
		AddCategory(ctx context.Context, name string) error
		// DeleteCategory returns core.ErrNotFound when name is not stored.
		DeleteCategory(ctx context.Context, name string) error
	}

	// Pinger reports whether the backend is usable.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Store is the full set of ports a backend provides.
	Store interface {
		TransactionStore
		SettingsStore
		PriceCacheStore
		CategoryStore
		Pinger
	}
)
