// Package sheets declares the outbound spreadsheet mirror of the transaction list.
package sheets

import (
	"context"

	"cashback/internal/core"
)

// Ports for outbound adapters.
type (
	// Mirror keeps a copy of every transaction in an external sheet.
	Mirror interface {
		// AppendTransaction writes tx to the next free row and returns its reference.
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
		// RemoveTransaction clears the row holding id. Missing ids are not an error.
		RemoveTransaction(ctx context.Context, id string) error
	}
)
