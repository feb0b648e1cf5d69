package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"cashback/internal/core"
)

var csvHeader = []string{"id", "date", "description", "category", "amount", "cashback"}

// WriteCSV writes txs with a header row. Cashback uses rate.
func WriteCSV(w io.Writer, txs []core.Transaction, rate float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		record := []string{
			t.ID,
			t.Date.String(),
			t.Description,
			t.Category,
			strconv.FormatFloat(t.Amount, 'f', 2, 64),
			strconv.FormatFloat(core.Cashback(t.Amount, rate), 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes txs as an indented JSON array.
func WriteJSON(w io.Writer, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(txs)
}
