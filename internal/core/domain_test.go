package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2026-01-03", true},
		{"2024-02-29", true},
		{" 2025-12-31 ", true},
		{"2025-02-29", false}, // not a leap year
		{"2025-13-01", false},
		{"2025-1-3", false},
		{"03/01/2026", false},
		{"2026-01-03T00:00:00Z", false},
		{"", false},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q expected ok, got %v", tc.in, err)
			}
			if d.String() != strings.TrimSpace(tc.in) {
				t.Fatalf("%q round trip gave %q", tc.in, d.String())
			}
		} else if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var tx Transaction
	if err := json.Unmarshal([]byte(`{"id":"a","date":"2026-01-03","description":"x","category":"Food","amount":12.5}`), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tx.Date.InMonth(2026, 1) || tx.Date.Time.Day() != 3 {
		t.Fatalf("unexpected date %v", tx.Date)
	}
	if err := json.Unmarshal([]byte(`{"date":"2026-02-31"}`), &tx); err == nil {
		t.Fatalf("expected error for impossible date")
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(NewDate(2026, 1, 1), NewDate(2026, 1, 31)); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
	if got := DaysBetween(NewDate(2024, 2, 28), NewDate(2024, 3, 1)); got != 2 {
		t.Fatalf("expected 2 across leap day, got %d", got)
	}
	if got := DaysBetween(NewDate(2026, 2, 1), NewDate(2026, 1, 1)); got != 0 {
		t.Fatalf("expected 0 for reversed range, got %d", got)
	}
}

func TestDateOfTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	d := DateOf(time.Date(2026, 3, 1, 1, 30, 0, 0, loc))
	if d.String() != "2026-02-28" {
		t.Fatalf("expected 2026-02-28, got %s", d)
	}
}

func TestTransactionInputValidate(t *testing.T) {
	good := TransactionInput{Date: "2026-01-03", Description: "  Groceries ", Category: "", Amount: "100"}
	tx, err := good.Validate()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if tx.Description != "Groceries" || tx.Category != CategoryUncategorized || tx.Amount != 100 {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	bads := []struct {
		in    TransactionInput
		field string
	}{
		{TransactionInput{Description: "a", Amount: "1"}, "date"},
		{TransactionInput{Date: "2026-02-30", Description: "a", Amount: "1"}, "date"},
		{TransactionInput{Date: "2026-01-03", Description: "   ", Amount: "1"}, "description"},
		{TransactionInput{Date: "2026-01-03", Description: strings.Repeat("x", MaxDescriptionLength+1), Amount: "1"}, "description"},
		{TransactionInput{Date: "2026-01-03", Description: "a", Category: strings.Repeat("c", MaxCategoryLength+1), Amount: "1"}, "category"},
		{TransactionInput{Date: "2026-01-03", Description: "a"}, "amount"},
		{TransactionInput{Date: "2026-01-03", Description: "a", Amount: "-5"}, "amount"},
		{TransactionInput{Date: "2026-01-03", Description: "a", Amount: "0"}, "amount"},
	}
	for i, tc := range bads {
		_, err := tc.in.Validate()
		var fe *FieldError
		if !errors.As(err, &fe) {
			t.Fatalf("case %d expected FieldError, got %v", i, err)
		}
		if fe.Field != tc.field {
			t.Fatalf("case %d expected field %q, got %q", i, tc.field, fe.Field)
		}
		if !IsValidation(err) {
			t.Fatalf("case %d expected IsValidation", i)
		}
	}
}

func TestTransactionInputLengthsCountCharacters(t *testing.T) {
	in := TransactionInput{
		Date:        "2026-01-03",
		Description: strings.Repeat("é", MaxDescriptionLength),
		Category:    strings.Repeat("ß", MaxCategoryLength),
		Amount:      "1",
	}
	tx, err := in.Validate()
	if err != nil {
		t.Fatalf("multi-byte text at the limit rejected: %v", err)
	}
	if tx.Category != in.Category {
		t.Fatalf("category changed: %q", tx.Category)
	}

	in.Description += "é"
	var fe *FieldError
	if _, err := in.Validate(); !errors.As(err, &fe) || fe.Field != "description" {
		t.Fatalf("expected description error past the limit, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{ID: "1", Date: NewDate(2026, 1, 1), Description: "ok", Amount: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Transaction{
		{Description: "a", Amount: 1},
		{Date: NewDate(2026, 1, 1), Description: "", Amount: 1},
		{Date: NewDate(2026, 1, 1), Description: "a", Amount: 0},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestIsBuiltinCategory(t *testing.T) {
	for _, name := range []string{"Uncategorized", "others", " Others "} {
		if !IsBuiltinCategory(name) {
			t.Errorf("%q should be builtin", name)
		}
	}
	if IsBuiltinCategory("Food") {
		t.Errorf("Food should not be builtin")
	}
}

func TestSettingsPatch(t *testing.T) {
	rate, apr, bad := 0.05, 0.1, 2.0
	got := SettingsPatch{CashbackRate: &rate, StakingAPR: &apr}.Resolve(DefaultSettings())
	if got.CashbackRate != 0.05 || got.StakingAPR != 0.1 {
		t.Fatalf("unexpected %+v", got)
	}
	got = SettingsPatch{CashbackRate: &bad}.Resolve(DefaultSettings())
	if got != DefaultSettings() {
		t.Fatalf("out of range rate should fall back, got %+v", got)
	}
	if err := (SettingsPatch{CashbackRate: &bad}).Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := (SettingsPatch{}).Validate(); err == nil {
		t.Fatalf("expected error for empty patch")
	}
	if (Settings{CashbackRate: -1, StakingAPR: 0.2}).Normalize() != (Settings{CashbackRate: DefaultCashbackRate, StakingAPR: 0.2}) {
		t.Fatalf("normalize should only replace invalid fields")
	}
}
