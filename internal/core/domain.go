package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DateLayout is the only accepted calendar-date format.
	DateLayout = "2006-01-02"

	CategoryUncategorized = "Uncategorized"
	CategoryOthers        = "Others"

	MaxDescriptionLength = 200
	MaxCategoryLength    = 50
)

// BuiltinCategories are always listed and can never be deleted.
var BuiltinCategories = []string{CategoryUncategorized, CategoryOthers}

type (
	// Date is a calendar date stored at UTC midnight.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string  `json:"id"`
		Date        Date    `json:"date"`
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Amount      float64 `json:"amount"`
	}

	// TransactionInput is the raw purchase submission before validation.
	TransactionInput struct {
		Date        string
		Description string
		Category    string
		Amount      string
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidDate      = errors.New("invalid date")
	ErrFutureDate       = errors.New("date is in the future")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
)

// FieldError reports a validation failure on a single input field.
type FieldError struct {
	Field string
	Msg   string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewFieldError builds a FieldError wrapping an optional sentinel.
func NewFieldError(field, msg string, err error) error {
	return &FieldError{Field: field, Msg: msg, Err: err}
}

// IsValidation reports whether err carries a FieldError.
func IsValidation(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a strict YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// Month returns the month (1-12)
func (d Date) Month() int {
	return int(d.Time.Month())
}

// InMonth reports whether d falls within the given calendar month.
func (d Date) InMonth(year, month int) bool {
	return d.Year() == year && d.Month() == month
}

// After reports whether d is a later calendar day than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the whole days elapsed from "from" to "to", never negative.
func DaysBetween(from, to Date) int {
	days := int(to.Sub(from.Time) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

// NormalizeCategory trims the category and applies the default.
func NormalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return CategoryUncategorized
	}
	return c
}

// IsBuiltinCategory reports whether name is one of the always-present categories.
func IsBuiltinCategory(name string) bool {
	for _, b := range BuiltinCategories {
		if strings.EqualFold(b, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// Validate checks a submission and converts it into a Transaction without an ID.
func (in TransactionInput) Validate() (Transaction, error) {
	if strings.TrimSpace(in.Date) == "" {
		return Transaction{}, NewFieldError("date", "date is required", ErrInvalidDate)
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return Transaction{}, NewFieldError("date", "date must be a valid YYYY-MM-DD calendar date", err)
	}

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return Transaction{}, NewFieldError("description", "description is required", ErrEmptyDescription)
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return Transaction{}, NewFieldError("description", fmt.Sprintf("description too long (max %d characters)", MaxDescriptionLength), nil)
	}

	category := NormalizeCategory(in.Category)
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return Transaction{}, NewFieldError("category", fmt.Sprintf("category too long (max %d characters)", MaxCategoryLength), nil)
	}

	if strings.TrimSpace(in.Amount) == "" {
		return Transaction{}, NewFieldError("amount", "amount is required", ErrInvalidAmount)
	}
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return Transaction{}, NewFieldError("amount", "amount must be a positive number", err)
	}

	return Transaction{
		Date:        date,
		Description: desc,
		Category:    category,
		Amount:      amount,
	}, nil
}

// Validate checks the invariants of a stored transaction.
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
