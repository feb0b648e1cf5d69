package core

import "github.com/shopspring/decimal"

// CategoryTotal aggregates spend and cashback for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Spent    float64 `json:"spent"`
	Cashback float64 `json:"cashback"`
	Count    int     `json:"count"`
}

// TransactionWithCashback is a transaction annotated with its cashback.
type TransactionWithCashback struct {
	Transaction
	Cashback float64 `json:"cashback"`
}

type MonthTotals struct {
	Spent    float64 `json:"spent"`
	Cashback float64 `json:"cashback"`
}

// MonthSummary is the monthly overview for a specific year+month.
type MonthSummary struct {
	Year         int                       `json:"year"`
	Month        int                       `json:"month"` // 1-12
	CashbackRate float64                   `json:"cashbackRate"`
	Count        int                       `json:"count"`
	Totals       MonthTotals               `json:"totals"`
	ByCategory   []CategoryTotal           `json:"byCategory"`
	Transactions []TransactionWithCashback `json:"transactions"`
}

// FilterMonth returns the transactions dated within the calendar month, in list order.
func FilterMonth(txs []Transaction, year, month int) []Transaction {
	out := make([]Transaction, 0)
	for _, t := range txs {
		if t.Date.InMonth(year, month) {
			out = append(out, t)
		}
	}
	return out
}

// BuildMonthSummary computes totals, per-transaction cashback and the
// category breakdown. Categories keep first-seen order.
func BuildMonthSummary(txs []Transaction, year, month int, rate float64) MonthSummary {
	inMonth := FilterMonth(txs, year, month)

	sum := MonthSummary{
		Year:         year,
		Month:        month,
		CashbackRate: rate,
		Count:        len(inMonth),
		ByCategory:   make([]CategoryTotal, 0),
		Transactions: make([]TransactionWithCashback, 0, len(inMonth)),
	}

	type acc struct {
		spent    decimal.Decimal
		cashback decimal.Decimal
		count    int
	}
	byCat := map[string]*acc{}
	order := make([]string, 0)
	spent := decimal.Zero

	for _, t := range inMonth {
		amount := dec(t.Amount)
		cb := cashbackDec(t.Amount, rate)
		spent = spent.Add(amount)

		cat := NormalizeCategory(t.Category)
		a, ok := byCat[cat]
		if !ok {
			a = &acc{}
			byCat[cat] = a
			order = append(order, cat)
		}
		a.spent = a.spent.Add(amount)
		a.cashback = a.cashback.Add(cb)
		a.count++

		sum.Transactions = append(sum.Transactions, TransactionWithCashback{Transaction: t, Cashback: cb.InexactFloat64()})
	}

	totalSpent := spent.Round(2)
	sum.Totals = MonthTotals{
		Spent:    totalSpent.InexactFloat64(),
		Cashback: totalSpent.Mul(dec(rate)).Round(2).InexactFloat64(),
	}
	for _, name := range order {
		a := byCat[name]
		sum.ByCategory = append(sum.ByCategory, CategoryTotal{
			Category: name,
			Spent:    a.spent.Round(2).InexactFloat64(),
			Cashback: a.cashback.Round(2).InexactFloat64(),
			Count:    a.count,
		})
	}
	return sum
}
