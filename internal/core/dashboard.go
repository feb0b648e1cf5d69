package core

import "github.com/shopspring/decimal"

// PriceFunc returns the asset's USD price on a date, or false when unknown.
// A false result means "exclude from price-dependent totals", never zero.
type PriceFunc func(Date) (float64, bool)

// DashboardInput gathers everything the monthly dashboard depends on.
type DashboardInput struct {
	Transactions []Transaction
	Year         int
	Month        int
	Settings     Settings
	Symbol       string
	Today        Date
	// TodayPrice is nil when no current price could be obtained.
	TodayPrice *float64
	PriceOn    PriceFunc
}

type DashboardSpend struct {
	TotalSpent       float64 `json:"totalSpent"`
	TotalCashbackUSD float64 `json:"totalCashbackUSD"`
	Count            int     `json:"count"`
}

// AssetPosition is the simulated purchase of the month's cashback.
// TotalCashbackUSD only covers priced transactions.
type AssetPosition struct {
	Symbol           string   `json:"symbol"`
	TotalUnits       float64  `json:"totalSOL"`
	TotalCashbackUSD float64  `json:"totalCashbackUSD"`
	AvgPriceUSD      *float64 `json:"avgPriceUSD"`
	PricedCount      int      `json:"pricedCount"`
	Skipped          int      `json:"skipped"`
}

type StakingProjection struct {
	APR                 float64 `json:"apr"`
	StakedUnits         float64 `json:"stakedSOL"`
	EstMonthlyRewardSOL float64 `json:"estMonthlyRewardSOL"`
	EstYearlyRewardSOL  float64 `json:"estYearlyRewardSOL"`
}

// StakingAccrual is the reward earned by every past purchase up to AsOf.
type StakingAccrual struct {
	AsOf          Date     `json:"asOf"`
	EarnedSOL     float64  `json:"earnedSOL"`
	EarnedUSD     float64  `json:"earnedUSD"`
	TodayPriceUSD *float64 `json:"todayPriceUSD"`
	Counted       int      `json:"counted"`
	Skipped       int      `json:"skipped"`
}

type Dashboard struct {
	Year     int               `json:"year"`
	Month    int               `json:"month"`
	Settings Settings          `json:"settings"`
	Spend    DashboardSpend    `json:"spend"`
	Position AssetPosition     `json:"sol"`
	Staking  StakingProjection `json:"staking"`
	ToDate   StakingAccrual    `json:"toDate"`
}

var (
	daysPerYear   = decimal.NewFromInt(365)
	monthsPerYear = decimal.NewFromInt(12)
)

// BuildDashboard derives the monthly dashboard. The steps run in a fixed
// order so results are reproducible: filter, spend totals, simulated
// purchase, average price, projection, accrual to date.
func BuildDashboard(in DashboardInput) Dashboard {
	rate := in.Settings.CashbackRate
	apr := dec(in.Settings.StakingAPR)
	priceOn := in.PriceOn
	if priceOn == nil {
		priceOn = func(Date) (float64, bool) { return 0, false }
	}

	out := Dashboard{Year: in.Year, Month: in.Month, Settings: in.Settings}

	inMonth := FilterMonth(in.Transactions, in.Year, in.Month)
	spent := decimal.Zero
	for _, t := range inMonth {
		spent = spent.Add(dec(t.Amount))
	}
	totalSpent := spent.Round(2)
	out.Spend = DashboardSpend{
		TotalSpent:       totalSpent.InexactFloat64(),
		TotalCashbackUSD: totalSpent.Mul(dec(rate)).Round(2).InexactFloat64(),
		Count:            len(inMonth),
	}

	units := decimal.Zero
	pricedCashback := decimal.Zero
	pos := AssetPosition{Symbol: in.Symbol}
	for _, t := range inMonth {
		cb := cashbackDec(t.Amount, rate)
		price, ok := priceOn(t.Date)
		if !ok || price <= 0 {
			pos.Skipped++
			continue
		}
		units = units.Add(cb.Div(dec(price)))
		pricedCashback = pricedCashback.Add(cb)
		pos.PricedCount++
	}
	pos.TotalUnits = units.Round(6).InexactFloat64()
	pos.TotalCashbackUSD = pricedCashback.Round(2).InexactFloat64()
	if units.IsPositive() {
		avg := pricedCashback.Div(units).Round(2).InexactFloat64()
		pos.AvgPriceUSD = &avg
	}
	out.Position = pos

	staked := units.Round(6)
	out.Staking = StakingProjection{
		APR:                 in.Settings.StakingAPR,
		StakedUnits:         staked.InexactFloat64(),
		EstMonthlyRewardSOL: staked.Mul(apr).Div(monthsPerYear).Round(6).InexactFloat64(),
		EstYearlyRewardSOL:  staked.Mul(apr).Round(6).InexactFloat64(),
	}

	out.ToDate = accrueToDate(in.Transactions, in.Today, rate, apr, priceOn, in.TodayPrice)
	return out
}

func accrueToDate(txs []Transaction, today Date, rate float64, apr decimal.Decimal, priceOn PriceFunc, todayPrice *float64) StakingAccrual {
	acc := StakingAccrual{AsOf: today, TodayPriceUSD: todayPrice}
	earned := decimal.Zero
	for _, t := range txs {
		if t.Date.After(today) {
			continue
		}
		cb := cashbackDec(t.Amount, rate)
		price, ok := priceOn(t.Date)
		if !ok || price <= 0 {
			acc.Skipped++
			continue
		}
		bought := cb.Div(dec(price))
		days := decimal.NewFromInt(int64(DaysBetween(t.Date, today)))
		earned = earned.Add(bought.Mul(apr).Mul(days).Div(daysPerYear))
		acc.Counted++
	}
	acc.EarnedSOL = earned.Round(6).InexactFloat64()
	if todayPrice != nil && *todayPrice > 0 {
		acc.EarnedUSD = earned.Mul(dec(*todayPrice)).Round(2).InexactFloat64()
	}
	return acc
}
