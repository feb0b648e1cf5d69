package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/pricing"
	"cashback/internal/services"
	"cashback/internal/store/jsonfile"
)

var fixedNow = time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)

type fakePrices struct {
	mu       sync.Mutex
	price    float64
	spot     float64
	fail     bool
	spotFail bool
}

func (f *fakePrices) Historical(_ context.Context, _ string, _ core.Date) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, fmt.Errorf("status 500: %w", pricing.ErrUpstream)
	}
	return f.price, nil
}

func (f *fakePrices) Spot(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spotFail {
		return 0, fmt.Errorf("status 500: %w", pricing.ErrUpstream)
	}
	return f.spot, nil
}

func newTestServer(t *testing.T, prices *fakePrices, ratePerMinute int) *Server {
	t.Helper()
	return newTestServerIn(t, t.TempDir(), prices, ratePerMinute)
}

func newTestServerIn(t *testing.T, dataDir string, prices *fakePrices, ratePerMinute int) *Server {
	t.Helper()
	st, err := jsonfile.New(dataDir, log.Discard())
	require.NoError(t, err)

	clock := func() time.Time { return fixedNow }
	resolver := pricing.NewResolver(pricing.ResolverConfig{Symbol: "SOL", CoinID: "solana"}, prices, st, nil).WithClock(clock)
	live := pricing.NewLiveResolver("SOL", "solana", prices, nil, time.Minute, nil).WithClock(clock)

	srv := NewServer(Config{Addr: ":0", RateLimitPerMinute: ratePerMinute}, Deps{
		Transactions: services.NewTransactionService(st, st, nil, nil),
		Dashboard:    services.NewDashboardService(st, st, resolver, live, nil).WithClock(clock),
		Settings:     services.NewSettingsService(st, nil),
		Categories:   services.NewCategoryService(st, st, nil),
		Store:        st,
		Prices:       resolver,
		AssetSymbol:  "SOL",
	}, log.Discard())
	return srv.WithClock(clock)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakePrices{price: 100}, 0)

	for _, path := range []string{"/health", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
	}

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# TYPE http_requests_total counter")
	assert.Contains(t, rr.Body.String(), "http_requests_total 2")
	assert.Contains(t, rr.Body.String(), "price_lookups_total{source=\"api\"} 0")
}

func TestIndexAndStatic(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)

	rr := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Cashback tracker")
	assert.Contains(t, rr.Body.String(), `value="2024-03-20"`)

	rr = do(t, srv, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")

	rr = do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateTransaction(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{"valid json", `{"date":"2024-03-10","description":"Coffee","amount":4.5}`, http.StatusCreated, ""},
		{"valid form", `date=2024-03-11&description=Lunch&amount=12%2C50&category=Food`, http.StatusCreated, ""},
		{"missing amount", `{"date":"2024-03-10","description":"Coffee"}`, http.StatusBadRequest, "amount"},
		{"zero amount", `{"date":"2024-03-10","description":"Coffee","amount":0}`, http.StatusBadRequest, "amount"},
		{"bad date", `{"date":"2024-02-30","description":"Coffee","amount":3}`, http.StatusBadRequest, "date"},
		{"blank description", `{"date":"2024-03-10","description":"  ","amount":3}`, http.StatusBadRequest, "description"},
		{"malformed json", `{"date":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(tt.body))
			if strings.HasPrefix(tt.body, "{") {
				req.Header.Set("Content-Type", "application/json")
			} else {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, req)

			require.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			body := decode(t, rr)
			if tt.wantCode == http.StatusCreated {
				assert.NotEmpty(t, body["id"])
				assert.NotEmpty(t, body["category"])
				return
			}
			assert.NotEmpty(t, body["error"])
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, body["field"])
			}
		})
	}
}

func TestMonthlyRoundTrip(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)

	rr := do(t, srv, http.MethodPost, "/transactions", `{"date":"2024-01-03","amount":100,"description":"Gym"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode(t, rr)
	assert.Equal(t, core.CategoryUncategorized, created["category"])

	rr = do(t, srv, http.MethodGet, "/monthly?year=2024&month=1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var summary core.MonthSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 100.0, summary.Totals.Spent)
	assert.Equal(t, 3.0, summary.Totals.Cashback)
	require.Len(t, summary.Transactions, 1)
	assert.Equal(t, created["id"], summary.Transactions[0].ID)
	assert.Equal(t, 3.0, summary.Transactions[0].Cashback)

	// Defaults to the current month, which holds nothing.
	rr = do(t, srv, http.MethodGet, "/monthly", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 2024, body["year"])
	assert.EqualValues(t, 3, body["month"])
	assert.EqualValues(t, 0, body["count"])

	for _, q := range []string{"?year=2024&month=13", "?year=abc&month=1", "?month=0"} {
		rr = do(t, srv, http.MethodGet, "/monthly"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestListAndDeleteTransactions(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)

	rr := do(t, srv, http.MethodPost, "/transactions", `{"date":"2024-02-10","amount":20,"description":"Books"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode(t, rr)["id"].(string)
	rr = do(t, srv, http.MethodPost, "/transactions", `{"date":"2024-03-01","amount":5,"description":"Tea"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var all []core.Transaction
	rr = do(t, srv, http.MethodGet, "/transactions", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	var feb []core.Transaction
	rr = do(t, srv, http.MethodGet, "/transactions?year=2024&month=2", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &feb))
	require.Len(t, feb, 1)
	assert.Equal(t, id, feb[0].ID)

	rr = do(t, srv, http.MethodDelete, "/transactions/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, id, body["deletedId"])

	rr = do(t, srv, http.MethodDelete, "/transactions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/transactions", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, 1)
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, &fakePrices{price: 100, spot: 200}, 0)

	rr := do(t, srv, http.MethodPost, "/transactions", `{"date":"2024-03-10","amount":100,"description":"Gym"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodGet, "/dashboard?year=2024&month=3", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var d core.Dashboard
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	assert.Equal(t, 100.0, d.Spend.TotalSpent)
	assert.Equal(t, 3.0, d.Spend.TotalCashbackUSD)
	assert.InDelta(t, 0.03, d.Position.TotalUnits, 1e-9)
	require.NotNil(t, d.Position.AvgPriceUSD)
	assert.InDelta(t, 100.0, *d.Position.AvgPriceUSD, 1e-9)
	require.NotNil(t, d.ToDate.TodayPriceUSD)
	assert.Equal(t, 200.0, *d.ToDate.TodayPriceUSD)

	body := decode(t, rr)
	for _, block := range []string{"spend", "sol", "staking", "toDate"} {
		assert.Contains(t, body, block)
	}
}

func TestPriceEndpoints(t *testing.T) {
	prices := &fakePrices{price: 142.5, spot: 150}
	srv := newTestServer(t, prices, 0)

	rr := do(t, srv, http.MethodGet, "/price/asset?date=2024-03-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "SOL", body["symbol"])
	assert.Equal(t, "2024-03-01", body["date"])
	assert.Equal(t, 142.5, body["priceUSD"])
	assert.Equal(t, pricing.SourceAPI, body["source"])

	rr = do(t, srv, http.MethodGet, "/price/asset?date=2024-03-01", "")
	assert.Equal(t, pricing.SourceCache, decode(t, rr)["source"])

	for _, q := range []string{"", "?date=yesterday", "?date=2024-13-01", "?date=2024-03-21"} {
		rr = do(t, srv, http.MethodGet, "/price/asset"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		assert.Equal(t, "date", decode(t, rr)["field"], q)
	}

	prices.mu.Lock()
	prices.fail = true
	prices.mu.Unlock()
	rr = do(t, srv, http.MethodGet, "/price/asset?date=2024-02-01", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = do(t, srv, http.MethodGet, "/price/asset/live", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, 150.0, body["priceUSD"])
	assert.Equal(t, false, body["stale"])
}

func TestLivePriceNeverFetched(t *testing.T) {
	srv := newTestServer(t, &fakePrices{spotFail: true}, 0)

	rr := do(t, srv, http.MethodGet, "/price/asset/live", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotEmpty(t, decode(t, rr)["error"])
}

func TestSettingsEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)

	rr := do(t, srv, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, core.DefaultCashbackRate, body["cashbackRate"])
	assert.Equal(t, core.DefaultStakingAPR, body["stakingAPR"])

	rr = do(t, srv, http.MethodPut, "/settings", `{"cashbackRate":0.05}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body = decode(t, rr)
	assert.Equal(t, 0.05, body["cashbackRate"])
	assert.Equal(t, core.DefaultStakingAPR, body["stakingAPR"])

	rr = do(t, srv, http.MethodPut, "/settings", `{"cashbackRate":2}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "cashbackRate", decode(t, rr)["field"])

	rr = do(t, srv, http.MethodPut, "/settings", `{"stakingAPR":"high"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "stakingAPR", decode(t, rr)["field"])

	rr = do(t, srv, http.MethodGet, "/settings", "")
	assert.Equal(t, 0.05, decode(t, rr)["cashbackRate"])
}

func TestCorruptSettingsServeDefaults(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServerIn(t, dir, &fakePrices{}, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, jsonfile.SettingsFile), []byte("{\"cashbackRate\": 0.2,"), 0o644))

	rr := do(t, srv, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, core.DefaultCashbackRate, body["cashbackRate"])
	assert.Equal(t, core.DefaultStakingAPR, body["stakingAPR"])

	matches, err := filepath.Glob(filepath.Join(dir, jsonfile.SettingsFile+".corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCategoryEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)

	rr := do(t, srv, http.MethodPost, "/categories", `{"name":"Food"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"duplicate ignores case", http.MethodPost, "/categories", `{"name":"food"}`, http.StatusConflict},
		{"built-in conflicts", http.MethodPost, "/categories", `{"name":"Others"}`, http.StatusConflict},
		{"empty name", http.MethodPost, "/categories", `{"name":"  "}`, http.StatusBadRequest},
		{"too long", http.MethodPost, "/categories", `{"name":"` + strings.Repeat("x", 51) + `"}`, http.StatusBadRequest},
		{"delete built-in", http.MethodDelete, "/categories/Uncategorized", "", http.StatusBadRequest},
		{"delete unknown", http.MethodDelete, "/categories/Travel", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
		})
	}

	rr = do(t, srv, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Categories []string `json:"categories"`
		Builtin    []string `json:"builtin"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, []string{"Uncategorized", "Others", "Food"}, list.Categories)

	rr = do(t, srv, http.MethodPost, "/transactions", `{"date":"2024-03-10","amount":9,"description":"Pizza","category":"Food"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodDelete, "/categories/Food", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestExportEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)
	rr := do(t, srv, http.MethodPost, "/transactions", `{"date":"2024-03-10","amount":100,"description":"Gym"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodGet, "/export/transactions.csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,date,description,category,amount,cashback", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",Gym,Uncategorized,100.00,3.00"), lines[1])

	rr = do(t, srv, http.MethodGet, "/export/transactions.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="transactions.json"`)
	var txs []core.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &txs))
	assert.Len(t, txs, 1)
}

func TestRateLimitOnlyMutating(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 2)

	for i := 0; i < 5; i++ {
		rr := do(t, srv, http.MethodGet, "/transactions", "")
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	body := `{"date":"2024-03-10","amount":1,"description":"x"}`
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/transactions", body).Code)
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/transactions", body).Code)

	rr := do(t, srv, http.MethodPost, "/transactions", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.NotEmpty(t, decode(t, rr)["error"])
}

func TestMethodMismatch(t *testing.T) {
	srv := newTestServer(t, &fakePrices{}, 0)
	rr := do(t, srv, http.MethodPatch, "/settings", `{"cashbackRate":0.1}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
