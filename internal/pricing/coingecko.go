// Package pricing resolves USD prices for the tracked asset, historically by
// calendar date and live with a freshness window.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cashback/internal/core"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	apiKeyHeader   = "x-cg-demo-api-key"
	historyLayout  = "02-01-2006"
)

var (
	// ErrUpstream marks a failure of the external price API.
	ErrUpstream = errors.New("price API failure")
	// ErrNoPrice means no price exists and none could be fetched.
	ErrNoPrice = errors.New("no price available")
)

// CoinGeckoClient fetches prices from the CoinGecko public API. Requests are
// made once; failures are returned to the caller without retrying.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewCoinGeckoClient(baseURL, apiKey string, timeout time.Duration) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Historical returns the USD price of coinID on date.
func (c *CoinGeckoClient) Historical(ctx context.Context, coinID string, date core.Date) (float64, error) {
	q := url.Values{}
	q.Set("date", date.Format(historyLayout))
	q.Set("localization", "false")
	endpoint := fmt.Sprintf("%s/coins/%s/history?%s", c.baseURL, url.PathEscape(coinID), q.Encode())

	var data struct {
		MarketData *struct {
			CurrentPrice map[string]float64 `json:"current_price"`
		} `json:"market_data"`
	}
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return 0, err
	}
	if data.MarketData == nil {
		return 0, fmt.Errorf("%w: no market data for %s on %s", ErrUpstream, coinID, date)
	}
	return validPrice(data.MarketData.CurrentPrice["usd"])
}

// Spot returns the current USD price of coinID.
func (c *CoinGeckoClient) Spot(ctx context.Context, coinID string) (float64, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", "usd")
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, q.Encode())

	var data map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return 0, err
	}
	entry, ok := data[coinID]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing from response", ErrUpstream, coinID)
	}
	return validPrice(entry.USD)
}

func (c *CoinGeckoClient) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: coingecko fetch: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: coingecko returned status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}

func validPrice(p float64) (float64, error) {
	if p <= 0 {
		return 0, fmt.Errorf("%w: invalid price %f", ErrUpstream, p)
	}
	return p, nil
}
