package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	DataDir      string
	SQLiteDBPath string

	// Pricing
	AssetSymbol          string
	CoinGeckoCoinID      string
	CoinGeckoBaseURL     string
	CoinGeckoAPIKey      string
	PriceHTTPTimeout     time.Duration
	LivePriceTTL         time.Duration
	PriceMemoryCacheSize int

	// Settings used when nothing valid is persisted
	DefaultCashbackRate float64
	DefaultStakingAPR   float64

	// AMQP (empty URL disables events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror (empty spreadsheet ID disables it)
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Worker
	PriceWarmSchedule string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "json"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cashback.db"),

		AssetSymbol:          getEnv("ASSET_SYMBOL", "SOL"),
		CoinGeckoCoinID:      getEnv("COINGECKO_COIN_ID", "solana"),
		CoinGeckoBaseURL:     getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:      getEnv("COINGECKO_API_KEY", ""),
		PriceHTTPTimeout:     getEnvDuration("PRICE_HTTP_TIMEOUT", 10*time.Second),
		LivePriceTTL:         getEnvDuration("LIVE_PRICE_TTL", 15*time.Minute),
		PriceMemoryCacheSize: getEnvInt("PRICE_MEMORY_CACHE_SIZE", 1024),

		DefaultCashbackRate: getEnvFloat("DEFAULT_CASHBACK_RATE", 0.03),
		DefaultStakingAPR:   getEnvFloat("DEFAULT_STAKING_APR", 0.07),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cashback"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cashback_transactions"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		PriceWarmSchedule: getEnv("PRICE_WARM_SCHEDULE", "15 0 * * *"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// AMQPEnabled reports whether transaction events should be published.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// SheetsEnabled reports whether the Google Sheets mirror is configured.
func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}

	validBackends := []string{"json", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == "json" && c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty when using json backend")
	}
	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.AssetSymbol == "" {
		errors = append(errors, "asset symbol cannot be empty")
	}
	if c.CoinGeckoCoinID == "" {
		errors = append(errors, "CoinGecko coin id cannot be empty")
	}
	if u, err := url.Parse(c.CoinGeckoBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid CoinGecko base URL '%s': must be an http(s) URL", c.CoinGeckoBaseURL))
	}
	if c.PriceHTTPTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid price HTTP timeout %v: must be at least 100ms", c.PriceHTTPTimeout))
	}
	if c.LivePriceTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid live price TTL %v: must be at least 1 second", c.LivePriceTTL))
	} else if c.LivePriceTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid live price TTL %v: must be at most 24 hours", c.LivePriceTTL))
	}
	if c.PriceMemoryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid price memory cache size %d: must be at least 1", c.PriceMemoryCacheSize))
	}

	if c.DefaultCashbackRate < 0 || c.DefaultCashbackRate > 1 {
		errors = append(errors, fmt.Sprintf("invalid default cashback rate %g: must be between 0 and 1", c.DefaultCashbackRate))
	}
	if c.DefaultStakingAPR < 0 || c.DefaultStakingAPR > 5 {
		errors = append(errors, fmt.Sprintf("invalid default staking APR %g: must be between 0 and 5", c.DefaultStakingAPR))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		hasFile := c.GoogleCredentialsFile != ""
		if !hasFile && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for the sheets mirror")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if _, err := cron.ParseStandard(c.PriceWarmSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid price warm schedule '%s': %v", c.PriceWarmSchedule, err))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
