package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"cashback/internal/cache"
	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/middleware/ratelimit"
	"cashback/internal/middleware/security"
	"cashback/internal/middleware/trace"
	"cashback/internal/pricing"
	"cashback/internal/store"
	appweb "cashback/web"
)

type (
	TransactionService interface {
		Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
		Delete(ctx context.Context, id string) (core.Transaction, error)
		List(ctx context.Context) ([]core.Transaction, error)
		ListForMonth(ctx context.Context, year, month int) ([]core.Transaction, error)
		Monthly(ctx context.Context, year, month int) (core.MonthSummary, error)
	}

	DashboardService interface {
		Dashboard(ctx context.Context, year, month int) (core.Dashboard, error)
		Price(ctx context.Context, date core.Date) (pricing.Quote, error)
		LivePrice(ctx context.Context) (pricing.LiveQuote, error)
	}

	SettingsService interface {
		Get(ctx context.Context) (core.Settings, error)
		Update(ctx context.Context, patch core.SettingsPatch) (core.Settings, error)
	}

	CategoryService interface {
		List(ctx context.Context) ([]string, error)
		Add(ctx context.Context, name string) (string, error)
		Delete(ctx context.Context, name string) error
	}

	// PriceStats exposes resolver counters on /metrics.
	PriceStats interface {
		Stats() pricing.ResolverStats
	}
)

// Deps are the services the handlers call.
type Deps struct {
	Transactions TransactionService
	Dashboard    DashboardService
	Settings     SettingsService
	Categories   CategoryService
	Store        store.Pinger
	Prices       PriceStats
	AssetSymbol  string
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	CleanupInterval    time.Duration
}

// Server wraps http.Server with the cashback API, its middleware and metrics.
type Server struct {
	http.Server

	transactions TransactionService
	dashboard    DashboardService
	settings     SettingsService
	categories   CategoryService
	pinger       store.Pinger
	prices       PriceStats
	assetSymbol  string

	templates    *template.Template
	detector     *security.Detector
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	cacheManager *cache.Manager
	cleanupEvery time.Duration
	logger       *log.Logger

	startedAt           time.Time
	transactionsCreated atomic.Int64
	transactionsDeleted atomic.Int64

	now func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if deps.AssetSymbol == "" {
		deps.AssetSymbol = "SOL"
	}

	limiterCfg := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limiterCfg.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	s := &Server{
		transactions: deps.Transactions,
		dashboard:    deps.Dashboard,
		settings:     deps.Settings,
		categories:   deps.Categories,
		pinger:       deps.Store,
		prices:       deps.Prices,
		assetSymbol:  deps.AssetSymbol,
		detector:     security.NewDetector(logger),
		limiter:      ratelimit.NewLimiter(limiterCfg),
		cacheManager: cache.NewManager(logger),
		cleanupEvery: cfg.CleanupInterval,
		logger:       logger.WithComponent(log.ComponentHTTP),
		startedAt:    time.Now(),
		now:          time.Now,
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	s.cacheManager.Register(s.limiter)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	api := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }

	mux.Handle("POST /transactions", api(s.handleCreateTransaction))
	mux.Handle("GET /transactions", api(s.handleListTransactions))
	mux.Handle("DELETE /transactions/{id}", api(s.handleDeleteTransaction))
	mux.Handle("GET /monthly", api(s.handleMonthly))
	mux.Handle("GET /dashboard", api(s.handleDashboard))
	mux.Handle("GET /price/asset", api(s.handlePrice))
	mux.Handle("GET /price/asset/live", api(s.handleLivePrice))
	mux.Handle("GET /settings", api(s.handleGetSettings))
	mux.Handle("PUT /settings", api(s.handleUpdateSettings))
	mux.Handle("GET /categories", api(s.handleListCategories))
	mux.Handle("POST /categories", api(s.handleAddCategory))
	mux.Handle("DELETE /categories/{name}", api(s.handleDeleteCategory))
	mux.Handle("GET /export/transactions.csv", api(s.handleExportCSV))
	mux.Handle("GET /export/transactions.json", api(s.handleExportJSON))

	mux.Handle("GET /health", api(s.handleHealth))
	mux.Handle("GET /readyz", api(s.handleReady))
	mux.Handle("GET /metrics", api(s.handleMetrics))

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}
	mux.HandleFunc("GET /{$}", s.handleIndex)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})

	var h http.Handler = mux
	h = limit(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

// ListenAndServe starts background cache cleanup and serves until shutdown.
func (s *Server) ListenAndServe() error {
	s.cacheManager.StartCleanup(s.cleanupEvery)
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	return s.Server.ListenAndServe()
}

// Shutdown stops background cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cacheManager.Stop()
	return s.Server.Shutdown(ctx)
}

// WithClock overrides the clock used for default months. Intended for tests.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}
