package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cashback/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers within a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.pinger == nil {
		checks["store"] = "failed: not configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := s.pinger.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.templates == nil {
		checks["templates"] = "degraded: not loaded"
	} else {
		checks["templates"] = "ok"
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	tm := s.tracer.GetMetrics()
	rl := s.limiter.GetMetrics()

	fmt.Fprintf(w, "# HELP http_requests_total Total HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", tm.TotalRequests)

	fmt.Fprintf(w, "# HELP http_errors_total Total HTTP error responses by class\n")
	fmt.Fprintf(w, "# TYPE http_errors_total counter\n")
	fmt.Fprintf(w, "http_errors_total{class=\"4xx\"} %d\n", tm.ClientErrors)
	fmt.Fprintf(w, "http_errors_total{class=\"5xx\"} %d\n\n", tm.ServerErrors)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_microseconds Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_microseconds %d\n\n", tm.AverageResponseTime)

	fmt.Fprintf(w, "# HELP transactions_created_total Transactions created since start\n")
	fmt.Fprintf(w, "# TYPE transactions_created_total counter\n")
	fmt.Fprintf(w, "transactions_created_total %d\n\n", s.transactionsCreated.Load())

	fmt.Fprintf(w, "# HELP transactions_deleted_total Transactions deleted since start\n")
	fmt.Fprintf(w, "# TYPE transactions_deleted_total counter\n")
	fmt.Fprintf(w, "transactions_deleted_total %d\n\n", s.transactionsDeleted.Load())

	if s.prices != nil {
		ps := s.prices.Stats()
		fmt.Fprintf(w, "# HELP price_lookups_total Historical price lookups by source\n")
		fmt.Fprintf(w, "# TYPE price_lookups_total counter\n")
		fmt.Fprintf(w, "price_lookups_total{source=\"memory\"} %d\n", ps.MemoryHits)
		fmt.Fprintf(w, "price_lookups_total{source=\"store\"} %d\n", ps.StoreHits)
		fmt.Fprintf(w, "price_lookups_total{source=\"api\"} %d\n\n", ps.APIFetches)

		fmt.Fprintf(w, "# HELP price_failures_total Failed historical price lookups\n")
		fmt.Fprintf(w, "# TYPE price_failures_total counter\n")
		fmt.Fprintf(w, "price_failures_total %d\n\n", ps.Failures)

		fmt.Fprintf(w, "# HELP price_cache_entries Prices held in memory\n")
		fmt.Fprintf(w, "# TYPE price_cache_entries gauge\n")
		fmt.Fprintf(w, "price_cache_entries %d\n\n", ps.Memory.Size)
	}

	fmt.Fprintf(w, "# HELP rate_limit_rejections_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejections_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejections_total %d\n\n", rl.Rejected)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rl.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.detector.SuspiciousRequests())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := s.now()
	data := struct {
		Today  string
		Year   int
		Month  int
		Symbol string
	}{
		Today:  now.Format("2006-01-02"),
		Year:   now.Year(),
		Month:  int(now.Month()),
		Symbol: s.assetSymbol,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed", log.FieldError, err, "template", "index.html")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
