package http

import (
	"net/http"
	"strings"

	"cashback/internal/core"
	"cashback/internal/log"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	d, err := s.dashboard.Dashboard(r.Context(), params.Year, params.Month)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(d).Write(w)
}

// handlePrice resolves the historical price for ?date=YYYY-MM-DD.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		FieldErrorResponse("date", "date is required").Write(w)
		return
	}
	date, err := core.ParseDate(raw)
	if err != nil {
		FieldErrorResponse("date", "date must be a valid YYYY-MM-DD calendar date").Write(w)
		return
	}
	q, err := s.dashboard.Price(r.Context(), date)
	if err != nil {
		writeError(w, r, log.OpResolve, err)
		return
	}
	NewResponse().JSON(q).Write(w)
}

func (s *Server) handleLivePrice(w http.ResponseWriter, r *http.Request) {
	q, err := s.dashboard.LivePrice(r.Context())
	if err != nil {
		writeError(w, r, log.OpResolve, err)
		return
	}
	NewResponse().JSON(q).Write(w)
}
