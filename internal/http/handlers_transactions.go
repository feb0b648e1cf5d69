package http

import (
	"bytes"
	"net/http"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/services"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	tx, err := s.transactions.Create(r.Context(), p.TransactionInput())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	s.transactionsCreated.Add(1)
	NewResponse().Status(http.StatusCreated).JSON(tx).Write(w)
}

// handleListTransactions returns every transaction, or one month when year or
// month is given.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		txs []core.Transaction
		err error
	)
	if q.Has("year") || q.Has("month") {
		params, perr := ParseMonthParams(q, s.now())
		if perr != nil {
			writeError(w, r, log.OpList, perr)
			return
		}
		txs, err = s.transactions.ListForMonth(r.Context(), params.Year, params.Month)
	} else {
		txs, err = s.transactions.List(r.Context())
	}
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewResponse().JSON(txs).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	if id == "" {
		FieldErrorResponse("id", "transaction id is required").Write(w)
		return
	}
	tx, err := s.transactions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	s.transactionsDeleted.Add(1)
	NewResponse().JSON(map[string]any{"ok": true, "deletedId": tx.ID}).Write(w)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	summary, err := s.transactions.Monthly(r.Context(), params.Year, params.Month)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(summary).Write(w)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	txs, err := s.transactions.List(r.Context())
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	settings, err := s.settings.Get(r.Context())
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	var buf bytes.Buffer
	if err := services.WriteCSV(&buf, txs, settings.CashbackRate); err != nil {
		writeError(w, r, "export", err)
		return
	}
	NewResponse().
		Attachment("transactions.csv", "text/csv; charset=utf-8").
		Bytes(buf.Bytes()).
		Write(w)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	txs, err := s.transactions.List(r.Context())
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	var buf bytes.Buffer
	if err := services.WriteJSON(&buf, txs); err != nil {
		writeError(w, r, "export", err)
		return
	}
	NewResponse().
		Attachment("transactions.json", "application/json; charset=utf-8").
		Bytes(buf.Bytes()).
		Write(w)
}
