package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashback/internal/amqp"
	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/pricing"
	"cashback/internal/sheets"
)

// PriceWarmer resolves, and thereby caches, the price for a date.
type PriceWarmer interface {
	Resolve(ctx context.Context, date core.Date) (pricing.Quote, error)
}

// SyncWorker reacts to transaction events: it warms the price cache for the
// purchase date and keeps the optional spreadsheet mirror in step.
type SyncWorker struct {
	prices PriceWarmer
	mirror sheets.Mirror
	now    func() time.Time
	logger *log.Logger
}

// NewSyncWorker builds a worker. mirror may be nil when no spreadsheet is configured.
func NewSyncWorker(prices PriceWarmer, mirror sheets.Mirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		prices: prices,
		mirror: mirror,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// WithClock overrides the clock used to pick "yesterday". Intended for tests.
func (w *SyncWorker) WithClock(now func() time.Time) *SyncWorker {
	w.now = now
	return w
}

// HandleEvent processes one event. It satisfies amqp.Handler: a returned
// error requeues the delivery.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	switch ev.Type {
	case amqp.EventTransactionCreated:
		return w.handleCreated(ctx, ev)
	case amqp.EventTransactionDeleted:
		return w.handleDeleted(ctx, ev)
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type", "type", ev.Type, log.FieldTransactionID, ev.ID)
		return nil
	}
}

func (w *SyncWorker) handleCreated(ctx context.Context, ev *amqp.TransactionEvent) error {
	tx, err := ev.Transaction()
	if err != nil {
		// Redelivery cannot fix a bad payload.
		w.logger.ErrorContext(ctx, "Dropping invalid created event",
			log.FieldTransactionID, ev.ID,
			log.FieldError, err)
		return nil
	}

	w.warm(ctx, tx.Date)

	if w.mirror == nil {
		return nil
	}
	ref, err := w.mirror.AppendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("mirror transaction %s: %w", tx.ID, err)
	}
	w.logger.InfoContext(ctx, "Transaction mirrored",
		log.FieldOperation, log.OpMirror,
		log.FieldTransactionID, tx.ID,
		"row", ref)
	return nil
}

func (w *SyncWorker) handleDeleted(ctx context.Context, ev *amqp.TransactionEvent) error {
	if w.mirror == nil {
		return nil
	}
	if err := w.mirror.RemoveTransaction(ctx, ev.ID); err != nil {
		return fmt.Errorf("remove mirrored transaction %s: %w", ev.ID, err)
	}
	w.logger.InfoContext(ctx, "Mirrored transaction removed",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, ev.ID)
	return nil
}

// warm resolves the price for date. Failures are logged only; the dashboard
// resolves missing prices on demand.
func (w *SyncWorker) warm(ctx context.Context, date core.Date) bool {
	q, err := w.prices.Resolve(ctx, date)
	switch {
	case errors.Is(err, core.ErrFutureDate):
		w.logger.DebugContext(ctx, "Skipping price warm for future date", log.FieldDate, date.String())
		return false
	case err != nil:
		w.logger.WarnContext(ctx, "Price warm failed",
			log.FieldOperation, log.OpWarm,
			log.FieldDate, date.String(),
			log.FieldError, err)
		return false
	}
	w.logger.DebugContext(ctx, "Price warmed",
		log.FieldOperation, log.OpWarm,
		log.FieldDate, date.String(),
		log.FieldPrice, q.PriceUSD,
		log.FieldSource, q.Source)
	return true
}

// WarmYesterday caches yesterday's closing price.
func (w *SyncWorker) WarmYesterday(ctx context.Context) bool {
	return w.warm(ctx, core.DateOf(w.now().AddDate(0, 0, -1)))
}
