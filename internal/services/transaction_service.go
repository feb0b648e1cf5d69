package services

import (
	"context"
	"fmt"

	"cashback/internal/amqp"
	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/store"

	"github.com/google/uuid"
)

// Publisher sends transaction events. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.TransactionEvent) error
}

// TransactionService orchestrates purchases across the store and the event bus.
type TransactionService struct {
	store     store.TransactionStore
	settings  store.SettingsStore
	publisher Publisher
	logger    *log.Logger
	newID     func() string
}

func NewTransactionService(txs store.TransactionStore, settings store.SettingsStore, publisher Publisher, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionService{
		store:     txs,
		settings:  settings,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentTransactions),
		newID:     uuid.NewString,
	}
}

// Create validates in, assigns a fresh id and appends the transaction.
func (s *TransactionService) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	tx, err := in.Validate()
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = s.newID()

	if err := s.store.Append(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction created",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithTransaction(tx.ID, tx.Date.String(), tx.Category, tx.Amount).
			ToSlice()...)

	s.publish(ctx, amqp.EventTransactionCreated, tx)
	return tx, nil
}

// Delete removes the transaction with id, or returns core.ErrNotFound.
func (s *TransactionService) Delete(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := s.store.Delete(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)

	s.publish(ctx, amqp.EventTransactionDeleted, tx)
	return tx, nil
}

func (s *TransactionService) List(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *TransactionService) ListForMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	txs, err := s.store.ListForMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %d-%02d: %w", year, month, err)
	}
	return txs, nil
}

// Monthly returns the month's totals, category breakdown and per-transaction cashback.
func (s *TransactionService) Monthly(ctx context.Context, year, month int) (core.MonthSummary, error) {
	txs, err := s.ListForMonth(ctx, year, month)
	if err != nil {
		return core.MonthSummary{}, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("load settings: %w", err)
	}
	return core.BuildMonthSummary(txs, year, month, settings.CashbackRate), nil
}

// publish never fails the caller: the transaction is already stored.
func (s *TransactionService) publish(ctx context.Context, eventType string, tx core.Transaction) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Event publisher not configured, skipping event", "type", eventType)
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewTransactionEvent(eventType, tx)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			"type", eventType,
			log.FieldTransactionID, tx.ID,
			log.FieldError, err)
	}
}
