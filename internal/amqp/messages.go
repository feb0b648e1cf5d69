package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cashback/internal/core"
)

// Routing keys, also used as the event type.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionDeleted = "transaction.deleted"
)

// RoutingKeys are bound to the consumer queue.
var RoutingKeys = []string{EventTransactionCreated, EventTransactionDeleted}

var ErrMalformedEvent = errors.New("malformed event")

// TransactionEvent describes a change to the transaction list.
type TransactionEvent struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTransactionEvent builds an event of the given type for tx.
func NewTransactionEvent(eventType string, tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Type:        eventType,
		ID:          tx.ID,
		Date:        tx.Date.String(),
		Description: tx.Description,
		Category:    tx.Category,
		Amount:      tx.Amount,
		Timestamp:   time.Now().UTC(),
	}
}

// Transaction converts the event payload back into a transaction.
func (e *TransactionEvent) Transaction() (core.Transaction, error) {
	d, err := core.ParseDate(e.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          e.ID,
		Date:        d,
		Description: e.Description,
		Category:    e.Category,
		Amount:      e.Amount,
	}, nil
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and checks an event body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch ev.Type {
	case EventTransactionCreated, EventTransactionDeleted:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if ev.Type == EventTransactionCreated {
		if _, err := core.ParseDate(ev.Date); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}
	return &ev, nil
}
