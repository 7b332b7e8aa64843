package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"budget/internal/core"
	"budget/internal/expenses"
)

// ExpenseEventMessage carries one persisted expense mutation. The full record
// travels with the event so consumers never read the store to apply it.
type ExpenseEventMessage struct {
	Kind      expenses.EventKind `json:"kind"`
	Expense   core.Expense       `json:"expense"`
	ActorID   string             `json:"actorId"`
	At        time.Time          `json:"at"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewExpenseEventMessage wraps ev, stamping the publish time.
func NewExpenseEventMessage(ev expenses.Event) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		Kind:      ev.Kind,
		Expense:   ev.Expense,
		ActorID:   ev.ActorID,
		At:        ev.At,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Event converts the message back into a repository event.
func (m *ExpenseEventMessage) Event() expenses.Event {
	return expenses.Event{Kind: m.Kind, Expense: m.Expense, ActorID: m.ActorID, At: m.At}
}

// ExpenseEventMessageFromJSON decodes and checks a message body.
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case expenses.EventCreated, expenses.EventUpdated, expenses.EventDeleted:
	default:
		return nil, fmt.Errorf("%w %q", expenses.ErrUnknownEventKind, msg.Kind)
	}
	if msg.Expense.ID == "" {
		return nil, fmt.Errorf("event has no expense id")
	}
	return &msg, nil
}
