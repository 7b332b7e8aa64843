package expenses

import (
	"context"
	"errors"
	"time"

	"budget/internal/core"
)

// EventKind names the mutation an Event reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// ErrUnknownEventKind marks an event that no consumer can ever apply.
// Retrying it is pointless.
var ErrUnknownEventKind = errors.New("unknown event kind")

// Event describes a mutation that has already been persisted. For deletions
// Expense holds the record as it was before removal.
type Event struct {
	Kind    EventKind    `json:"kind"`
	Expense core.Expense `json:"expense"`
	ActorID string       `json:"actorId"`
	At      time.Time    `json:"at"`
}

// Notifier receives events after a mutation succeeded. Errors are logged by
// the repository and never undo the mutation.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }
