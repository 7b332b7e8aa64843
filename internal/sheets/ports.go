package sheets

import (
	"context"

	"budget/internal/core"
)

// Mirror keeps a read-only spreadsheet copy of the expense collection,
// one row per expense keyed by id.
type Mirror interface {
	// Upsert writes e, replacing an existing row with the same id.
	Upsert(ctx context.Context, e core.Expense) error
	// Remove deletes the row for id. Unknown ids are not an error.
	Remove(ctx context.Context, id string) error
	// Replace rewrites the whole mirror with records.
	Replace(ctx context.Context, records []core.Expense) error
}
