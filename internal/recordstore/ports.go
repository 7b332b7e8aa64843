// Package recordstore defines the durable key/blob store the application
// persists its collections into.
package recordstore

import (
	"context"
	"errors"
)

// Keys used by the application.
const (
	KeyExpenses = "expenses"
	KeyUsers    = "users"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("record not found")

// Store is a generic get/set store of named blobs. It offers no transactions
// and no schema: callers serialize whole collections.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
	Close() error
}
