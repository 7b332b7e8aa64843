package expenses

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator sets the function producing new expense ids.
func WithIDGenerator(gen func() string) Option {
	return func(r *Repository) { r.newID = gen }
}

func WithNotifier(n Notifier) Option {
	return func(r *Repository) { r.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

func defaultClock() time.Time { return time.Now().UTC() }

func defaultID() string { return uuid.NewString() }

// MutationOption adds a precondition to Update or Delete.
type MutationOption func(*mutation)

type mutation struct {
	ifUnmodified *time.Time
}

// IfUnmodified makes the mutation fail with core.ErrConflict unless the
// stored record's updatedAt still equals version.
func IfUnmodified(version time.Time) MutationOption {
	return func(m *mutation) { m.ifUnmodified = &version }
}
