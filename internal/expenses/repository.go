// Package expenses owns the expense collection. Every mutation goes through
// the owner-or-admin rule and is persisted to the record store before it
// becomes visible to readers.
package expenses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/recordstore"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("expense repository closed")

type Repository struct {
	store recordstore.Store
	key   string

	// mu serializes writers. records is never modified in place: a mutation
	// builds a new slice and swaps it in after the store accepted it.
	mu      sync.RWMutex
	records []core.Expense
	closed  bool

	now      func() time.Time
	newID    func() string
	notifier Notifier
	logger   *slog.Logger
}

// New loads the expense collection from store. A store without the
// collection yields an empty repository.
func New(ctx context.Context, store recordstore.Store, opts ...Option) (*Repository, error) {
	r := &Repository{
		store:  store,
		key:    recordstore.KeyExpenses,
		now:    defaultClock,
		newID:  defaultID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(log.FieldComponent, log.ComponentExpense)

	records, err := Snapshot(ctx, store)
	if err != nil {
		return nil, err
	}
	r.records = records

	r.logger.Info("Expense collection loaded", log.FieldRecords, len(r.records))
	return r, nil
}

// Snapshot reads the persisted expense collection without taking ownership
// of it. A store without the collection yields an empty slice.
func Snapshot(ctx context.Context, store recordstore.Store) ([]core.Expense, error) {
	blob, err := store.Get(ctx, recordstore.KeyExpenses)
	if errors.Is(err, recordstore.ErrNotFound) {
		return []core.Expense{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load expenses: %w", core.ErrPersistence, err)
	}
	var records []core.Expense
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("%w: decode expenses: %w", core.ErrPersistence, err)
	}
	if records == nil {
		records = []core.Expense{}
	}
	return records, nil
}

// Create stores a new expense owned by p.
func (r *Repository) Create(ctx context.Context, p *core.Principal, d core.Draft) (core.Expense, error) {
	if !authenticated(p) {
		return core.Expense{}, core.ErrNotAuthenticated
	}
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.Expense{}, ErrClosed
	}

	id := r.newID()
	if r.indexOf(id) >= 0 {
		return core.Expense{}, fmt.Errorf("%w: generated id %q already in use", core.ErrConflict, id)
	}

	now := r.now()
	e := core.Expense{
		ID:               id,
		OccurredOn:       d.OccurredOn,
		ItemName:         strings.TrimSpace(d.ItemName),
		Amount:           d.Amount,
		Category:         strings.TrimSpace(d.Category),
		OwnerID:          p.ID,
		OwnerDisplayName: p.DisplayName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	next := make([]core.Expense, len(r.records), len(r.records)+1)
	copy(next, r.records)
	next = append(next, e)

	if err := r.commit(ctx, next); err != nil {
		r.logFailure(ctx, log.OpCreate, id, p, err)
		return core.Expense{}, err
	}

	r.logger.InfoContext(ctx, "Expense created", log.NewFields().
		WithOperation(log.OpCreate).WithExpense(e.ID, e.OwnerID).ToSlice()...)
	r.notify(ctx, Event{Kind: EventCreated, Expense: e, ActorID: p.ID, At: now})
	return e, nil
}

// Update merges patch into the expense with the given id. Identity and
// ownership fields never change and updatedAt always moves forward.
func (r *Repository) Update(ctx context.Context, p *core.Principal, id string, patch core.Patch, opts ...MutationOption) (core.Expense, error) {
	if !authenticated(p) {
		return core.Expense{}, core.ErrNotAuthenticated
	}
	m := applyMutationOptions(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.Expense{}, ErrClosed
	}

	i, err := r.authorize(ctx, log.OpUpdate, p, id, m)
	if err != nil {
		return core.Expense{}, err
	}
	if err := patch.Validate(); err != nil {
		return core.Expense{}, err
	}

	prev := r.records[i]
	updated := patch.Apply(prev)
	updated.UpdatedAt = r.advance(prev.UpdatedAt)

	next := make([]core.Expense, len(r.records))
	copy(next, r.records)
	next[i] = updated

	if err := r.commit(ctx, next); err != nil {
		r.logFailure(ctx, log.OpUpdate, id, p, err)
		return core.Expense{}, err
	}

	r.logger.InfoContext(ctx, "Expense updated", log.NewFields().
		WithOperation(log.OpUpdate).WithExpense(id, updated.OwnerID).WithPrincipal(p.ID).ToSlice()...)
	r.notify(ctx, Event{Kind: EventUpdated, Expense: updated, ActorID: p.ID, At: updated.UpdatedAt})
	return updated, nil
}

// Delete removes the expense with the given id under the same rule as Update.
func (r *Repository) Delete(ctx context.Context, p *core.Principal, id string, opts ...MutationOption) error {
	if !authenticated(p) {
		return core.ErrNotAuthenticated
	}
	m := applyMutationOptions(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	i, err := r.authorize(ctx, log.OpDelete, p, id, m)
	if err != nil {
		return err
	}

	removed := r.records[i]
	next := make([]core.Expense, 0, len(r.records)-1)
	next = append(next, r.records[:i]...)
	next = append(next, r.records[i+1:]...)

	if err := r.commit(ctx, next); err != nil {
		r.logFailure(ctx, log.OpDelete, id, p, err)
		return err
	}

	r.logger.InfoContext(ctx, "Expense deleted", log.NewFields().
		WithOperation(log.OpDelete).WithExpense(id, removed.OwnerID).WithPrincipal(p.ID).ToSlice()...)
	r.notify(ctx, Event{Kind: EventDeleted, Expense: removed, ActorID: p.ID, At: r.advance(removed.UpdatedAt)})
	return nil
}

// List returns every expense in insertion order. The slice is a copy.
func (r *Repository) List() []core.Expense {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.Expense(nil), r.records...)
}

func (r *Repository) Get(id string) (core.Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.records[i], nil
	}
	return core.Expense{}, core.ErrNotFound
}

// Filter returns the expenses matching every field set in pred.
func (r *Repository) Filter(pred core.Predicate) []core.Expense {
	return core.FilterByPredicate(r.List(), pred)
}

// Close marks the repository closed. The record store is owned by the caller.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// authorize resolves id and applies the owner-or-admin rule. NotFound is
// reported before Forbidden. Callers hold r.mu.
func (r *Repository) authorize(ctx context.Context, op string, p *core.Principal, id string, m mutation) (int, error) {
	i := r.indexOf(id)
	if i < 0 {
		return -1, core.ErrNotFound
	}
	e := r.records[i]
	if !core.CanModify(*p, e) {
		r.logger.WarnContext(ctx, "Expense mutation denied", log.NewFields().
			WithOperation(op).WithExpense(id, e.OwnerID).WithPrincipal(p.ID).
			WithErrorType(log.ErrorTypeForbidden).ToSlice()...)
		return -1, core.ErrForbidden
	}
	if m.ifUnmodified != nil && !m.ifUnmodified.Equal(e.UpdatedAt) {
		return -1, fmt.Errorf("%w: expense %s was modified at %s", core.ErrConflict, id, e.UpdatedAt.Format(time.RFC3339Nano))
	}
	return i, nil
}

// commit persists next and, only on success, makes it the live collection.
func (r *Repository) commit(ctx context.Context, next []core.Expense) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode expenses: %w", core.ErrPersistence, err)
	}
	if err := r.store.Set(ctx, r.key, blob); err != nil {
		return fmt.Errorf("%w: save expenses: %w", core.ErrPersistence, err)
	}
	r.records = next
	return nil
}

// advance returns the current time, nudged past prev when the clock has not moved.
func (r *Repository) advance(prev time.Time) time.Time {
	now := r.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func (r *Repository) notify(ctx context.Context, ev Event) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish expense event",
			log.FieldEventKind, ev.Kind,
			log.FieldExpenseID, ev.Expense.ID,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork)
	}
}

func (r *Repository) logFailure(ctx context.Context, op, id string, p *core.Principal, err error) {
	r.logger.ErrorContext(ctx, "Expense mutation not persisted", log.NewFields().
		WithOperation(op).WithExpense(id, "").WithPrincipal(p.ID).
		WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
}

func (r *Repository) indexOf(id string) int {
	for i := range r.records {
		if r.records[i].ID == id {
			return i
		}
	}
	return -1
}

func authenticated(p *core.Principal) bool {
	return p != nil && p.ID != ""
}

func applyMutationOptions(opts []MutationOption) mutation {
	var m mutation
	for _, opt := range opts {
		opt(&m)
	}
	return m
}
