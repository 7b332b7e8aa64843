// Package worker keeps the spreadsheet mirror in step with the expense store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/expenses"
	"budget/internal/log"
	"budget/internal/sheets"
)

// SnapshotFunc returns the current persisted expense collection.
type SnapshotFunc func(ctx context.Context) ([]core.Expense, error)

// SyncWorker applies expense events to a sheets.Mirror and periodically
// rewrites the mirror from a full snapshot.
type SyncWorker struct {
	snapshot SnapshotFunc
	mirror   sheets.Mirror
	logger   *slog.Logger

	// mu orders event handling against resyncs. applied holds the newest
	// updatedAt written per id so redelivered or reordered events are skipped.
	mu      sync.Mutex
	applied map[string]time.Time
}

func NewSyncWorker(snapshot SnapshotFunc, mirror sheets.Mirror, logger *slog.Logger) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{
		snapshot: snapshot,
		mirror:   mirror,
		logger:   logger.With(log.FieldComponent, log.ComponentWorker),
		applied:  map[string]time.Time{},
	}
}

// HandleEvent mirrors one persisted mutation. Events older than what the
// mirror already holds for that expense are acknowledged without writing.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev expenses.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := ev.Expense.ID
	version := ev.Expense.UpdatedAt
	if ev.Kind == expenses.EventDeleted {
		version = ev.At
	}
	if last, ok := w.applied[id]; ok && !version.After(last) {
		w.logger.DebugContext(ctx, "Skipping stale expense event",
			log.FieldEventKind, ev.Kind, log.FieldExpenseID, id)
		return nil
	}

	var err error
	switch ev.Kind {
	case expenses.EventCreated, expenses.EventUpdated:
		err = w.mirror.Upsert(ctx, ev.Expense)
	case expenses.EventDeleted:
		err = w.mirror.Remove(ctx, id)
	default:
		return fmt.Errorf("%w %q", expenses.ErrUnknownEventKind, ev.Kind)
	}
	if err != nil {
		return fmt.Errorf("mirror %s event for %s: %w", ev.Kind, id, err)
	}
	w.applied[id] = version

	w.logger.InfoContext(ctx, "Mirrored expense event",
		log.FieldOperation, log.OpSync,
		log.FieldEventKind, ev.Kind,
		log.FieldExpenseID, id,
		log.FieldPrincipalID, ev.ActorID)
	return nil
}

// Resync rewrites the mirror from the current snapshot. It recovers from
// lost events and worker downtime.
func (w *SyncWorker) Resync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	records, err := w.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	records = core.SortBy(records, core.SortOccurredOn, false)
	if err := w.mirror.Replace(ctx, records); err != nil {
		return fmt.Errorf("replace mirror: %w", err)
	}

	w.applied = make(map[string]time.Time, len(records))
	for _, e := range records {
		w.applied[e.ID] = e.UpdatedAt
	}

	w.logger.InfoContext(ctx, "Mirror resynced",
		log.FieldOperation, log.OpResync,
		log.FieldRecords, len(records),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Run resyncs immediately and then every interval until ctx is done.
// Failed resyncs are logged and retried on the next tick.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.Resync(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Mirror resync failed",
				log.FieldError, err, log.FieldErrorType, log.ErrorTypeNetwork)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
