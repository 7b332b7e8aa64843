package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"budget/internal/core"
	"budget/internal/expenses"
	recordmemory "budget/internal/recordstore/memory"
	"budget/internal/sheets/memory"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expense(id string, day int, updated time.Time) core.Expense {
	return core.Expense{ID: id, OccurredOn: core.NewDate(2024, 1, day), ItemName: "item " + id, CreatedAt: t0, UpdatedAt: updated}
}

func noSnapshot(context.Context) ([]core.Expense, error) { return nil, nil }

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewSyncWorker(noSnapshot, mirror, quietLogger())

	steps := []struct {
		name string
		ev   expenses.Event
		want []string
	}{
		{"create a", expenses.Event{Kind: expenses.EventCreated, Expense: expense("a", 1, t0), At: t0}, []string{"a"}},
		{"create b", expenses.Event{Kind: expenses.EventCreated, Expense: expense("b", 2, t0), At: t0}, []string{"a", "b"}},
		{"update a", expenses.Event{Kind: expenses.EventUpdated, Expense: expense("a", 5, t0.Add(time.Minute)), At: t0.Add(time.Minute)}, []string{"a", "b"}},
		{"delete b", expenses.Event{Kind: expenses.EventDeleted, Expense: expense("b", 2, t0), At: t0.Add(2 * time.Minute)}, []string{"a"}},
	}
	for _, st := range steps {
		if err := w.HandleEvent(ctx, st.ev); err != nil {
			t.Fatalf("%s: HandleEvent() error = %v", st.name, err)
		}
		rows := mirror.Rows()
		if len(rows) != len(st.want) {
			t.Fatalf("%s: rows = %+v, want ids %v", st.name, rows, st.want)
		}
		for i, id := range st.want {
			if rows[i].ID != id {
				t.Fatalf("%s: rows[%d] = %s, want %s", st.name, i, rows[i].ID, id)
			}
		}
	}
	if got := mirror.Rows()[0].OccurredOn.String(); got != "2024-01-05" {
		t.Errorf("a occurredOn = %s, want the updated date", got)
	}
}

func TestHandleEventSkipsStale(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewSyncWorker(noSnapshot, mirror, quietLogger())

	newer := expenses.Event{Kind: expenses.EventUpdated, Expense: expense("a", 3, t0.Add(time.Hour)), At: t0.Add(time.Hour)}
	older := expenses.Event{Kind: expenses.EventUpdated, Expense: expense("a", 1, t0), At: t0}

	if err := w.HandleEvent(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleEvent(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleEvent(ctx, newer); err != nil {
		t.Fatal(err)
	}

	if mirror.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", mirror.Calls())
	}
	if got := mirror.Rows()[0].OccurredOn.String(); got != "2024-01-03" {
		t.Errorf("occurredOn = %s, want the newer event's date", got)
	}
}

func TestHandleEventMirrorFailure(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	boom := errors.New("sheets quota exceeded")
	mirror.Fail(boom)
	w := NewSyncWorker(noSnapshot, mirror, quietLogger())

	ev := expenses.Event{Kind: expenses.EventCreated, Expense: expense("a", 1, t0), At: t0}
	if err := w.HandleEvent(ctx, ev); !errors.Is(err, boom) {
		t.Fatalf("HandleEvent() error = %v, want %v", err, boom)
	}

	// A failed write must not mark the event as applied.
	mirror.Fail(nil)
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if len(mirror.Rows()) != 1 {
		t.Fatalf("rows = %+v, want the retried expense", mirror.Rows())
	}
}

func TestHandleEventUnknownKind(t *testing.T) {
	w := NewSyncWorker(noSnapshot, memory.New(), quietLogger())
	err := w.HandleEvent(context.Background(), expenses.Event{Kind: "archived", Expense: expense("a", 1, t0)})
	if !errors.Is(err, expenses.ErrUnknownEventKind) {
		t.Fatalf("HandleEvent() error = %v, want ErrUnknownEventKind", err)
	}
}

func TestResync(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	_ = mirror.Upsert(ctx, expense("ghost", 1, t0))

	snapshot := []core.Expense{expense("late", 20, t0), expense("early", 2, t0.Add(time.Hour))}
	w := NewSyncWorker(func(context.Context) ([]core.Expense, error) { return snapshot, nil }, mirror, quietLogger())

	if err := w.Resync(ctx); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}
	rows := mirror.Rows()
	if len(rows) != 2 || rows[0].ID != "early" || rows[1].ID != "late" {
		t.Fatalf("rows = %+v, want early then late", rows)
	}

	// Events already covered by the snapshot are skipped.
	stale := expenses.Event{Kind: expenses.EventUpdated, Expense: expense("early", 9, t0), At: t0}
	if err := w.HandleEvent(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if got := mirror.Rows()[0].OccurredOn.String(); got != "2024-01-02" {
		t.Errorf("stale event overwrote the snapshot row: %s", got)
	}
}

func TestResyncSnapshotError(t *testing.T) {
	mirror := memory.New()
	boom := errors.New("store unavailable")
	w := NewSyncWorker(func(context.Context) ([]core.Expense, error) { return nil, boom }, mirror, quietLogger())

	if err := w.Resync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Resync() error = %v, want %v", err, boom)
	}
	if mirror.Calls() != 0 {
		t.Error("mirror must not be touched when the snapshot fails")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mirror := memory.New()
	w := NewSyncWorker(func(context.Context) ([]core.Expense, error) {
		cancel()
		return []core.Expense{expense("a", 1, t0)}, nil
	}, mirror, quietLogger())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Hour) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(mirror.Rows()) != 1 {
		t.Errorf("initial resync did not run: %+v", mirror.Rows())
	}
}

func TestRepositoryEventsWithFrozenClockReachMirror(t *testing.T) {
	ctx := context.Background()
	mirror := memory.New()
	w := NewSyncWorker(noSnapshot, mirror, quietLogger())

	repo, err := expenses.New(ctx, recordmemory.New(),
		expenses.WithClock(func() time.Time { return t0 }),
		expenses.WithNotifier(expenses.NotifierFunc(w.HandleEvent)))
	if err != nil {
		t.Fatalf("expenses.New() error = %v", err)
	}
	owner := &core.Principal{ID: "u1", DisplayName: "Alice", Role: core.RoleUser}

	e, err := repo.Create(ctx, owner, core.Draft{OccurredOn: core.NewDate(2024, 1, 10), ItemName: "Pens", Amount: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := repo.Update(ctx, owner, e.ID, core.Patch{}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := repo.Delete(ctx, owner, e.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if rows := mirror.Rows(); len(rows) != 0 {
		t.Fatalf("rows = %+v, want the deleted expense removed", rows)
	}
}
