package memory

import (
	"context"
	"sync"

	"budget/internal/core"
)

// Mirror is an in-process sheets.Mirror, used when no spreadsheet is
// configured and in tests.
type Mirror struct {
	mu    sync.Mutex
	order []string
	rows  map[string]core.Expense
	err   error
	calls int
}

func New() *Mirror {
	return &Mirror{rows: map[string]core.Expense{}}
}

func (m *Mirror) Upsert(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rows[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.rows[e.ID] = e
	return nil
}

func (m *Mirror) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rows[id]; !ok {
		return nil
	}
	delete(m.rows, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Mirror) Replace(_ context.Context, records []core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.rows = make(map[string]core.Expense, len(records))
	m.order = m.order[:0]
	for _, e := range records {
		if _, ok := m.rows[e.ID]; !ok {
			m.order = append(m.order, e.ID)
		}
		m.rows[e.ID] = e
	}
	return nil
}

// Rows returns the mirrored records in row order.
func (m *Mirror) Rows() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Expense, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rows[id])
	}
	return out
}

// Calls counts every write attempt, failed ones included.
func (m *Mirror) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Fail makes every following write return err; nil restores normal behavior.
func (m *Mirror) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
