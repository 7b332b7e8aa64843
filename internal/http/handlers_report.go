package http

import (
	"net/http"
	"time"

	"budget/internal/core"
)

type windowReport struct {
	Window    core.WindowKind `json:"window"`
	From      core.Date       `json:"from"`
	To        core.Date       `json:"to"`
	Reference time.Time       `json:"reference"`
	expenseList
}

// newExpenseList summarizes records; ref must be the instant the records
// were selected with.
func newExpenseList(records []core.Expense, ref time.Time) expenseList {
	if records == nil {
		records = []core.Expense{}
	}
	return expenseList{
		Items:               records,
		Count:               len(records),
		Total:               core.FormatAmount(core.Total(records)),
		ThisMonth:           core.FormatAmount(core.Total(core.FilterByMonth(records, ref))),
		AveragePerActiveDay: core.FormatAmount(core.AveragePerActiveDay(records)),
	}
}

// handleSummary returns every window total computed from one reference instant.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Summarize(s.deps.Expenses.List(), s.now()))
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseWindow(r.PathValue("window"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref := s.now()
	records := core.SortBy(core.FilterByWindow(s.deps.Expenses.List(), kind, ref), core.SortOccurredOn, true)
	from, to := kind.Bounds(ref)
	writeJSON(w, http.StatusOK, windowReport{
		Window:      kind,
		From:        from,
		To:          to,
		Reference:   ref,
		expenseList: newExpenseList(records, ref),
	})
}
