package http

import (
	"net/http"

	"budget/internal/core"
	"budget/internal/expenses"
)

// expenseList carries the matching records with the figures of the reports
// view: total, current calendar month and average per active day.
type expenseList struct {
	Items               []core.Expense `json:"items"`
	Count               int            `json:"count"`
	Total               string         `json:"total"`
	ThisMonth           string         `json:"thisMonth"`
	AveragePerActiveDay string         `json:"averagePerActiveDay"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q, err := parseExpenseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref := s.now()
	records := q.apply(s.deps.Expenses.List(), ref)
	writeJSON(w, http.StatusOK, newExpenseList(records, ref))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := req.draft()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Create(r.Context(), principalFrom(r.Context()), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/expenses/"+e.ID)
	w.Header().Set("ETag", etag(e))
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Expenses.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(e))
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	opts, err := mutationOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req patchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Update(r.Context(), principalFrom(r.Context()), r.PathValue("id"), req.patch(), opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(e))
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	opts, err := mutationOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Expenses.Delete(r.Context(), principalFrom(r.Context()), r.PathValue("id"), opts...); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mutationOptions(r *http.Request) ([]expenses.MutationOption, error) {
	version, ok, err := ifMatch(r)
	if err != nil || !ok {
		return nil, err
	}
	return []expenses.MutationOption{expenses.IfUnmodified(version)}, nil
}
