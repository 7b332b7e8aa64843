package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
)

// amountInput accepts an amount as a JSON number or string, with either a
// dot or a comma as decimal separator.
type amountInput struct {
	decimal.Decimal
}

func (a *amountInput) UnmarshalJSON(b []byte) error {
	raw := string(bytes.TrimSpace(b))
	if raw == "null" {
		return core.NewValidationError("amount", "is required")
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = raw
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// expenseRequest is the body of POST and PATCH /api/expenses. Pointer
// fields distinguish "absent" from "empty" for PATCH.
type expenseRequest struct {
	OccurredOn *core.Date   `json:"occurredOn"`
	ItemName   *string      `json:"itemName"`
	Amount     *amountInput `json:"amount"`
	Category   *string      `json:"category"`
}

// patchRequest is the body of PATCH /api/expenses/{id}. It accepts a whole
// expense as returned by GET; the read-only fields are decoded and dropped.
type patchRequest struct {
	expenseRequest
	ID               json.RawMessage `json:"id"`
	OwnerID          json.RawMessage `json:"ownerId"`
	OwnerDisplayName json.RawMessage `json:"ownerDisplayName"`
	CreatedAt        json.RawMessage `json:"createdAt"`
	UpdatedAt        json.RawMessage `json:"updatedAt"`
}

func (req expenseRequest) draft() (core.Draft, error) {
	var d core.Draft
	if req.Amount == nil {
		return d, core.NewValidationError("amount", "amount is required")
	}
	if req.OccurredOn != nil {
		d.OccurredOn = *req.OccurredOn
	}
	if req.ItemName != nil {
		d.ItemName = *req.ItemName
	}
	d.Amount = req.Amount.Decimal
	if req.Category != nil {
		d.Category = *req.Category
	}
	return d, nil
}

func (req expenseRequest) patch() core.Patch {
	p := core.Patch{
		OccurredOn: req.OccurredOn,
		ItemName:   req.ItemName,
		Category:   req.Category,
	}
	if req.Amount != nil {
		amount := req.Amount.Decimal
		p.Amount = &amount
	}
	return p
}

// expenseQuery is the parsed query string of GET /api/expenses.
type expenseQuery struct {
	Predicate core.Predicate
	Search    string
	Sort      core.SortField
	Desc      bool
	Window    core.WindowKind
}

// parseExpenseQuery reads the exact-match filters, free-text search, sort
// and optional window from q.
func parseExpenseQuery(q url.Values) (expenseQuery, error) {
	var out expenseQuery

	if q.Has("category") {
		v := q.Get("category")
		out.Predicate.Category = &v
	}
	if q.Has("ownerId") {
		v := q.Get("ownerId")
		out.Predicate.OwnerID = &v
	}
	if q.Has("itemName") {
		v := q.Get("itemName")
		out.Predicate.ItemName = &v
	}
	if q.Has("occurredOn") {
		d, err := core.ParseDate(q.Get("occurredOn"))
		if err != nil {
			return expenseQuery{}, err
		}
		out.Predicate.OccurredOn = &d
	}

	out.Search = strings.TrimSpace(q.Get("q"))

	field, desc, err := core.ParseSort(q.Get("sort"), q.Get("dir"))
	if err != nil {
		return expenseQuery{}, err
	}
	out.Sort, out.Desc = field, desc

	if v := q.Get("window"); v != "" {
		w, err := core.ParseWindow(v)
		if err != nil {
			return expenseQuery{}, err
		}
		out.Window = w
	}
	return out, nil
}

// apply runs the query over records with ref as the window reference.
func (q expenseQuery) apply(records []core.Expense, ref time.Time) []core.Expense {
	out := core.FilterByPredicate(records, q.Predicate)
	if q.Window != "" {
		out = core.FilterByWindow(out, q.Window, ref)
	}
	out = core.Search(out, q.Search)
	return core.SortBy(out, q.Sort, q.Desc)
}

// etag renders an expense version for the ETag header.
func etag(e core.Expense) string {
	return `"` + strconv.FormatInt(e.UpdatedAt.UnixNano(), 10) + `"`
}

// ifMatch parses an If-Match header produced by etag. ok is false when the
// header is absent or "*".
func ifMatch(r *http.Request) (version time.Time, ok bool, err error) {
	h := strings.TrimSpace(r.Header.Get("If-Match"))
	if h == "" || h == "*" {
		return time.Time{}, false, nil
	}
	n, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(h, "W/"), `"`), 10, 64)
	if err != nil {
		return time.Time{}, false, core.NewValidationError("If-Match", "malformed entity tag")
	}
	return time.Unix(0, n).UTC(), true, nil
}
