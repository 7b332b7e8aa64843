package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Predicate is a conjunctive exact-match filter. Nil fields are unconstrained.
type Predicate struct {
	ID               *string
	OccurredOn       *Date
	ItemName         *string
	Amount           *decimal.Decimal
	Category         *string
	OwnerID          *string
	OwnerDisplayName *string
}

func (p Predicate) matches(e Expense) bool {
	switch {
	case p.ID != nil && e.ID != *p.ID:
		return false
	case p.OccurredOn != nil && !e.OccurredOn.Equal(p.OccurredOn.Time):
		return false
	case p.ItemName != nil && e.ItemName != *p.ItemName:
		return false
	case p.Amount != nil && !e.Amount.Equal(*p.Amount):
		return false
	case p.Category != nil && e.Category != *p.Category:
		return false
	case p.OwnerID != nil && e.OwnerID != *p.OwnerID:
		return false
	case p.OwnerDisplayName != nil && e.OwnerDisplayName != *p.OwnerDisplayName:
		return false
	}
	return true
}

// FilterByPredicate returns the records matching every field set in p.
func FilterByPredicate(records []Expense, p Predicate) []Expense {
	out := make([]Expense, 0, len(records))
	for _, e := range records {
		if p.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Total sums the amounts. Total(nil) is zero.
func Total(records []Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range records {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// AveragePerActiveDay divides the total by the number of distinct days that
// carry at least one record, rounded to two decimals.
func AveragePerActiveDay(records []Expense) decimal.Decimal {
	if len(records) == 0 {
		return decimal.Zero
	}
	days := make(map[string]struct{}, len(records))
	for _, e := range records {
		days[e.OccurredOn.String()] = struct{}{}
	}
	n := len(days)
	if n < 1 {
		n = 1
	}
	return Total(records).DivRound(decimal.NewFromInt(int64(n)), 2)
}

// WindowTotal is the aggregate of one window.
type WindowTotal struct {
	Window WindowKind      `json:"window"`
	From   Date            `json:"from"`
	To     Date            `json:"to"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

// Dashboard is the set of figures shown on the landing page.
type Dashboard struct {
	Reference           time.Time       `json:"reference"`
	Windows             []WindowTotal   `json:"windows"`
	AllTimeTotal        decimal.Decimal `json:"allTimeTotal"`
	AllTimeCount        int             `json:"allTimeCount"`
	AveragePerActiveDay decimal.Decimal `json:"averagePerActiveDay"`
}

// Window returns the figures of one window, or a zero value.
func (d Dashboard) Window(w WindowKind) WindowTotal {
	for _, wt := range d.Windows {
		if wt.Window == w {
			return wt
		}
	}
	return WindowTotal{Window: w}
}

// Summarize evaluates every window against a single frozen reference instant.
func Summarize(records []Expense, ref time.Time) Dashboard {
	d := Dashboard{
		Reference:           ref,
		Windows:             make([]WindowTotal, 0, len(Windows)),
		AllTimeTotal:        Total(records),
		AllTimeCount:        len(records),
		AveragePerActiveDay: AveragePerActiveDay(records),
	}
	for _, w := range Windows {
		in := FilterByWindow(records, w, ref)
		from, to := w.Bounds(ref)
		d.Windows = append(d.Windows, WindowTotal{
			Window: w,
			From:   from,
			To:     to,
			Total:  Total(in),
			Count:  len(in),
		})
	}
	return d
}

// Search keeps records whose item name, owner display name or category
// contains term, ignoring case. An empty term keeps everything.
func Search(records []Expense, term string) []Expense {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return append([]Expense(nil), records...)
	}
	out := make([]Expense, 0, len(records))
	for _, e := range records {
		if strings.Contains(strings.ToLower(e.ItemName), term) ||
			strings.Contains(strings.ToLower(e.OwnerDisplayName), term) ||
			strings.Contains(strings.ToLower(e.Category), term) {
			out = append(out, e)
		}
	}
	return out
}

// SortField names a sortable expense column.
type SortField string

const (
	SortOccurredOn       SortField = "occurredOn"
	SortAmount           SortField = "amount"
	SortItemName         SortField = "itemName"
	SortCategory         SortField = "category"
	SortOwnerDisplayName SortField = "ownerDisplayName"
	SortCreatedAt        SortField = "createdAt"
)

// ParseSort validates a sort field and direction. Empty values default to
// occurredOn descending.
func ParseSort(field, dir string) (SortField, bool, error) {
	f := SortField(strings.TrimSpace(field))
	switch f {
	case "":
		f = SortOccurredOn
	case SortOccurredOn, SortAmount, SortItemName, SortCategory, SortOwnerDisplayName, SortCreatedAt:
	default:
		return "", false, NewValidationError("sort", "unknown sort field "+field)
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "desc":
		return f, true, nil
	case "asc":
		return f, false, nil
	default:
		return "", false, NewValidationError("dir", "direction must be asc or desc")
	}
}

// SortBy returns a sorted copy. Ties keep their original relative order.
func SortBy(records []Expense, field SortField, desc bool) []Expense {
	out := append([]Expense(nil), records...)
	compare := func(a, b Expense) int {
		switch field {
		case SortAmount:
			return a.Amount.Cmp(b.Amount)
		case SortItemName:
			return strings.Compare(strings.ToLower(a.ItemName), strings.ToLower(b.ItemName))
		case SortCategory:
			return strings.Compare(strings.ToLower(a.Category), strings.ToLower(b.Category))
		case SortOwnerDisplayName:
			return strings.Compare(strings.ToLower(a.OwnerDisplayName), strings.ToLower(b.OwnerDisplayName))
		case SortCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return a.OccurredOn.Compare(b.OccurredOn.Time)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}
