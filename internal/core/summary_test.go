package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sample() []Expense {
	return []Expense{
		{ID: "1", OccurredOn: NewDate(2024, 1, 10), ItemName: "Pens", Amount: decimal.NewFromInt(50), Category: "Year 1", OwnerID: "u1", OwnerDisplayName: "Ann"},
		{ID: "2", OccurredOn: NewDate(2024, 1, 10), ItemName: "Paper", Amount: decimal.RequireFromString("20.50"), Category: "Year 2", OwnerID: "u2", OwnerDisplayName: "Bob"},
		{ID: "3", OccurredOn: NewDate(2024, 1, 12), ItemName: "Glue", Amount: decimal.NewFromInt(9), Category: "year 2", OwnerID: "u1", OwnerDisplayName: "Ann"},
		{ID: "4", OccurredOn: NewDate(2024, 1, 13), ItemName: "Books", Amount: decimal.NewFromInt(100), Category: "Year 2", OwnerID: "u1", OwnerDisplayName: "Ann"},
	}
}

func strPtr(s string) *string { return &s }

func TestTotalEmpty(t *testing.T) {
	if !Total(nil).IsZero() {
		t.Fatalf("Total(nil) should be zero")
	}
	if !AveragePerActiveDay(nil).IsZero() {
		t.Fatalf("AveragePerActiveDay(nil) should be zero")
	}
}

func TestFilterByPredicate(t *testing.T) {
	got := FilterByPredicate(sample(), Predicate{Category: strPtr("Year 2")})
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "4" {
		t.Fatalf("category filter must be exact and case-sensitive, got %+v", got)
	}

	got = FilterByPredicate(sample(), Predicate{Category: strPtr("Year 2"), OwnerID: strPtr("u1")})
	if len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("conjunctive filter failed, got %+v", got)
	}

	day := NewDate(2024, 1, 10)
	got = FilterByPredicate(sample(), Predicate{OccurredOn: &day})
	if len(got) != 2 {
		t.Fatalf("date filter failed, got %+v", got)
	}

	if got := FilterByPredicate(sample(), Predicate{}); len(got) != 4 {
		t.Fatalf("empty predicate must keep everything, got %d", len(got))
	}

	amt := decimal.RequireFromString("20.5")
	if got := FilterByPredicate(sample(), Predicate{Amount: &amt}); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("amount filter should compare numerically, got %+v", got)
	}
}

func TestAveragePerActiveDay(t *testing.T) {
	// 179.50 over three distinct days.
	got := AveragePerActiveDay(sample())
	if want := decimal.RequireFromString("59.83"); !got.Equal(want) {
		t.Fatalf("average = %s, want %s", got, want)
	}
	one := sample()[:1]
	if got := AveragePerActiveDay(one); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("single record average = %s", got)
	}
}

func TestSummarizeUsesOneReference(t *testing.T) {
	ref := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)
	d := Summarize(sample(), ref)

	if !d.Window(WindowToday).Total.Equal(decimal.NewFromInt(100)) || d.Window(WindowToday).Count != 1 {
		t.Fatalf("unexpected today: %+v", d.Window(WindowToday))
	}
	if !d.Window(WindowLast7Days).Total.Equal(decimal.RequireFromString("179.5")) {
		t.Fatalf("unexpected last7: %+v", d.Window(WindowLast7Days))
	}
	if d.AllTimeCount != 4 || !d.AllTimeTotal.Equal(decimal.RequireFromString("179.5")) {
		t.Fatalf("unexpected all-time figures: %+v", d)
	}
	for _, w := range d.Windows {
		if !w.To.Equal(DateOf(ref).Time) {
			t.Fatalf("window %s evaluated against a different day: %s", w.Window, w.To)
		}
	}
}

func TestSearch(t *testing.T) {
	if got := Search(sample(), "BOB"); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("owner search failed: %+v", got)
	}
	if got := Search(sample(), "year 2"); len(got) != 3 {
		t.Fatalf("category search should ignore case, got %d", len(got))
	}
	if got := Search(sample(), " "); len(got) != 4 {
		t.Fatalf("blank search keeps everything, got %d", len(got))
	}
}

func TestSortBy(t *testing.T) {
	byAmount := SortBy(sample(), SortAmount, false)
	want := []string{"3", "2", "1", "4"}
	for i, id := range want {
		if byAmount[i].ID != id {
			t.Fatalf("asc amount order = %v", ids(byAmount))
		}
	}

	byDate := SortBy(sample(), SortOccurredOn, true)
	if byDate[0].ID != "4" || byDate[3].ID != "2" {
		t.Fatalf("desc date order = %v", ids(byDate))
	}
	// Stable: ids 1 and 2 share a day and keep insertion order.
	if byDate[2].ID != "1" {
		t.Fatalf("sort is not stable: %v", ids(byDate))
	}
}

func TestParseSort(t *testing.T) {
	f, desc, err := ParseSort("", "")
	if err != nil || f != SortOccurredOn || !desc {
		t.Fatalf("unexpected defaults %q %v %v", f, desc, err)
	}
	if _, _, err := ParseSort("userId", "asc"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if _, _, err := ParseSort("amount", "up"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func ids(in []Expense) []string {
	out := make([]string, len(in))
	for i, e := range in {
		out[i] = e.ID
	}
	return out
}
