package core

import (
	"fmt"
	"strings"
	"time"
)

// WindowKind names one of the fixed reporting windows.
type WindowKind string

const (
	WindowToday      WindowKind = "today"
	WindowLast7Days  WindowKind = "last7Days"
	WindowLast30Days WindowKind = "last30Days"
	WindowLastYear   WindowKind = "lastYear"
)

// Windows lists every window in dashboard order.
var Windows = []WindowKind{WindowToday, WindowLast7Days, WindowLast30Days, WindowLastYear}

// ParseWindow accepts the canonical names case-insensitively.
func ParseWindow(s string) (WindowKind, error) {
	for _, w := range Windows {
		if strings.EqualFold(string(w), strings.TrimSpace(s)) {
			return w, nil
		}
	}
	return "", NewValidationError("window", fmt.Sprintf("unknown window %q", s))
}

// Bounds returns the first and last calendar day covered by the window,
// both inclusive, evaluated against ref's calendar day in ref's location.
func (w WindowKind) Bounds(ref time.Time) (from, to Date) {
	to = DateOf(ref)
	switch w {
	case WindowToday:
		return to, to
	case WindowLast7Days:
		return to.AddDays(-7), to
	case WindowLast30Days:
		return to.AddDays(-30), to
	case WindowLastYear:
		return DateOf(ref.AddDate(-1, 0, 0)), to
	default:
		return Date{}, Date{}
	}
}

// Contains reports whether d falls inside the window evaluated at ref.
func (w WindowKind) Contains(d Date, ref time.Time) bool {
	from, to := w.Bounds(ref)
	if from.IsZero() {
		return false
	}
	return !d.Before(from.Time) && !d.After(to.Time)
}

// FilterByWindow keeps the records whose occurredOn falls inside the window.
// Callers that evaluate several windows should pass the same ref to each call.
func FilterByWindow(records []Expense, w WindowKind, ref time.Time) []Expense {
	out := make([]Expense, 0, len(records))
	for _, e := range records {
		if w.Contains(e.OccurredOn, ref) {
			out = append(out, e)
		}
	}
	return out
}

// FilterByMonth keeps the records of ref's calendar month and year, with
// ref read in its own location.
func FilterByMonth(records []Expense, ref time.Time) []Expense {
	year, month := ref.Year(), ref.Month()
	out := make([]Expense, 0, len(records))
	for _, e := range records {
		if e.OccurredOn.Year() == year && e.OccurredOn.Month() == month {
			out = append(out, e)
		}
	}
	return out
}
