package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

const (
	maxItemNameLen = 200
	maxCategoryLen = 100
)

type (
	// Role is the closed set of roles a Principal can carry.
	Role string

	// Principal is an authenticated actor. It is immutable for the lifetime of a session.
	Principal struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Role        Role   `json:"role"`
	}

	// Date is a calendar date with no time-of-day component.
	Date struct {
		time.Time
	}

	Expense struct {
		ID               string          `json:"id"`
		OccurredOn       Date            `json:"occurredOn"`
		ItemName         string          `json:"itemName"`
		Amount           decimal.Decimal `json:"amount"`
		Category         string          `json:"category"` // year level
		OwnerID          string          `json:"ownerId"`
		OwnerDisplayName string          `json:"ownerDisplayName"`
		CreatedAt        time.Time       `json:"createdAt"`
		UpdatedAt        time.Time       `json:"updatedAt"`
	}

	// Draft carries the caller-supplied fields of a new expense.
	Draft struct {
		OccurredOn Date            `json:"occurredOn"`
		ItemName   string          `json:"itemName"`
		Amount     decimal.Decimal `json:"amount"`
		Category   string          `json:"category"`
	}

	// Patch is a partial Draft. Nil fields are left unchanged.
	Patch struct {
		OccurredOn *Date            `json:"occurredOn,omitempty"`
		ItemName   *string          `json:"itemName,omitempty"`
		Amount     *decimal.Decimal `json:"amount,omitempty"`
		Category   *string          `json:"category,omitempty"`
	}
)

// ParseRole maps a claim value onto a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationError("occurredOn", "must be a date in YYYY-MM-DD format")
	}
	return Date{Time: t}, nil
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	// Records written by older clients may carry a full timestamp.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return NewValidationError("occurredOn", "date is required")
	}
	return nil
}

func validateItemName(s string) error {
	if strings.TrimSpace(s) == "" {
		return NewValidationError("itemName", "item name cannot be empty")
	}
	if len(s) > maxItemNameLen {
		return NewValidationError("itemName", fmt.Sprintf("item name too long (max %d characters)", maxItemNameLen))
	}
	return nil
}

func validateAmount(a decimal.Decimal) error {
	if a.IsNegative() {
		return NewValidationError("amount", "amount cannot be negative")
	}
	return nil
}

func validateCategory(s string) error {
	if len(s) > maxCategoryLen {
		return NewValidationError("category", fmt.Sprintf("category too long (max %d characters)", maxCategoryLen))
	}
	return nil
}

func (d Draft) Validate() error {
	if err := d.OccurredOn.Validate(); err != nil {
		return err
	}
	if err := validateItemName(d.ItemName); err != nil {
		return err
	}
	if err := validateAmount(d.Amount); err != nil {
		return err
	}
	return validateCategory(d.Category)
}

// Validate checks only the fields present in the patch.
func (p Patch) Validate() error {
	if p.OccurredOn != nil {
		if err := p.OccurredOn.Validate(); err != nil {
			return err
		}
	}
	if p.ItemName != nil {
		if err := validateItemName(*p.ItemName); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := validateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.Category != nil {
		return validateCategory(*p.Category)
	}
	return nil
}

// IsEmpty reports whether the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.OccurredOn == nil && p.ItemName == nil && p.Amount == nil && p.Category == nil
}

// Apply merges the patch into e. Identity and ownership fields are never touched.
func (p Patch) Apply(e Expense) Expense {
	if p.OccurredOn != nil {
		e.OccurredOn = *p.OccurredOn
	}
	if p.ItemName != nil {
		e.ItemName = strings.TrimSpace(*p.ItemName)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = strings.TrimSpace(*p.Category)
	}
	return e
}
