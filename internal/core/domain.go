package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Food          Category = "FOOD"
	Transport     Category = "TRANSPORT"
	Shopping      Category = "SHOPPING"
	Entertainment Category = "ENTERTAINMENT"
	Bills         Category = "BILLS"
	Health        Category = "HEALTH"
	Education     Category = "EDUCATION"
	Travel        Category = "TRAVEL"
	Salary        Category = "SALARY"
	Investment    Category = "INVESTMENT"
	Other         Category = "OTHER"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	NoRepeat RecurringPeriod = "NONE"
	Daily    RecurringPeriod = "DAILY"
	Weekly   RecurringPeriod = "WEEKLY"
	Monthly  RecurringPeriod = "MONTHLY"
	Yearly   RecurringPeriod = "YEARLY"
)

const (
	Synced  SyncStatus = "SYNCED"
	Pending SyncStatus = "PENDING"
	Failed  SyncStatus = "FAILED"
)

type (
	Category        string
	TransactionType string
	RecurringPeriod string
	SyncStatus      string

	Transaction struct {
		ID              string          `json:"id"`
		OwnerID         string          `json:"ownerId"`
		Amount          decimal.Decimal `json:"amount"`
		Category        Category        `json:"category"`
		Type            TransactionType `json:"type"`
		Description     string          `json:"description"`
		Date            time.Time       `json:"date"`
		ReceiptURL      string          `json:"receiptUrl,omitempty"`
		Recurring       bool            `json:"isRecurring"`
		RecurringPeriod RecurringPeriod `json:"recurringPeriod"`
		Tags            []string        `json:"tags"`
		SyncStatus      SyncStatus      `json:"syncStatus"`
	}
)

// Categories lists every category in declaration order. Aggregations that
// need a stable iteration order walk this slice instead of a map.
var Categories = []Category{
	Food, Transport, Shopping, Entertainment, Bills, Health,
	Education, Travel, Salary, Investment, Other,
}

var categoryLabels = map[Category]string{
	Food:          "Food & Dining",
	Transport:     "Transport",
	Shopping:      "Shopping",
	Entertainment: "Entertainment",
	Bills:         "Bills & Utilities",
	Health:        "Healthcare",
	Education:     "Education",
	Travel:        "Travel",
	Salary:        "Salary",
	Investment:    "Investment",
	Other:         "Other",
}

// DisplayName returns the human label of the category.
func (c Category) DisplayName() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[Other]
}

// ParseCategory maps a wire string to a Category. The bool reports whether
// the value was recognised.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := categoryLabels[c]
	return c, ok
}

// CategoryOrDefault is ParseCategory with the OTHER fallback.
func CategoryOrDefault(s string) Category {
	if c, ok := ParseCategory(s); ok {
		return c
	}
	return Other
}

func ParseTransactionType(s string) (TransactionType, bool) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case Income, Expense:
		return t, true
	}
	return "", false
}

// TransactionTypeOrDefault falls back to EXPENSE.
func TransactionTypeOrDefault(s string) TransactionType {
	if t, ok := ParseTransactionType(s); ok {
		return t
	}
	return Expense
}

func ParseRecurringPeriod(s string) (RecurringPeriod, bool) {
	switch p := RecurringPeriod(strings.ToUpper(strings.TrimSpace(s))); p {
	case NoRepeat, Daily, Weekly, Monthly, Yearly:
		return p, true
	}
	return "", false
}

// RecurringPeriodOrDefault falls back to NONE.
func RecurringPeriodOrDefault(s string) RecurringPeriod {
	if p, ok := ParseRecurringPeriod(s); ok {
		return p
	}
	return NoRepeat
}

func ParseSyncStatus(s string) (SyncStatus, bool) {
	switch st := SyncStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case Synced, Pending, Failed:
		return st, true
	}
	return "", false
}

// SyncStatusOrDefault falls back to PENDING so an unreadable status is
// picked up by the next reconciliation pass.
func SyncStatusOrDefault(s string) SyncStatus {
	if st, ok := ParseSyncStatus(s); ok {
		return st
	}
	return Pending
}

// Validate checks the user-supplied parts of a transaction.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return &ValidationError{Field: "ownerId", Err: ErrEmptyOwner}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if strings.TrimSpace(t.Description) == "" {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	return nil
}

// Normalize fills defaults for unset enum fields and truncates the date to
// millisecond resolution.
func (t Transaction) Normalize() Transaction {
	if _, ok := ParseCategory(string(t.Category)); !ok {
		t.Category = Other
	}
	if _, ok := ParseTransactionType(string(t.Type)); !ok {
		t.Type = Expense
	}
	if _, ok := ParseRecurringPeriod(string(t.RecurringPeriod)); !ok {
		t.RecurringPeriod = NoRepeat
	}
	if t.Date.IsZero() {
		t.Date = time.Now()
	}
	t.Date = time.UnixMilli(t.Date.UnixMilli())
	t.Description = strings.TrimSpace(t.Description)
	return t
}

// HasTag reports whether tag is attached to the transaction.
func (t Transaction) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}
