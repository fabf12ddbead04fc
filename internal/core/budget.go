package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetPeriod is the length of the window a budget limits.
type BudgetPeriod string

const (
	BudgetWeekly  BudgetPeriod = "WEEKLY"
	BudgetMonthly BudgetPeriod = "MONTHLY"
	BudgetYearly  BudgetPeriod = "YEARLY"
)

// DefaultAlertThreshold is the share of a budget that raises an alert.
const DefaultAlertThreshold = 0.8

var ErrInvalidThreshold = errors.New("alert threshold must be above 0 and at most 1")

// Budget caps expenses of one category, or of every category when Category
// is empty, over a repeating period starting at StartDate.
type Budget struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"ownerId"`
	Category       Category        `json:"category,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Period         BudgetPeriod    `json:"period"`
	StartDate      time.Time       `json:"startDate"`
	AlertThreshold float64         `json:"alertThreshold"`
	SyncStatus     SyncStatus      `json:"syncStatus"`
}

// BudgetStatus is a budget evaluated against the current period.
type BudgetStatus struct {
	Budget      Budget          `json:"budget"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	// UsedRatio is Spent/Amount; above 1 when overspent.
	UsedRatio float64 `json:"usedRatio"`
	Alert     bool    `json:"alert"`
	Exceeded  bool    `json:"exceeded"`
}

func ParseBudgetPeriod(s string) (BudgetPeriod, bool) {
	switch p := BudgetPeriod(strings.ToUpper(strings.TrimSpace(s))); p {
	case BudgetWeekly, BudgetMonthly, BudgetYearly:
		return p, true
	}
	return "", false
}

// BudgetPeriodOrDefault falls back to MONTHLY.
func BudgetPeriodOrDefault(s string) BudgetPeriod {
	if p, ok := ParseBudgetPeriod(s); ok {
		return p
	}
	return BudgetMonthly
}

// IsOverall reports whether the budget covers every category.
func (b Budget) IsOverall() bool {
	return b.Category == ""
}

// Label is the category name, or "Overall".
func (b Budget) Label() string {
	if b.IsOverall() {
		return "Overall"
	}
	return b.Category.DisplayName()
}

// Validate checks the user-supplied parts of a budget.
func (b Budget) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return &ValidationError{Field: "ownerId", Err: ErrEmptyOwner}
	}
	if !b.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if b.AlertThreshold <= 0 || b.AlertThreshold > 1 {
		return &ValidationError{Field: "alertThreshold", Err: ErrInvalidThreshold}
	}
	return nil
}

// Normalize fills defaults: MONTHLY period, the default threshold when
// unset, OTHER for unknown categories and a millisecond start date.
func (b Budget) Normalize() Budget {
	if b.Category != "" {
		b.Category = CategoryOrDefault(string(b.Category))
	}
	b.Period = BudgetPeriodOrDefault(string(b.Period))
	if b.AlertThreshold == 0 {
		b.AlertThreshold = DefaultAlertThreshold
	}
	if b.StartDate.IsZero() {
		b.StartDate = time.Now()
	}
	b.StartDate = time.UnixMilli(b.StartDate.UnixMilli())
	return b
}

// Covers reports whether t counts against the budget.
func (b Budget) Covers(t Transaction) bool {
	if t.Type != Expense || t.OwnerID != b.OwnerID {
		return false
	}
	return b.IsOverall() || t.Category == b.Category
}
