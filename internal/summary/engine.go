// Package summary derives financial summaries from transaction snapshots.
//
// Everything here is a pure function of its input and a reference instant;
// the Engine only adds the clock and the live subscription.
package summary

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

// TrendMonths is the number of points in a monthly trend.
const TrendMonths = 6

var hundred = decimal.NewFromInt(100)

// MonthWindow returns the first and last instant of the calendar month
// monthsAgo months before ref, in ref's location. Each window is computed
// from ref directly so repeated calls never drift.
func MonthWindow(ref time.Time, monthsAgo int) (start, end time.Time) {
	start = time.Date(ref.Year(), ref.Month()-time.Month(monthsAgo), 1, 0, 0, 0, 0, ref.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// Summarize computes the current-month summary at now. The trend covers the
// six months ending with the current one. txs is not modified.
func Summarize(txs []core.Transaction, now time.Time) core.FinancialSummary {
	start, end := MonthWindow(now, 0)

	income, expenses := decimal.Zero, decimal.Zero
	breakdown := make(map[core.Category]decimal.Decimal)

	for _, t := range txs {
		if !within(t.Date, start, end) {
			continue
		}
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expenses = expenses.Add(t.Amount)
			breakdown[t.Category] = breakdown[t.Category].Add(t.Amount)
		}
	}

	balance := income.Sub(expenses)

	return core.FinancialSummary{
		TotalIncome:       income,
		TotalExpenses:     expenses,
		Balance:           balance,
		SavingsRate:       SavingsRate(income, balance),
		TopCategory:       TopCategory(breakdown),
		CategoryBreakdown: breakdown,
		MonthlyTrend:      MonthlyTrend(txs, now),
		Period:            start.Format("January 2006"),
	}
}

// SavingsRate is balance as a percentage of income, or 0 without income.
func SavingsRate(income, balance decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	return balance.Div(income).Mul(hundred).InexactFloat64()
}

// TopCategory returns the category with the largest total, or nil for an
// empty breakdown. Ties go to the category declared first.
func TopCategory(breakdown map[core.Category]decimal.Decimal) *core.Category {
	var (
		top  *core.Category
		best decimal.Decimal
	)
	for _, c := range core.Categories {
		v, ok := breakdown[c]
		if !ok {
			continue
		}
		if top == nil || v.GreaterThan(best) {
			top, best = &c, v
		}
	}
	return top
}

// MonthlyTrend returns income and expense totals for the six calendar months
// ending with now's month, oldest first.
func MonthlyTrend(txs []core.Transaction, now time.Time) []core.MonthlyData {
	out := make([]core.MonthlyData, 0, TrendMonths)
	for ago := TrendMonths - 1; ago >= 0; ago-- {
		start, end := MonthWindow(now, ago)
		point := core.MonthlyData{
			Month:   start.Format("Jan"),
			Year:    start.Year(),
			Income:  decimal.Zero,
			Expense: decimal.Zero,
		}
		for _, t := range txs {
			if !within(t.Date, start, end) {
				continue
			}
			switch t.Type {
			case core.Income:
				point.Income = point.Income.Add(t.Amount)
			case core.Expense:
				point.Expense = point.Expense.Add(t.Amount)
			}
		}
		out = append(out, point)
	}
	return out
}

// Source is the part of the transaction store the engine reads.
type Source interface {
	ObserveByDateRange(ctx context.Context, ownerID string, start, end time.Time) <-chan []core.Transaction
	ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)
}

// Engine recomputes summaries against a clock in a fixed location.
type Engine struct {
	source Source
	loc    *time.Location
	now    func() time.Time
}

// NewEngine creates an engine. A nil loc means time.Local.
func NewEngine(source Source, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{source: source, loc: loc, now: time.Now}
}

func (e *Engine) clock() time.Time {
	return e.now().In(e.loc)
}

// Summary computes the owner's summary from a one-shot read.
func (e *Engine) Summary(ctx context.Context, ownerID string) (core.FinancialSummary, error) {
	txs, err := e.source.ListByOwner(ctx, ownerID)
	if err != nil {
		return core.FinancialSummary{}, err
	}
	return Summarize(txs, e.clock()), nil
}

// Observe emits a fresh summary for every snapshot of the owner's last six
// months. The window is fixed when Observe is called. The channel closes when
// ctx is done.
func (e *Engine) Observe(ctx context.Context, ownerID string) <-chan core.FinancialSummary {
	now := e.clock()
	start, _ := MonthWindow(now, TrendMonths-1)
	_, end := MonthWindow(now, 0)

	snapshots := e.source.ObserveByDateRange(ctx, ownerID, start, end)
	out := make(chan core.FinancialSummary)

	go func() {
		defer close(out)
		for snap := range snapshots {
			s := Summarize(snap, e.clock())
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
		slog.DebugContext(ctx, "Summary subscription closed", "owner_id", ownerID)
	}()

	return out
}
