package summary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

// BudgetWindow returns the calendar period of the given length containing
// now, in now's location. Weeks start on Monday.
func BudgetWindow(period core.BudgetPeriod, now time.Time) (start, end time.Time) {
	switch period {
	case core.BudgetWeekly:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		offset := (int(day.Weekday()) + 6) % 7
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7).Add(-time.Millisecond)
	case core.BudgetYearly:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0).Add(-time.Millisecond)
	default:
		return MonthWindow(now, 0)
	}
}

// BudgetStatuses evaluates each budget against the expenses it covers in
// its current period. Spending before a budget's start date is ignored.
func BudgetStatuses(budgets []core.Budget, txs []core.Transaction, now time.Time) []core.BudgetStatus {
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		start, end := BudgetWindow(b.Period, now)
		from := start
		if b.StartDate.After(from) {
			from = b.StartDate
		}

		spent := decimal.Zero
		for _, t := range txs {
			if b.Covers(t) && within(t.Date, from, end) {
				spent = spent.Add(t.Amount)
			}
		}

		st := core.BudgetStatus{
			Budget:      b,
			PeriodStart: start,
			PeriodEnd:   end,
			Spent:       spent,
			Remaining:   b.Amount.Sub(spent),
			Exceeded:    spent.GreaterThan(b.Amount),
		}
		if b.Amount.IsPositive() {
			st.UsedRatio = spent.Div(b.Amount).InexactFloat64()
		}
		st.Alert = st.UsedRatio >= b.AlertThreshold
		out = append(out, st)
	}
	return out
}

// BudgetStatuses evaluates the owner's budgets at the engine's clock.
func (e *Engine) BudgetStatuses(ctx context.Context, ownerID string, budgets []core.Budget) ([]core.BudgetStatus, error) {
	if len(budgets) == 0 {
		return []core.BudgetStatus{}, nil
	}
	txs, err := e.source.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return BudgetStatuses(budgets, txs, e.clock()), nil
}
