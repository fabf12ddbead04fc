// Package report renders summaries, budgets and transaction lists as
// Markdown for the terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

// Formatter formats amounts in a single currency.
type Formatter struct {
	currency string
}

// NewFormatter returns a formatter for an ISO 4217 code. Unknown codes fall
// back to EUR.
func NewFormatter(currency string) Formatter {
	if money.GetCurrency(currency) == nil {
		currency = money.EUR
	}
	return Formatter{currency: currency}
}

// Money formats d with the currency's symbol and separators.
func (f Formatter) Money(d decimal.Decimal) string {
	return money.New(core.Cents(d), f.currency).Display()
}

// Summary renders a financial summary as Markdown.
func (f Formatter) Summary(s core.FinancialSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", s.Period)
	b.WriteString("| | |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Income | %s |\n", f.Money(s.TotalIncome))
	fmt.Fprintf(&b, "| Expenses | %s |\n", f.Money(s.TotalExpenses))
	fmt.Fprintf(&b, "| Balance | %s |\n", f.Money(s.Balance))
	fmt.Fprintf(&b, "| Savings rate | %.1f%% |\n", s.SavingsRate)
	if s.TopCategory != nil {
		fmt.Fprintf(&b, "\nTop category: **%s**\n", s.TopCategory.DisplayName())
	}

	if len(s.CategoryBreakdown) > 0 {
		b.WriteString("\n## Expenses by category\n\n| Category | Amount |\n|---|---:|\n")
		cats := make([]core.Category, 0, len(s.CategoryBreakdown))
		for c := range s.CategoryBreakdown {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool {
			ai, aj := s.CategoryBreakdown[cats[i]], s.CategoryBreakdown[cats[j]]
			if !ai.Equal(aj) {
				return ai.GreaterThan(aj)
			}
			return cats[i] < cats[j]
		})
		for _, c := range cats {
			fmt.Fprintf(&b, "| %s | %s |\n", c.DisplayName(), f.Money(s.CategoryBreakdown[c]))
		}
	}

	if len(s.MonthlyTrend) > 0 {
		b.WriteString("\n## Last months\n\n| Month | Income | Expenses |\n|---|---:|---:|\n")
		for _, m := range s.MonthlyTrend {
			fmt.Fprintf(&b, "| %s %d | %s | %s |\n", m.Month, m.Year, f.Money(m.Income), f.Money(m.Expense))
		}
	}
	return b.String()
}

// Transactions renders a transaction table, or a placeholder line when txs
// is empty.
func (f Formatter) Transactions(title string, txs []core.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(txs) == 0 {
		b.WriteString("_No transactions._\n")
		return b.String()
	}

	b.WriteString("| Date | Description | Category | Amount | Sync | ID |\n|---|---|---|---:|---|---|\n")
	for _, t := range txs {
		amount := f.Money(t.Amount)
		if t.Type == core.Expense {
			amount = "-" + amount
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | `%s` |\n",
			t.Date.Format("2006-01-02"),
			escapeCell(t.Description),
			t.Category.DisplayName(),
			amount,
			strings.ToLower(string(t.SyncStatus)),
			t.ID)
	}
	return b.String()
}

// Budgets renders each budget's spending in its current period.
func (f Formatter) Budgets(statuses []core.BudgetStatus) string {
	var b strings.Builder
	b.WriteString("# Budgets\n\n")
	if len(statuses) == 0 {
		b.WriteString("_No budgets._\n")
		return b.String()
	}

	b.WriteString("| Budget | Period | Spent | Limit | Remaining | Used | Status | ID |\n|---|---|---:|---:|---:|---:|---|---|\n")
	for _, st := range statuses {
		status := "ok"
		switch {
		case st.Exceeded:
			status = "**over budget**"
		case st.Alert:
			status = "alert"
		}
		fmt.Fprintf(&b, "| %s | %s to %s | %s | %s | %s | %.0f%% | %s | `%s` |\n",
			st.Budget.Label(),
			st.PeriodStart.Format("2006-01-02"),
			st.PeriodEnd.Format("2006-01-02"),
			f.Money(st.Spent),
			f.Money(st.Budget.Amount),
			f.Money(st.Remaining),
			st.UsedRatio*100,
			status,
			st.Budget.ID)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// Render styles Markdown for a terminal of the given width. Plain output
// skips styling entirely.
func Render(md string, width int, plain bool) (string, error) {
	if plain {
		return md, nil
	}
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
