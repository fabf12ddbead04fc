package core

import "github.com/shopspring/decimal"

// MonthlyData is the income/expense total of one calendar month.
type MonthlyData struct {
	Month   string          `json:"month"`
	Year    int             `json:"year"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// FinancialSummary is derived from a transaction set and never persisted.
type FinancialSummary struct {
	TotalIncome       decimal.Decimal              `json:"totalIncome"`
	TotalExpenses     decimal.Decimal              `json:"totalExpenses"`
	Balance           decimal.Decimal              `json:"balance"`
	SavingsRate       float64                      `json:"savingsRate"`
	TopCategory       *Category                    `json:"topCategory,omitempty"`
	CategoryBreakdown map[Category]decimal.Decimal `json:"categoryBreakdown"`
	MonthlyTrend      []MonthlyData                `json:"monthlyTrend"`
	Period            string                       `json:"period"`
}
