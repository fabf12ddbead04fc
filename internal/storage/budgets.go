package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"
)

const budgetColumns = `id, owner_id, category, amount, period, start_date, alert_threshold, sync_status`

const upsertBudgetSQL = `
INSERT INTO budgets (` + budgetColumns + `, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	owner_id = excluded.owner_id,
	category = excluded.category,
	amount = excluded.amount,
	period = excluded.period,
	start_date = excluded.start_date,
	alert_threshold = excluded.alert_threshold,
	sync_status = excluded.sync_status,
	updated_at = excluded.updated_at`

var _ BudgetStore = (*SQLiteRepository)(nil)

// UpsertBudget inserts or replaces a budget.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	if _, err := r.db.ExecContext(ctx, upsertBudgetSQL, budgetArgs(b)...); err != nil {
		return fmt.Errorf("upsert budget %s: %w", b.ID, err)
	}
	slog.DebugContext(ctx, "Budget saved to SQLite", "id", b.ID, "owner_id", b.OwnerID)
	return nil
}

// UpsertBudgets writes every budget in a single SQL transaction.
func (r *SQLiteRepository) UpsertBudgets(ctx context.Context, bs []core.Budget) error {
	if len(bs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin budget batch: %w", err)
	}
	defer tx.Rollback()

	for _, b := range bs {
		if _, err := tx.ExecContext(ctx, upsertBudgetSQL, budgetArgs(b)...); err != nil {
			return fmt.Errorf("upsert budget %s: %w", b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit budget batch: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	return nil
}

// GetBudget returns a single budget or a *core.NotFoundError.
func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, &core.NotFoundError{Kind: "budget", ID: id}
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	return b, nil
}

// ListBudgets returns an owner's budgets, overall budgets first.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error) {
	return r.queryBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE owner_id = ? ORDER BY category, start_date`,
		ownerID)
}

// FindBudgetsBySyncStatus returns every budget, of any owner, in one of the
// given states.
func (r *SQLiteRepository) FindBudgetsBySyncStatus(ctx context.Context, statuses ...core.SyncStatus) ([]core.Budget, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}
	return r.queryBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets
		WHERE sync_status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY updated_at ASC`,
		args...)
}

func (r *SQLiteRepository) SetBudgetSyncStatus(ctx context.Context, id string, status core.SyncStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET sync_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set sync status of budget %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Kind: "budget", ID: id}
	}
	return nil
}

func (r *SQLiteRepository) queryBudgets(ctx context.Context, q string, args ...any) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

func scanBudget(s rowScanner) (core.Budget, error) {
	var (
		b                        core.Budget
		category, amount, period string
		status                   string
		startMillis              int64
	)
	err := s.Scan(&b.ID, &b.OwnerID, &category, &amount, &period, &startMillis, &b.AlertThreshold, &status)
	if err != nil {
		return core.Budget{}, err
	}

	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("decode amount of budget %s: %w", b.ID, err)
	}
	if category != "" {
		b.Category = core.CategoryOrDefault(category)
	}
	b.Period = core.BudgetPeriodOrDefault(period)
	b.StartDate = time.UnixMilli(startMillis)
	b.SyncStatus = core.SyncStatusOrDefault(status)
	return b, nil
}

func budgetArgs(b core.Budget) []any {
	return []any{
		b.ID,
		b.OwnerID,
		string(b.Category),
		b.Amount.String(),
		string(b.Period),
		b.StartDate.UnixMilli(),
		b.AlertThreshold,
		string(b.SyncStatus),
		time.Now().UnixMilli(),
	}
}
