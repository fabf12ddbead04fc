package storage

import (
	"context"
	"strings"
	"time"

	"spendsync/internal/core"
)

// TransactionStore is the local source of truth for transactions.
//
// Observe* methods return live sequences: the current snapshot is sent
// immediately and a fresh full snapshot follows every write to the store.
// The channel is closed once ctx is done.
type TransactionStore interface {
	ObserveAll(ctx context.Context, ownerID string) <-chan []core.Transaction
	ObserveByDateRange(ctx context.Context, ownerID string, start, end time.Time) <-chan []core.Transaction

	GetByID(ctx context.Context, id string) (core.Transaction, error)
	ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)
	ListByCategory(ctx context.Context, ownerID string, category core.Category) ([]core.Transaction, error)
	FindBySyncStatus(ctx context.Context, statuses ...core.SyncStatus) ([]core.Transaction, error)

	Upsert(ctx context.Context, t core.Transaction) error
	UpsertMany(ctx context.Context, ts []core.Transaction) error
	Delete(ctx context.Context, id string) error
	SetSyncStatus(ctx context.Context, id string, status core.SyncStatus) error
}

// BudgetStore keeps budgets next to the transactions they limit.
type BudgetStore interface {
	GetBudget(ctx context.Context, id string) (core.Budget, error)
	ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error)
	FindBudgetsBySyncStatus(ctx context.Context, statuses ...core.SyncStatus) ([]core.Budget, error)

	UpsertBudget(ctx context.Context, b core.Budget) error
	UpsertBudgets(ctx context.Context, bs []core.Budget) error
	DeleteBudget(ctx context.Context, id string) error
	SetBudgetSyncStatus(ctx context.Context, id string, status core.SyncStatus) error
}

// EncodeTags joins tags into the single column representation.
func EncodeTags(tags []string) string {
	return strings.Join(tags, ",")
}

// DecodeTags splits the column value, dropping empty segments.
func DecodeTags(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
