package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spendsync/internal/core"
	"spendsync/internal/ledger"
	"spendsync/internal/storage"
)

// BudgetResult is the outcome of saving or retrying a budget.
type BudgetResult struct {
	Budget    core.Budget
	RemoteErr *core.RemoteError
}

func (r BudgetResult) Synced() bool { return r.RemoteErr == nil }

// BudgetService stores budgets locally and mirrors them to their own ledger
// collection, with the same local-first rules as transactions.
type BudgetService struct {
	store  storage.BudgetStore
	remote ledger.Ledger
	now    func() time.Time
}

func NewBudgetService(store storage.BudgetStore, remote ledger.Ledger) *BudgetService {
	return &BudgetService{store: store, remote: remote, now: time.Now}
}

// Save creates or replaces a budget. An existing budget keeps its owner.
func (s *BudgetService) Save(ctx context.Context, b core.Budget) (BudgetResult, error) {
	b = b.Normalize()
	if err := b.Validate(); err != nil {
		return BudgetResult{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	} else {
		existing, err := s.store.GetBudget(ctx, b.ID)
		switch {
		case err == nil && existing.OwnerID != b.OwnerID:
			return BudgetResult{}, &core.ValidationError{Field: "ownerId", Err: core.ErrOwnerChanged}
		case err != nil && !core.IsNotFound(err):
			return BudgetResult{}, err
		}
	}
	b.SyncStatus = core.Pending

	if err := s.store.UpsertBudget(ctx, b); err != nil {
		return BudgetResult{}, fmt.Errorf("save budget locally: %w", err)
	}
	slog.InfoContext(ctx, "Budget stored locally",
		"id", b.ID,
		"owner_id", b.OwnerID,
		"category", b.Label(),
		"amount", b.Amount.String())

	return s.push(ctx, b)
}

// Delete removes the budget locally, then remotely. Remote deletions are not
// retried.
func (s *BudgetService) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if err := s.store.DeleteBudget(ctx, id); err != nil {
		return DeleteResult{}, fmt.Errorf("delete budget locally: %w", err)
	}
	res := DeleteResult{ID: id}
	if err := s.remote.Delete(ctx, id); err != nil {
		res.RemoteErr = asRemoteError("delete", err)
		slog.WarnContext(ctx, "Remote budget delete failed", "id", id, "error", res.RemoteErr.Cause)
	}
	return res, nil
}

func (s *BudgetService) List(ctx context.Context, ownerID string) ([]core.Budget, error) {
	return s.store.ListBudgets(ctx, ownerID)
}

// Pull copies the owner's remote budgets into the local store as SYNCED.
// Malformed documents are skipped and counted.
func (s *BudgetService) Pull(ctx context.Context, ownerID string) (PullResult, error) {
	var (
		res     PullResult
		budgets []core.Budget
	)
	err := s.remote.Query(ctx, ledger.FieldOwnerID, ownerID, func(id string, doc ledger.Document) error {
		b, err := ledger.BudgetFromDocument(id, doc)
		if err != nil {
			res.Dropped++
			slog.WarnContext(ctx, "Dropping malformed remote budget", "id", id, "owner_id", ownerID, "error", err)
			return nil
		}
		budgets = append(budgets, b)
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := s.store.UpsertBudgets(ctx, budgets); err != nil {
		return res, fmt.Errorf("apply pulled budgets: %w", err)
	}
	res.Applied = len(budgets)

	slog.InfoContext(ctx, "Pulled remote budgets",
		"owner_id", ownerID,
		"applied", res.Applied,
		"dropped", res.Dropped)
	return res, nil
}

// RetryUnsynced pushes every PENDING or FAILED budget again and returns how
// many are synced now and how many still fail.
func (s *BudgetService) RetryUnsynced(ctx context.Context) (synced, failed int, err error) {
	pending, err := s.store.FindBudgetsBySyncStatus(ctx, core.Failed, core.Pending)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range pending {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		res, err := s.push(ctx, b)
		if err != nil {
			return synced, failed, err
		}
		if res.Synced() {
			synced++
		} else {
			failed++
		}
	}
	return synced, failed, nil
}

func (s *BudgetService) push(ctx context.Context, b core.Budget) (BudgetResult, error) {
	status := core.Synced
	var remoteErr *core.RemoteError
	if err := s.remote.Set(ctx, b.ID, ledger.BudgetToDocument(b, s.now())); err != nil {
		status = core.Failed
		remoteErr = asRemoteError("set", err)
	}

	if err := s.store.SetBudgetSyncStatus(context.WithoutCancel(ctx), b.ID, status); err != nil {
		return BudgetResult{}, fmt.Errorf("record sync status %s for budget %s: %w", status, b.ID, err)
	}
	b.SyncStatus = status

	if remoteErr != nil {
		slog.WarnContext(ctx, "Remote budget write failed, budget marked failed", "id", b.ID, "error", remoteErr.Cause)
	} else {
		slog.InfoContext(ctx, "Budget synced", "id", b.ID)
	}
	return BudgetResult{Budget: b, RemoteErr: remoteErr}, nil
}
