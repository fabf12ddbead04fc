package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spendsync/internal/core"
	"spendsync/internal/ledger"
	"spendsync/internal/storage"
)

const defaultPullBatchSize = 100

// RetryPublisher announces transactions whose remote write failed so an
// out-of-process worker can retry them.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, transactionID string) error
}

// SyncResult is the outcome of a create, update or retry. A remote failure
// is reported in RemoteErr; the local write has already happened.
type SyncResult struct {
	Transaction core.Transaction
	RemoteErr   *core.RemoteError
}

// Synced reports whether the remote write succeeded.
func (r SyncResult) Synced() bool { return r.RemoteErr == nil }

// DeleteResult is the outcome of a delete. Remote deletions are not retried.
type DeleteResult struct {
	ID        string
	RemoteErr *core.RemoteError
}

// PullResult counts what a pull applied locally and what it dropped.
type PullResult struct {
	Applied int
	Dropped int
}

// Reconciler keeps the local store and the remote ledger in step. The local
// store is always written first and is never rolled back.
type Reconciler struct {
	store     storage.TransactionStore
	remote    ledger.Ledger
	publisher RetryPublisher

	now           func() time.Time
	pullBatchSize int
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(store storage.TransactionStore, remote ledger.Ledger, publisher RetryPublisher) *Reconciler {
	return &Reconciler{
		store:         store,
		remote:        remote,
		publisher:     publisher,
		now:           time.Now,
		pullBatchSize: defaultPullBatchSize,
	}
}

// Create validates t, stores it as PENDING and pushes it to the ledger.
// The returned error is non-nil only for validation or local store failures.
func (r *Reconciler) Create(ctx context.Context, t core.Transaction) (SyncResult, error) {
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return SyncResult{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.SyncStatus = core.Pending

	if err := r.store.Upsert(ctx, t); err != nil {
		return SyncResult{}, fmt.Errorf("save transaction locally: %w", err)
	}

	slog.InfoContext(ctx, "Transaction stored locally",
		"id", t.ID,
		"owner_id", t.OwnerID,
		"type", t.Type,
		"amount", t.Amount.String())

	res, err := r.push(ctx, "set", t, r.remote.Set)
	if err == nil && res.RemoteErr != nil {
		r.announceRetry(ctx, t.ID)
	}
	return res, err
}

// Update overwrites an existing local transaction and updates the remote
// document. The stored sync status is kept until the remote call settles.
func (r *Reconciler) Update(ctx context.Context, t core.Transaction) (SyncResult, error) {
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return SyncResult{}, err
	}

	existing, err := r.store.GetByID(ctx, t.ID)
	if err != nil {
		return SyncResult{}, err
	}
	if existing.OwnerID != t.OwnerID {
		return SyncResult{}, &core.ValidationError{Field: "ownerId", Err: core.ErrOwnerChanged}
	}
	t.SyncStatus = existing.SyncStatus

	if err := r.store.Upsert(ctx, t); err != nil {
		return SyncResult{}, fmt.Errorf("save transaction locally: %w", err)
	}

	res, err := r.push(ctx, "update", t, r.remote.Update)
	if err == nil && res.RemoteErr != nil {
		r.announceRetry(ctx, t.ID)
	}
	return res, err
}

// Delete removes the transaction locally, then remotely.
func (r *Reconciler) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if err := r.store.Delete(ctx, id); err != nil {
		return DeleteResult{}, fmt.Errorf("delete transaction locally: %w", err)
	}

	res := DeleteResult{ID: id}
	if err := r.remote.Delete(ctx, id); err != nil {
		res.RemoteErr = asRemoteError("delete", err)
		slog.WarnContext(ctx, "Remote delete failed",
			"id", id,
			"error", res.RemoteErr.Cause)
		return res, nil
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return res, nil
}

// PullAll copies every remote document of the owner into the local store as
// SYNCED. Malformed documents are skipped and counted. Local records missing
// remotely are left alone. Batches applied before a cancellation stay applied.
func (r *Reconciler) PullAll(ctx context.Context, ownerID string) (PullResult, error) {
	var res PullResult
	batch := make([]core.Transaction, 0, r.pullBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.store.UpsertMany(ctx, batch); err != nil {
			return fmt.Errorf("apply pulled batch: %w", err)
		}
		res.Applied += len(batch)
		batch = batch[:0]
		return nil
	}

	err := r.remote.Query(ctx, ledger.FieldOwnerID, ownerID, func(id string, doc ledger.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := ledger.FromDocument(id, doc)
		if err != nil {
			res.Dropped++
			slog.WarnContext(ctx, "Dropping malformed remote transaction",
				"id", id,
				"owner_id", ownerID,
				"error", err)
			return nil
		}
		batch = append(batch, t)
		if len(batch) >= r.pullBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := flush(); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "Pulled remote transactions",
		"owner_id", ownerID,
		"applied", res.Applied,
		"dropped", res.Dropped)

	return res, nil
}

// Unsynced returns every FAILED or PENDING transaction.
func (r *Reconciler) Unsynced(ctx context.Context) ([]core.Transaction, error) {
	return r.store.FindBySyncStatus(ctx, core.Failed, core.Pending)
}

// Retry pushes the stored transaction to the ledger again with a full Set.
// It does not announce a further retry on failure.
func (r *Reconciler) Retry(ctx context.Context, id string) (SyncResult, error) {
	t, err := r.store.GetByID(ctx, id)
	if err != nil {
		return SyncResult{}, err
	}
	if t.SyncStatus == core.Synced {
		return SyncResult{Transaction: t}, nil
	}
	return r.push(ctx, "set", t, r.remote.Set)
}

// push writes t remotely and records the outcome in the local store.
func (r *Reconciler) push(ctx context.Context, op string, t core.Transaction,
	write func(context.Context, string, ledger.Document) error) (SyncResult, error) {

	status := core.Synced
	var remoteErr *core.RemoteError
	if err := write(ctx, t.ID, ledger.ToDocument(t, r.now())); err != nil {
		status = core.Failed
		remoteErr = asRemoteError(op, err)
	}

	// The outcome must be recorded even if the caller gave up meanwhile.
	if err := r.store.SetSyncStatus(context.WithoutCancel(ctx), t.ID, status); err != nil {
		return SyncResult{}, fmt.Errorf("record sync status %s for %s: %w", status, t.ID, err)
	}
	t.SyncStatus = status

	if remoteErr != nil {
		slog.WarnContext(ctx, "Remote write failed, transaction marked failed",
			"id", t.ID,
			"op", op,
			"error", remoteErr.Cause)
	} else {
		slog.InfoContext(ctx, "Transaction synced", "id", t.ID, "op", op)
	}

	return SyncResult{Transaction: t, RemoteErr: remoteErr}, nil
}

func (r *Reconciler) announceRetry(ctx context.Context, id string) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishRetry(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to publish retry message", "id", id, "error", err)
	}
}

func asRemoteError(op string, err error) *core.RemoteError {
	var re *core.RemoteError
	if errors.As(err, &re) {
		return re
	}
	return core.NewRemoteError(op, err)
}
