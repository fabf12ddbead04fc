package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendsync/internal/amqp"
	"spendsync/internal/core"
	"spendsync/internal/services"
)

// Retrier is the reconciliation surface the worker drives.
type Retrier interface {
	Unsynced(ctx context.Context) ([]core.Transaction, error)
	Retry(ctx context.Context, id string) (services.SyncResult, error)
}

// RecurringRunner materializes due recurring occurrences.
type RecurringRunner interface {
	ProcessAll(ctx context.Context, now time.Time) (int, error)
}

// BudgetRetrier re-pushes budgets whose ledger write failed.
type BudgetRetrier interface {
	RetryUnsynced(ctx context.Context) (synced, failed int, err error)
}

// SyncWorker re-pushes transactions announced on the retry queue, retries
// unsynced budgets and generates recurring occurrences on a timer.
type SyncWorker struct {
	retrier   Retrier
	recurring RecurringRunner
	budgets   BudgetRetrier
	batchSize int
	now       func() time.Time
}

func NewSyncWorker(retrier Retrier, recurring RecurringRunner, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		retrier:   retrier,
		recurring: recurring,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// WithBudgets makes the worker retry unsynced budgets too.
func (w *SyncWorker) WithBudgets(b BudgetRetrier) *SyncWorker {
	w.budgets = b
	return w
}

// HandleRetryMessage processes a single retry message from AMQP.
// A transaction that no longer exists locally is acknowledged. A remote
// failure is also acknowledged: the transaction stays FAILED and the periodic
// pass picks it up, so the queue does not spin on an unreachable ledger.
// Only local store errors requeue the message.
func (w *SyncWorker) HandleRetryMessage(ctx context.Context, msg *amqp.RetryMessage) error {
	slog.InfoContext(ctx, "Processing retry message",
		"id", msg.TransactionID,
		"queued_at", msg.Timestamp)

	res, err := w.retrier.Retry(ctx, msg.TransactionID)
	if err != nil {
		if core.IsNotFound(err) {
			slog.WarnContext(ctx, "Transaction not found locally, dropping retry", "id", msg.TransactionID)
			return nil
		}
		return fmt.Errorf("retry transaction %s: %w", msg.TransactionID, err)
	}

	if !res.Synced() {
		slog.WarnContext(ctx, "Retry did not reach the ledger",
			"id", msg.TransactionID,
			"error", res.RemoteErr)
		return nil
	}

	slog.InfoContext(ctx, "Successfully processed retry message", "id", msg.TransactionID)
	return nil
}

// StartupSyncCheck retries transactions whose retry messages may have been
// lost while the worker was down, then any unsynced budgets.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	slog.InfoContext(ctx, "Starting startup sync check")
	if err := w.RetryBudgets(ctx); err != nil {
		slog.ErrorContext(ctx, "Budget retry failed during startup", "error", err)
	}

	pending, err := w.retrier.Unsynced(ctx)
	if err != nil {
		return fmt.Errorf("list unsynced transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No unsynced transactions found during startup check")
		return nil
	}

	limit := w.batchSize * 5
	if len(pending) > limit {
		slog.WarnContext(ctx, "Too many unsynced transactions, leaving the rest to the periodic pass",
			"count", len(pending),
			"limit", limit)
		pending = pending[:limit]
	}

	synced, failed := 0, 0
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := w.retrier.Retry(ctx, t.ID)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "Failed to retry transaction during startup", "id", t.ID, "error", err)
			failed++
		case !res.Synced():
			failed++
		default:
			synced++
		}
	}

	slog.InfoContext(ctx, "Startup sync check completed",
		"checked", len(pending),
		"synced", synced,
		"failed", failed)
	return nil
}

// RetryBudgets pushes every unsynced budget once.
func (w *SyncWorker) RetryBudgets(ctx context.Context) error {
	if w.budgets == nil {
		return nil
	}
	synced, failed, err := w.budgets.RetryUnsynced(ctx)
	if err != nil {
		return fmt.Errorf("retry budgets: %w", err)
	}
	if synced+failed > 0 {
		slog.InfoContext(ctx, "Budget retry pass completed", "synced", synced, "failed", failed)
	}
	return nil
}

// RunBudgetRetries calls RetryBudgets on every tick of interval until ctx is
// done.
func (w *SyncWorker) RunBudgetRetries(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RetryBudgets(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic budget retry failed", "error", err)
			}
		}
	}
}

// ProcessRecurring runs one recurring generation pass.
func (w *SyncWorker) ProcessRecurring(ctx context.Context) (int, error) {
	if w.recurring == nil {
		return 0, nil
	}
	count, err := w.recurring.ProcessAll(ctx, w.now())
	if err != nil {
		return count, fmt.Errorf("process recurring: %w", err)
	}
	return count, nil
}

// RunRecurring processes recurring templates once immediately and then on
// every tick of interval until ctx is done.
func (w *SyncWorker) RunRecurring(ctx context.Context, interval time.Duration) {
	slog.InfoContext(ctx, "Running initial recurring processing")
	if count, err := w.ProcessRecurring(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial recurring processing failed", "error", err)
	} else {
		slog.InfoContext(ctx, "Initial recurring processing complete", "created", count)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.ProcessRecurring(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Periodic recurring processing failed", "error", err)
				continue
			}
			slog.InfoContext(ctx, "Periodic recurring processing complete",
				"created", count,
				"next_check", w.now().Add(interval).Format("15:04:05"))
		}
	}
}
