package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendsync/internal/core"

	_ "modernc.org/sqlite"
)

const transactionColumns = `id, owner_id, amount, category, type, description, date,
	receipt_url, is_recurring, recurring_period, tags, sync_status`

const upsertTransactionSQL = `
INSERT INTO transactions (` + transactionColumns + `, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	owner_id = excluded.owner_id,
	amount = excluded.amount,
	category = excluded.category,
	type = excluded.type,
	description = excluded.description,
	date = excluded.date,
	receipt_url = excluded.receipt_url,
	is_recurring = excluded.is_recurring,
	recurring_period = excluded.recurring_period,
	tags = excluded.tags,
	sync_status = excluded.sync_status,
	updated_at = excluded.updated_at`

type SQLiteRepository struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[int]chan struct{}
	nextID   int
}

var _ TransactionStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; readers queue behind it instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:       db,
		watchers: make(map[int]chan struct{}),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Upsert inserts or replaces a transaction.
func (r *SQLiteRepository) Upsert(ctx context.Context, t core.Transaction) error {
	if _, err := r.db.ExecContext(ctx, upsertTransactionSQL, upsertArgs(t)...); err != nil {
		return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"owner_id", t.OwnerID,
		"sync_status", t.SyncStatus)

	r.notify()
	return nil
}

// UpsertMany writes every transaction in a single SQL transaction.
func (r *SQLiteRepository) UpsertMany(ctx context.Context, ts []core.Transaction) error {
	if len(ts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTransactionSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ts {
		if _, err := stmt.ExecContext(ctx, upsertArgs(t)...); err != nil {
			return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert batch: %w", err)
	}

	slog.DebugContext(ctx, "Transaction batch saved to SQLite", "count", len(ts))

	r.notify()
	return nil
}

// Delete removes a transaction. Deleting a missing id is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	r.notify()
	return nil
}

// SetSyncStatus updates only the sync marker of a transaction.
func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, id string, status core.SyncStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set sync status of %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Kind: "transaction", ID: id}
	}
	r.notify()
	return nil
}

// GetByID returns a single transaction or a *core.NotFoundError.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Kind: "transaction", ID: id}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = ? ORDER BY date DESC`,
		ownerID)
}

func (r *SQLiteRepository) ListByCategory(ctx context.Context, ownerID string, category core.Category) ([]core.Transaction, error) {
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = ? AND category = ? ORDER BY date DESC`,
		ownerID, string(category))
}

// ListRecurring returns every recurring template of every owner.
func (r *SQLiteRepository) ListRecurring(ctx context.Context) ([]core.Transaction, error) {
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE is_recurring = 1 AND recurring_period != ? ORDER BY owner_id, date ASC`,
		string(core.NoRepeat))
}

func (r *SQLiteRepository) listByDateRange(ctx context.Context, ownerID string, start, end time.Time) ([]core.Transaction, error) {
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = ? AND date BETWEEN ? AND ? ORDER BY date DESC`,
		ownerID, start.UnixMilli(), end.UnixMilli())
}

// FindBySyncStatus returns every transaction, of any owner, in one of the
// given states. Oldest changes come first.
func (r *SQLiteRepository) FindBySyncStatus(ctx context.Context, statuses ...core.SyncStatus) ([]core.Transaction, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE sync_status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY updated_at ASC`,
		args...)
}

func (r *SQLiteRepository) ObserveAll(ctx context.Context, ownerID string) <-chan []core.Transaction {
	return r.observe(ctx, func(ctx context.Context) ([]core.Transaction, error) {
		return r.ListByOwner(ctx, ownerID)
	})
}

func (r *SQLiteRepository) ObserveByDateRange(ctx context.Context, ownerID string, start, end time.Time) <-chan []core.Transaction {
	return r.observe(ctx, func(ctx context.Context) ([]core.Transaction, error) {
		return r.listByDateRange(ctx, ownerID, start, end)
	})
}

// observe re-runs load after every write and forwards the full result.
// Change signals are coalesced, so a slow reader only sees the latest state.
func (r *SQLiteRepository) observe(ctx context.Context, load func(context.Context) ([]core.Transaction, error)) <-chan []core.Transaction {
	out := make(chan []core.Transaction)
	id, signal := r.subscribe()

	go func() {
		defer close(out)
		defer r.unsubscribe(id)

		for {
			snapshot, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "Failed to load transaction snapshot", "error", err)
			} else {
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (r *SQLiteRepository) subscribe() (int, chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ch := make(chan struct{}, 1)
	r.watchers[r.nextID] = ch
	return r.nextID, ch
}

func (r *SQLiteRepository) unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, id)
}

func (r *SQLiteRepository) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                                   core.Transaction
		amount, category, typ, period, tags string
		status                              string
		dateMillis                          int64
		receipt                             sql.NullString
		recurring                           bool
	)
	err := s.Scan(&t.ID, &t.OwnerID, &amount, &category, &typ, &t.Description, &dateMillis,
		&receipt, &recurring, &period, &tags, &status)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount of %s: %w", t.ID, err)
	}
	t.Category = core.CategoryOrDefault(category)
	t.Type = core.TransactionTypeOrDefault(typ)
	t.Date = time.UnixMilli(dateMillis)
	t.ReceiptURL = receipt.String
	t.Recurring = recurring
	t.RecurringPeriod = core.RecurringPeriodOrDefault(period)
	t.Tags = DecodeTags(tags)
	t.SyncStatus = core.SyncStatusOrDefault(status)
	return t, nil
}

func upsertArgs(t core.Transaction) []any {
	var receipt sql.NullString
	if t.ReceiptURL != "" {
		receipt = sql.NullString{String: t.ReceiptURL, Valid: true}
	}
	return []any{
		t.ID,
		t.OwnerID,
		t.Amount.String(),
		string(t.Category),
		string(t.Type),
		t.Description,
		t.Date.UnixMilli(),
		receipt,
		t.Recurring,
		string(t.RecurringPeriod),
		EncodeTags(t.Tags),
		string(t.SyncStatus),
		time.Now().UnixMilli(),
	}
}
