package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendsync/internal/core"
	"spendsync/internal/ledger"
	"spendsync/internal/ledger/memory"
	"spendsync/internal/storage"
)

// flakyLedger wraps the memory ledger and fails writes while down is set.
type flakyLedger struct {
	*memory.Store
	mu   sync.Mutex
	down bool
	docs []queuedDoc
}

type queuedDoc struct {
	id  string
	doc ledger.Document
}

func newFlakyLedger() *flakyLedger {
	return &flakyLedger{Store: memory.New()}
}

func (f *flakyLedger) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyLedger) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyLedger) Set(ctx context.Context, id string, doc ledger.Document) error {
	if f.isDown() {
		return core.NewRemoteError("set", errors.New("network unreachable"))
	}
	return f.Store.Set(ctx, id, doc)
}

func (f *flakyLedger) Update(ctx context.Context, id string, doc ledger.Document) error {
	if f.isDown() {
		return errors.New("quota exceeded")
	}
	return f.Store.Update(ctx, id, doc)
}

func (f *flakyLedger) Delete(ctx context.Context, id string) error {
	if f.isDown() {
		return core.NewRemoteError("delete", errors.New("permission denied"))
	}
	return f.Store.Delete(ctx, id)
}

// rawQueryLedger serves a fixed set of raw documents to Query.
type rawQueryLedger struct {
	*flakyLedger
}

func (r rawQueryLedger) Query(ctx context.Context, _ string, _ any, fn func(string, ledger.Document) error) error {
	for _, q := range r.docs {
		if err := ctx.Err(); err != nil {
			return core.NewRemoteError("query", err)
		}
		if err := fn(q.id, q.doc); err != nil {
			return err
		}
	}
	return nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishRetry(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTx(desc string, amount string) core.Transaction {
	return core.Transaction{
		OwnerID:     "u1",
		Amount:      decimal.RequireFromString(amount),
		Category:    core.Food,
		Type:        core.Expense,
		Description: desc,
		Date:        time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateSyncsWhenRemoteIsUp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	r := NewReconciler(store, remote, nil)

	res, err := r.Create(ctx, newTx("lunch", "12.50"))
	require.NoError(t, err)
	assert.True(t, res.Synced())
	assert.NotEmpty(t, res.Transaction.ID)
	assert.Equal(t, core.Synced, res.Transaction.SyncStatus)

	stored, err := store.GetByID(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Synced, stored.SyncStatus)

	doc, err := remote.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.5", doc[ledger.FieldAmount])
	assert.Contains(t, doc, ledger.FieldLastModified)
}

func TestCreateMarksFailedWhenRemoteIsDown(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	remote.setDown(true)
	pub := &recordingPublisher{}
	r := NewReconciler(store, remote, pub)

	res, err := r.Create(ctx, newTx("taxi", "30"))
	require.NoError(t, err, "remote failures are reported in the result")
	require.NotNil(t, res.RemoteErr)
	assert.Equal(t, "network unreachable", res.RemoteErr.Cause)
	assert.Equal(t, core.Failed, res.Transaction.SyncStatus)

	failed, err := store.FindBySyncStatus(ctx, core.Failed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, res.Transaction.ID, failed[0].ID)

	pending, err := store.FindBySyncStatus(ctx, core.Pending)
	require.NoError(t, err)
	assert.Empty(t, pending, "create never leaves a record PENDING")

	assert.Equal(t, []string{res.Transaction.ID}, pub.ids)
}

func TestCreateRejectsInvalidInputWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := NewReconciler(store, newFlakyLedger(), nil)

	_, err := r.Create(ctx, newTx("   ", "5"))
	assert.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)

	_, err = r.Create(ctx, newTx("x", "0"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	all, err := store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateKeepsCallerID(t *testing.T) {
	store := newTestStore(t)
	r := NewReconciler(store, newFlakyLedger(), nil)

	tx := newTx("rent", "800")
	tx.ID = "fixed-id"
	res, err := r.Create(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", res.Transaction.ID)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	r := NewReconciler(store, remote, nil)

	created, err := r.Create(ctx, newTx("coffee", "2"))
	require.NoError(t, err)

	changed := created.Transaction
	changed.Amount = decimal.RequireFromString("2.40")
	res, err := r.Update(ctx, changed)
	require.NoError(t, err)
	assert.True(t, res.Synced())

	doc, err := remote.Get(ctx, changed.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.4", doc[ledger.FieldAmount])

	remote.setDown(true)
	changed.Description = "coffee and cake"
	res, err = r.Update(ctx, changed)
	require.NoError(t, err)
	require.NotNil(t, res.RemoteErr)
	assert.Equal(t, "quota exceeded", res.RemoteErr.Cause)

	stored, err := store.GetByID(ctx, changed.ID)
	require.NoError(t, err)
	assert.Equal(t, "coffee and cake", stored.Description, "local copy keeps the new value")
	assert.Equal(t, core.Failed, stored.SyncStatus)
}

func TestUpdateClearedReceiptSurvivesPull(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := NewReconciler(store, newFlakyLedger(), nil)

	tx := newTx("groceries", "40")
	tx.ReceiptURL = "gs://old.jpg"
	created, err := r.Create(ctx, tx)
	require.NoError(t, err)

	cleared := created.Transaction
	cleared.ReceiptURL = ""
	res, err := r.Update(ctx, cleared)
	require.NoError(t, err)
	require.True(t, res.Synced())

	_, err = r.PullAll(ctx, "u1")
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, cleared.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ReceiptURL)
}

func TestUpdateRejectsOwnerChange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	r := NewReconciler(store, remote, nil)

	created, err := r.Create(ctx, newTx("cinema", "9"))
	require.NoError(t, err)

	moved := created.Transaction
	moved.OwnerID = "u2"
	_, err = r.Update(ctx, moved)
	assert.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrOwnerChanged)

	stored, err := store.GetByID(ctx, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.OwnerID)

	doc, err := remote.Get(ctx, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", doc[ledger.FieldOwnerID])
}

func TestCreateAcceptsLongMultibyteDescription(t *testing.T) {
	r := NewReconciler(newTestStore(t), newFlakyLedger(), nil)

	desc := strings.Repeat("é", 120) + strings.Repeat("x", 300)
	res, err := r.Create(context.Background(), newTx(desc, "3"))
	require.NoError(t, err)
	assert.True(t, res.Synced())
	assert.Equal(t, desc, res.Transaction.Description)
}

func TestUpdateMissingTransaction(t *testing.T) {
	r := NewReconciler(newTestStore(t), newFlakyLedger(), nil)
	tx := newTx("ghost", "1")
	tx.ID = "nope"
	_, err := r.Update(context.Background(), tx)
	assert.True(t, core.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	r := NewReconciler(store, remote, nil)

	created, err := r.Create(ctx, newTx("gym", "40"))
	require.NoError(t, err)

	remote.setDown(true)
	res, err := r.Delete(ctx, created.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, res.RemoteErr)
	assert.Equal(t, "permission denied", res.RemoteErr.Cause)

	_, err = store.GetByID(ctx, created.Transaction.ID)
	assert.True(t, core.IsNotFound(err), "local record stays deleted")
	assert.Equal(t, 1, remote.Len(), "remote delete is not retried")

	remote.setDown(false)
	res, err = r.Delete(ctx, created.Transaction.ID)
	require.NoError(t, err)
	assert.Nil(t, res.RemoteErr)
	assert.Equal(t, 0, remote.Len())
}

func TestPullAllDropsMalformedDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	remote.docs = []queuedDoc{
		{id: "good", doc: ledger.Document{
			ledger.FieldOwnerID: "u1", ledger.FieldAmount: "9.99", ledger.FieldDate: int64(1746000000000),
			ledger.FieldCategory: "SHOPPING", ledger.FieldType: "EXPENSE", ledger.FieldDescription: "socks",
		}},
		{id: "bad", doc: ledger.Document{ledger.FieldOwnerID: "u1", ledger.FieldAmount: "not a number"}},
	}
	r := NewReconciler(store, rawQueryLedger{remote}, nil)

	res, err := r.PullAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, PullResult{Applied: 1, Dropped: 1}, res)

	all, err := store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
	assert.Equal(t, core.Synced, all[0].SyncStatus)
	assert.Equal(t, core.Shopping, all[0].Category)
}

func TestPullAllKeepsLocalOnlyRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	r := NewReconciler(store, remote, nil)

	remote.setDown(true)
	local, err := r.Create(ctx, newTx("offline", "3"))
	require.NoError(t, err)
	remote.setDown(false)

	_ = remote.Store.Set(ctx, "remote-1", ledger.Document{
		ledger.FieldOwnerID: "u1", ledger.FieldAmount: "100", ledger.FieldDate: int64(1746000000000),
		ledger.FieldType: "INCOME", ledger.FieldCategory: "SALARY", ledger.FieldDescription: "pay",
	})
	_ = remote.Store.Set(ctx, "other-owner", ledger.Document{
		ledger.FieldOwnerID: "u2", ledger.FieldAmount: "1", ledger.FieldDate: int64(1),
	})

	res, err := r.PullAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	all, err := store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stillFailed, err := store.GetByID(ctx, local.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Failed, stillFailed.SyncStatus)
}

func TestPullAllBatchesAndCancellation(t *testing.T) {
	store := newTestStore(t)
	remote := newFlakyLedger()
	for i := 0; i < 5; i++ {
		remote.docs = append(remote.docs, queuedDoc{
			id:  string(rune('a' + i)),
			doc: ledger.Document{ledger.FieldOwnerID: "u1", ledger.FieldAmount: "1", ledger.FieldDate: int64(i + 1)},
		})
	}
	r := NewReconciler(store, rawQueryLedger{remote}, nil)
	r.pullBatchSize = 2

	res, err := r.PullAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Applied)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.PullAll(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnsyncedAndRetry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFlakyLedger()
	r := NewReconciler(store, remote, nil)

	remote.setDown(true)
	first, err := r.Create(ctx, newTx("a", "1"))
	require.NoError(t, err)
	_, err = r.Create(ctx, newTx("b", "2"))
	require.NoError(t, err)

	unsynced, err := r.Unsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 2)

	res, err := r.Retry(ctx, first.Transaction.ID)
	require.NoError(t, err)
	assert.NotNil(t, res.RemoteErr)

	remote.setDown(false)
	res, err = r.Retry(ctx, first.Transaction.ID)
	require.NoError(t, err)
	assert.True(t, res.Synced())

	unsynced, err = r.Unsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)

	_, err = r.Retry(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}
