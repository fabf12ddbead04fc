package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spendsync/internal/amqp"
	"spendsync/internal/core"
	"spendsync/internal/services"
)

type fakeRetrier struct {
	mu       sync.Mutex
	unsynced []core.Transaction
	results  map[string]error // nil: synced; RemoteError: remote failure; other: local error
	retried  []string
}

func (f *fakeRetrier) Unsynced(context.Context) ([]core.Transaction, error) {
	return f.unsynced, nil
}

func (f *fakeRetrier) Retry(_ context.Context, id string) (services.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, id)

	err, ok := f.results[id]
	if !ok || err == nil {
		return services.SyncResult{Transaction: core.Transaction{ID: id, SyncStatus: core.Synced}}, nil
	}
	var re *core.RemoteError
	if errors.As(err, &re) {
		return services.SyncResult{Transaction: core.Transaction{ID: id, SyncStatus: core.Failed}, RemoteErr: re}, nil
	}
	return services.SyncResult{}, err
}

type countingRecurring struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRecurring) ProcessAll(context.Context, time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1, nil
}

func (c *countingRecurring) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestHandleRetryMessage(t *testing.T) {
	local := errors.New("disk full")
	r := &fakeRetrier{results: map[string]error{
		"gone":   &core.NotFoundError{Kind: "transaction", ID: "gone"},
		"remote": core.NewRemoteError("set", errors.New("timeout")),
		"local":  local,
	}}
	w := NewSyncWorker(r, nil, 10)
	ctx := context.Background()

	tests := []struct {
		id      string
		wantErr bool
	}{
		{"ok", false},
		{"gone", false},
		{"remote", false},
		{"local", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := w.HandleRetryMessage(ctx, amqp.NewRetryMessage(tt.id))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleRetryMessage(%s) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, local) {
				t.Errorf("local error should be wrapped, got %v", err)
			}
		})
	}
}

func TestStartupSyncCheck(t *testing.T) {
	t.Run("nothing to do", func(t *testing.T) {
		r := &fakeRetrier{}
		if err := NewSyncWorker(r, nil, 2).StartupSyncCheck(context.Background()); err != nil {
			t.Fatalf("StartupSyncCheck() error = %v", err)
		}
		if len(r.retried) != 0 {
			t.Errorf("retried %v, want none", r.retried)
		}
	})

	t.Run("bounded by batch size", func(t *testing.T) {
		r := &fakeRetrier{results: map[string]error{"t1": core.NewRemoteError("set", errors.New("down"))}}
		for i := 0; i < 12; i++ {
			r.unsynced = append(r.unsynced, core.Transaction{ID: "t" + string(rune('a'+i))})
		}
		if err := NewSyncWorker(r, nil, 2).StartupSyncCheck(context.Background()); err != nil {
			t.Fatalf("StartupSyncCheck() error = %v", err)
		}
		if len(r.retried) != 10 {
			t.Errorf("retried %d transactions, want 10", len(r.retried))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		r := &fakeRetrier{unsynced: []core.Transaction{{ID: "a"}}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewSyncWorker(r, nil, 2).StartupSyncCheck(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRunRecurring(t *testing.T) {
	rec := &countingRecurring{}
	w := NewSyncWorker(&fakeRetrier{}, rec, 0)
	if w.batchSize != 10 {
		t.Errorf("default batch size = %d, want 10", w.batchSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunRecurring(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if rec.count() < 2 {
		t.Errorf("recurring ran %d times, want initial run plus ticks", rec.count())
	}
}

func TestProcessRecurringWithoutRunner(t *testing.T) {
	n, err := NewSyncWorker(&fakeRetrier{}, nil, 1).ProcessRecurring(context.Background())
	if n != 0 || err != nil {
		t.Errorf("ProcessRecurring() = %d, %v; want 0, nil", n, err)
	}
}

type fakeBudgetRetrier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeBudgetRetrier) RetryUnsynced(context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1, 0, f.err
}

func (f *fakeBudgetRetrier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestStartupSyncCheckRetriesBudgets(t *testing.T) {
	b := &fakeBudgetRetrier{err: errors.New("disk full")}
	w := NewSyncWorker(&fakeRetrier{}, nil, 2).WithBudgets(b)

	// A budget failure does not stop the transaction pass.
	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}
	if b.count() != 1 {
		t.Errorf("budget retries = %d, want 1", b.count())
	}
	if err := w.RetryBudgets(context.Background()); err == nil {
		t.Error("RetryBudgets() should report the store error")
	}
}

func TestRunBudgetRetries(t *testing.T) {
	b := &fakeBudgetRetrier{}
	w := NewSyncWorker(&fakeRetrier{}, nil, 1).WithBudgets(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunBudgetRetries(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if b.count() < 2 {
		t.Errorf("budget retries ran %d times, want at least 2", b.count())
	}
}
