package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"spendsync/internal/core"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to look for unsynced transactions (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of transactions retried per pass (default: 50)
	BatchSize int

	// Concurrency bounds the number of remote writes in flight (default: 4)
	Concurrency int

	// MaxAttempts is the number of remote attempts per transaction and pass (default: 3)
	MaxAttempts int

	// RetryInitialInterval is the first backoff delay between attempts (default: 500ms)
	RetryInitialInterval time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:         30 * time.Second,
		BatchSize:            50,
		Concurrency:          4,
		MaxAttempts:          3,
		RetryInitialInterval: 500 * time.Millisecond,
	}
}

// RetryRunner is the reconciliation surface the processor drives.
type RetryRunner interface {
	Unsynced(ctx context.Context) ([]core.Transaction, error)
	Retry(ctx context.Context, id string) (SyncResult, error)
}

// PassStats summarises one reconciliation pass.
type PassStats struct {
	Checked int
	Synced  int
	Failed  int
}

// SyncProcessor periodically re-pushes FAILED and PENDING transactions.
type SyncProcessor struct {
	runner RetryRunner
	config SyncProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(runner RetryRunner, config SyncProcessorConfig) *SyncProcessor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &SyncProcessor{
		runner: runner,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"concurrency", p.config.Concurrency)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	// Cancel in-flight retries as soon as Stop is called.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce runs a single reconciliation pass over up to BatchSize
// unsynced transactions.
func (p *SyncProcessor) ProcessOnce(ctx context.Context) PassStats {
	items, err := p.runner.Unsynced(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list unsynced transactions", "error", err)
		return PassStats{}
	}
	if p.config.BatchSize > 0 && len(items) > p.config.BatchSize {
		items = items[:p.config.BatchSize]
	}
	if len(items) == 0 {
		return PassStats{}
	}

	slog.DebugContext(ctx, "Processing unsynced batch", "count", len(items))

	var synced, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for _, item := range items {
		id := item.ID
		g.Go(func() error {
			if err := p.retryOne(gctx, id); err != nil {
				failed.Add(1)
				slog.WarnContext(gctx, "Transaction still unsynced",
					"id", id,
					"error", err)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats := PassStats{Checked: len(items), Synced: int(synced.Load()), Failed: int(failed.Load())}
	slog.InfoContext(ctx, "Reconciliation pass complete",
		"checked", stats.Checked,
		"synced", stats.Synced,
		"failed", stats.Failed)
	return stats
}

func (p *SyncProcessor) retryOne(ctx context.Context, id string) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.config.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.config.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		res, err := p.runner.Retry(ctx, id)
		if err != nil {
			// Deleted or unreadable locally: nothing to push.
			return backoff.Permanent(err)
		}
		if res.RemoteErr != nil {
			return res.RemoteErr
		}
		return nil
	}, policy)
}
