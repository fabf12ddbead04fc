package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendsync/internal/amqp"
	"spendsync/internal/ledger"
	"spendsync/internal/ledger/memory"
	mongoledger "spendsync/internal/ledger/mongo"
	"spendsync/internal/services"
	"spendsync/internal/storage"
)

const connectTimeout = 10 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger

	// dialAMQP is replaced in tests.
	dialAMQP func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:   logger,
		dialAMQP: amqp.NewClient,
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the local store, the configured ledger and, when
// configured, the retry publisher, and wires a reconciler over them.
// A failing AMQP broker only disables retry publishing.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	cleanups := []CleanupFunc{func(context.Context) error { return store.Close() }}

	remote, budgetRemote, closeLedger, err := f.createLedgers(ctx, config)
	if err != nil {
		store.Close()
		return nil, err
	}
	if closeLedger != nil {
		cleanups = append(cleanups, closeLedger)
	}

	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without retry messages", "error", err)
			publisher = nil
		} else {
			cleanups = append(cleanups, func(context.Context) error { return publisher.Close() })
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	// A nil *amqp.Client must not become a non-nil interface.
	var retryPublisher services.RetryPublisher
	if publisher != nil {
		retryPublisher = publisher
	}

	f.logger.Info("Initialized backend",
		"db_path", config.SQLiteDBPath,
		"ledger", config.Ledger,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Store:        store,
		Ledger:       remote,
		BudgetLedger: budgetRemote,
		Publisher:    publisher,
		Reconciler:   services.NewReconciler(store, remote, retryPublisher),
		Budgets:      services.NewBudgetService(store, budgetRemote),
		Cleanup:      chain(cleanups),
	}, nil
}

// createLedgers returns the transaction ledger and the budget ledger, which
// share one connection.
func (f *DefaultFactory) createLedgers(ctx context.Context, config Config) (ledger.Ledger, ledger.Ledger, CleanupFunc, error) {
	switch config.Ledger {
	case MemoryLedger:
		f.logger.Warn("Using in-memory ledger; remote data is lost on exit")
		return memory.New(), memory.New(), nil, nil

	case MongoLedger:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		client, err := mongoledger.Connect(connectCtx, config.MongoURI)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize mongo ledger: %w", err)
		}
		db := client.Database(config.MongoDatabase)
		f.logger.Info("Initialized mongo ledger",
			"database", config.MongoDatabase,
			"collection", config.MongoCollection,
			"budget_collection", config.budgetCollection())

		closeClient := func(ctx context.Context) error { return client.Disconnect(ctx) }
		return mongoledger.New(db.Collection(config.MongoCollection)),
			mongoledger.New(db.Collection(config.budgetCollection())),
			closeClient, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported ledger backend: %s", config.Ledger)
	}
}

// chain runs cleanups in reverse order and joins their errors.
func chain(cleanups []CleanupFunc) CleanupFunc {
	return func(ctx context.Context) error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
