package backend

import (
	"context"

	"spendsync/internal/amqp"
	"spendsync/internal/ledger"
	"spendsync/internal/services"
	"spendsync/internal/storage"
)

// CleanupFunc releases the resources of a backend.
type CleanupFunc func(ctx context.Context) error

// BackendResult is the assembled data layer: local store, remote ledgers for
// transactions and budgets, and the services between them. Publisher is nil
// when AMQP is disabled or unreachable.
type BackendResult struct {
	Store        *storage.SQLiteRepository
	Ledger       ledger.Ledger
	BudgetLedger ledger.Ledger
	Publisher    *amqp.Client
	Reconciler   *services.Reconciler
	Budgets      *services.BudgetService
	Cleanup      CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Ledger LedgerType

	SQLiteDBPath string

	// Mongo specific
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// MongoBudgetCollection defaults to "budgets".
	MongoBudgetCollection string

	// AMQP is optional; an empty URL disables retry publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// LedgerType selects the remote ledger implementation.
type LedgerType string

const (
	MemoryLedger LedgerType = "memory"
	MongoLedger  LedgerType = "mongo"
)

// String implements fmt.Stringer
func (lt LedgerType) String() string {
	return string(lt)
}

// IsValid returns true if the ledger type is known
func (lt LedgerType) IsValid() bool {
	switch lt {
	case MemoryLedger, MongoLedger:
		return true
	default:
		return false
	}
}
