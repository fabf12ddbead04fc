package backend

import (
	"errors"
	"fmt"

	"spendsync/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	lt := LedgerType(appConfig.LedgerBackend)
	if !lt.IsValid() {
		return Config{}, fmt.Errorf("invalid ledger backend in config: %s", appConfig.LedgerBackend)
	}

	return Config{
		Ledger:          lt,
		SQLiteDBPath:    appConfig.SQLiteDBPath,
		MongoURI:        appConfig.MongoURI,
		MongoDatabase:   appConfig.MongoDatabase,
		MongoCollection: appConfig.MongoCollection,

		MongoBudgetCollection: appConfig.MongoBudgetCollection,
		AMQPURL:         appConfig.AMQPURL,
		AMQPExchange:    appConfig.AMQPExchange,
		AMQPQueue:       appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Ledger.IsValid() {
		return fmt.Errorf("invalid ledger backend: %s (valid: %v)", c.Ledger, GetLedgerTypes())
	}
	if c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required")
	}

	switch c.Ledger {
	case MongoLedger:
		if c.MongoURI == "" {
			return errors.New("MongoDB URI is required for mongo ledger")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return errors.New("MongoDB database and collection are required for mongo ledger")
		}
		if c.budgetCollection() == c.MongoCollection {
			return errors.New("MongoDB budget collection must differ from the transaction collection")
		}
	case MemoryLedger:
		// nothing to check
	}

	return nil
}

// GetLedgerTypes returns all valid ledger types
func GetLedgerTypes() []LedgerType {
	return []LedgerType{MemoryLedger, MongoLedger}
}

func (c Config) budgetCollection() string {
	if c.MongoBudgetCollection == "" {
		return "budgets"
	}
	return c.MongoBudgetCollection
}
