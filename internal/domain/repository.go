package domain

import (
	"context"
)

// Repository defines the persistence contract the engine depends on.
// The scoring and feature logic never touches storage directly; the
// pipeline hands persistence whole collections as bulk requests.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Account operations. CreateAccountsIfAbsent skips accounts that
	// already exist under the tenant so repeated uploads do not create
	// duplicate entities.
	CreateAccountsIfAbsent(ctx context.Context, tenantID string, accounts []*Account) error
	GetAccount(ctx context.Context, tenantID string, accountID string) (*Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]*Account, error)

	// Alert operations
	BulkCreateAlerts(ctx context.Context, tenantID string, alerts []*Alert) error
	ListAlerts(ctx context.Context, tenantID string) ([]*Alert, error)
	UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status string) error

	// Evidence transaction operations
	BulkCreateTransactions(ctx context.Context, tenantID string, txs []*StoredTransaction) error
	ListTransactions(ctx context.Context, tenantID string) ([]*StoredTransaction, error)
	ListTransactionsByAccount(ctx context.Context, tenantID string, accountID string) ([]*StoredTransaction, error)

	// Task operations
	CreateTask(ctx context.Context, task *ProcessingTask) error
	UpdateTask(ctx context.Context, task *ProcessingTask) error
	GetTask(ctx context.Context, tenantID string, taskID string) (*ProcessingTask, error)

	// Typology tag rule operations. Rules saved under the global tenant
	// apply to every tenant after a reload.
	SaveTagRule(ctx context.Context, tenantID string, rule *TagRule) error
	ListTagRules(ctx context.Context, tenantID string) ([]*TagRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
