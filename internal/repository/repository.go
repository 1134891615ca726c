// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// bulkBatchSize bounds the rows per multi-row INSERT so the statement stays
// under both drivers' placeholder limits.
const bulkBatchSize = 500

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CreateAccountsIfAbsent inserts accounts that do not yet exist under the
// tenant. Existing accounts are left untouched so repeated uploads never
// create duplicates or reset counters.
func (r *SQLRepository) CreateAccountsIfAbsent(ctx context.Context, tenantID string, accounts []*domain.Account) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(accounts) == 0 {
		return nil
	}

	for start := 0; start < len(accounts); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		batch := accounts[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*8)
		for _, a := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				a.AccountID, tenantID, a.Name, a.Type,
				a.OpenDate, a.TotalTransactions, a.FlaggedTransactions, a.CreatedAt,
			)
		}

		query := fmt.Sprintf(`
			INSERT INTO accounts (
				account_id, tenant_id, name, type,
				open_date, total_transactions, flagged_transactions, created_at
			) VALUES %s
			ON CONFLICT(account_id, tenant_id) DO NOTHING
		`, strings.Join(placeholders, ", "))

		if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
			return err
		}
	}

	return nil
}

// GetAccount retrieves an account by ID with tenant isolation.
func (r *SQLRepository) GetAccount(ctx context.Context, tenantID string, accountID string) (*domain.Account, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT account_id, tenant_id, name, type,
			   open_date, total_transactions, flagged_transactions, created_at
		FROM accounts
		WHERE tenant_id = ? AND account_id = ?
	`

	var a domain.Account
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID).Scan(
		&a.AccountID, &a.TenantID, &a.Name, &a.Type,
		&a.OpenDate, &a.TotalTransactions, &a.FlaggedTransactions, &a.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// ListAccounts retrieves all accounts for a tenant.
func (r *SQLRepository) ListAccounts(ctx context.Context, tenantID string) ([]*domain.Account, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT account_id, tenant_id, name, type,
			   open_date, total_transactions, flagged_transactions, created_at
		FROM accounts
		WHERE tenant_id = ?
		ORDER BY account_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.AccountID, &a.TenantID, &a.Name, &a.Type,
			&a.OpenDate, &a.TotalTransactions, &a.FlaggedTransactions, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}

	return accounts, rows.Err()
}

// BulkCreateAlerts stores a batch of alerts with tenant isolation.
func (r *SQLRepository) BulkCreateAlerts(ctx context.Context, tenantID string, alerts []*domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(alerts) == 0 {
		return nil
	}

	for start := 0; start < len(alerts); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		batch := alerts[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*10)
		for _, a := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				a.AlertID, tenantID, a.AccountID, a.RiskScore, a.Typologies,
				a.CreatedAt, a.Status, a.Amount, a.TransactionCount, a.Priority,
			)
		}

		query := fmt.Sprintf(`
			INSERT INTO alerts (
				alert_id, tenant_id, account_id, risk_score, typologies,
				created_at, status, amount, transaction_count, priority
			) VALUES %s
		`, strings.Join(placeholders, ", "))

		if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
			return err
		}
	}

	return nil
}

// ListAlerts retrieves all alerts for a tenant, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT alert_id, tenant_id, account_id, risk_score, typologies,
			   created_at, status, amount, transaction_count, priority
		FROM alerts
		WHERE tenant_id = ?
		ORDER BY created_at DESC, alert_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(
			&a.AlertID, &a.TenantID, &a.AccountID, &a.RiskScore, &a.Typologies,
			&a.CreatedAt, &a.Status, &a.Amount, &a.TransactionCount, &a.Priority,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// UpdateAlertStatus transitions an alert's review status.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET status = ?
		WHERE tenant_id = ? AND alert_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, tenantID, alertID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// BulkCreateTransactions stores a batch of evidence transactions.
func (r *SQLRepository) BulkCreateTransactions(ctx context.Context, tenantID string, txs []*domain.StoredTransaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	for start := 0; start < len(txs); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(txs) {
			end = len(txs)
		}
		batch := txs[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*8)
		for _, tx := range batch {
			flagged := 0
			if tx.Flagged {
				flagged = 1
			}
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				tx.ID, tenantID, tx.AccountID, tx.DateTime,
				tx.Type, tx.Amount, tx.RelatedAccount, flagged,
			)
		}

		query := fmt.Sprintf(`
			INSERT INTO transactions (
				id, tenant_id, account_id, date_time,
				type, amount, related_account, flagged
			) VALUES %s
		`, strings.Join(placeholders, ", "))

		if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
			return err
		}
	}

	return nil
}

// ListTransactions retrieves all evidence transactions for a tenant.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string) ([]*domain.StoredTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, account_id, date_time,
			   type, amount, related_account, flagged
		FROM transactions
		WHERE tenant_id = ?
		ORDER BY date_time DESC
	`

	return r.queryTransactions(ctx, query, tenantID)
}

// ListTransactionsByAccount retrieves evidence transactions for one account.
func (r *SQLRepository) ListTransactionsByAccount(ctx context.Context, tenantID string, accountID string) ([]*domain.StoredTransaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, account_id, date_time,
			   type, amount, related_account, flagged
		FROM transactions
		WHERE tenant_id = ? AND account_id = ?
		ORDER BY date_time DESC
	`

	return r.queryTransactions(ctx, query, tenantID, accountID)
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.StoredTransaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.StoredTransaction
	for rows.Next() {
		var tx domain.StoredTransaction
		var related sql.NullString
		var flagged int

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.AccountID, &tx.DateTime,
			&tx.Type, &tx.Amount, &related, &flagged,
		); err != nil {
			return nil, err
		}

		tx.RelatedAccount = related.String
		tx.Flagged = flagged == 1
		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}

// CreateTask stores a new processing task.
func (r *SQLRepository) CreateTask(ctx context.Context, task *domain.ProcessingTask) error {
	if task.TenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO tasks (
			task_id, tenant_id, status, progress,
			total_records, processed_records, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		task.TaskID, task.TenantID, task.Status, task.Progress,
		task.TotalRecords, task.ProcessedRecords, task.ErrorMessage,
		task.CreatedAt, task.UpdatedAt,
	)
	return err
}

// UpdateTask persists a task's current progress and status.
func (r *SQLRepository) UpdateTask(ctx context.Context, task *domain.ProcessingTask) error {
	if task.TenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE tasks
		SET status = ?, progress = ?, total_records = ?,
			processed_records = ?, error_message = ?, updated_at = ?
		WHERE tenant_id = ? AND task_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		task.Status, task.Progress, task.TotalRecords,
		task.ProcessedRecords, task.ErrorMessage, task.UpdatedAt,
		task.TenantID, task.TaskID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetTask retrieves a task by ID with tenant isolation.
func (r *SQLRepository) GetTask(ctx context.Context, tenantID string, taskID string) (*domain.ProcessingTask, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT task_id, tenant_id, status, progress,
			   total_records, processed_records, error_message, created_at, updated_at
		FROM tasks
		WHERE tenant_id = ? AND task_id = ?
	`

	var task domain.ProcessingTask
	var errMsg sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, taskID).Scan(
		&task.TaskID, &task.TenantID, &task.Status, &task.Progress,
		&task.TotalRecords, &task.ProcessedRecords, &errMsg,
		&task.CreatedAt, &task.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	task.ErrorMessage = errMsg.String
	return &task, nil
}

// SaveTagRule upserts a typology tag rule.
func (r *SQLRepository) SaveTagRule(ctx context.Context, tenantID string, rule *domain.TagRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO tag_rules (
			id, tenant_id, name, description, tag,
			expression, fallback, enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			tag = excluded.tag,
			expression = excluded.expression,
			fallback = excluded.fallback,
			enabled = excluded.enabled
	`

	fallback, enabled := 0, 0
	if rule.Fallback {
		fallback = 1
	}
	if rule.Enabled {
		enabled = 1
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Tag,
		rule.Expression, fallback, enabled, time.Now().UTC(),
	)
	return err
}

// ListTagRules retrieves all tag rules for a tenant in insertion order.
func (r *SQLRepository) ListTagRules(ctx context.Context, tenantID string) ([]*domain.TagRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, tag, expression, fallback, enabled
		FROM tag_rules
		WHERE tenant_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.TagRule
	for rows.Next() {
		var rule domain.TagRule
		var desc sql.NullString
		var fallback, enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &desc, &rule.Tag,
			&rule.Expression, &fallback, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = desc.String
		rule.Fallback = fallback != 0
		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
