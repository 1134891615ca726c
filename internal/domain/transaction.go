// Package domain defines the core types and interfaces for Harrier.
package domain

import (
	"time"
)

// RawTable is a column-oriented table decoded from an uploaded file.
// The engine works against named columns, not a specific file format.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// RowCount returns the number of data rows in the table.
func (t *RawTable) RowCount() int {
	return len(t.Rows)
}

// Transaction is a single normalized transaction row.
// Rows are read once per analysis run and never mutated.
type Transaction struct {
	// AccountID identifies the account that owns the transaction.
	AccountID string `json:"accountId"`

	// Timestamp is nil when the source value could not be parsed.
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Type is the free-text category (e.g. "Deposit", "Withdrawal").
	Type string `json:"type"`

	// Amount in the upload's currency. Unparsable values coerce to 0.
	Amount float64 `json:"amount"`

	// RelatedAccount is the counterparty, empty when absent.
	RelatedAccount string `json:"relatedAccount,omitempty"`

	// Flagged marks a manually flagged source row.
	Flagged bool `json:"flagged,omitempty"`
}

// StoredTransaction is an evidence transaction persisted alongside an alert.
// The materializer keeps at most five per account, chosen by highest amount.
type StoredTransaction struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	AccountID      string    `json:"accountId"`
	DateTime       time.Time `json:"dateTime"`
	Type           string    `json:"type"`
	Amount         string    `json:"amount"`
	RelatedAccount string    `json:"relatedAccount,omitempty"`
	Flagged        bool      `json:"flagged"`
}

// Account represents a scored account entity.
// Accounts are created once per tenant and deduplicated across uploads.
type Account struct {
	AccountID           string    `json:"accountId"`
	TenantID            string    `json:"tenantId"`
	Name                string    `json:"name"`
	Type                string    `json:"type"`
	OpenDate            time.Time `json:"openDate"`
	TotalTransactions   int       `json:"totalTransactions"`
	FlaggedTransactions int       `json:"flaggedTransactions"`
	CreatedAt           time.Time `json:"createdAt"`
}
