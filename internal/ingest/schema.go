// Package ingest canonicalizes uploaded transaction tables: schema mapping
// of arbitrary column headers and row normalization into typed records.
package ingest

import (
	"fmt"
	"strings"
)

// Canonical field names of the transaction schema.
const (
	FieldAccountID = "account_id"
	FieldDate      = "date"
	FieldTime      = "time"
	FieldAmount    = "amount"
	FieldType      = "type"
	FieldRelated   = "related_account"
)

// fieldMatcher binds a canonical field to its accepted header synonyms,
// in priority order. Matching is case-insensitive and trims whitespace.
type fieldMatcher struct {
	canonical string
	synonyms  []string
}

// schemaFields is the fixed prioritized synonym table. The first table
// column whose normalized header appears in a field's synonym list claims
// that field; lookup stops on the first hit per canonical name.
var schemaFields = []fieldMatcher{
	{FieldAccountID, []string{"account_id", "account", "account number", "acc no", "customer id", "id"}},
	{FieldDate, []string{"date", "transaction date", "txn date", "date_time"}},
	{FieldTime, []string{"time", "transaction time", "txn time"}},
	{FieldAmount, []string{"amount", "transaction amount", "value", "txn amount", "debit", "credit"}},
	{FieldType, []string{"type", "transaction type", "txn type", "description"}},
	{FieldRelated, []string{"related_account", "to", "from", "counterparty", "beneficiary"}},
}

// requiredFields must all resolve or the whole run fails before any row
// is processed.
var requiredFields = []string{FieldAccountID, FieldDate, FieldAmount}

// SchemaError reports required canonical columns that could not be mapped.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s (found: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// ColumnMap resolves canonical field names to column indexes in the table.
type ColumnMap map[string]int

// Has reports whether the canonical field was mapped.
func (m ColumnMap) Has(field string) bool {
	_, ok := m[field]
	return ok
}

// MapColumns resolves arbitrary column headers against the synonym table
// and validates that all required fields are present. A column claimed by
// one canonical field is not considered for later fields.
func MapColumns(columns []string) (ColumnMap, error) {
	normalized := make([]string, len(columns))
	for i, col := range columns {
		normalized[i] = strings.ToLower(strings.TrimSpace(col))
	}

	mapped := make(ColumnMap, len(schemaFields))
	claimed := make(map[int]bool, len(columns))

	for _, field := range schemaFields {
		for i, header := range normalized {
			if claimed[i] {
				continue
			}
			if matchesSynonym(header, field.synonyms) {
				mapped[field.canonical] = i
				claimed[i] = true
				break
			}
		}
	}

	var missing []string
	for _, req := range requiredFields {
		if !mapped.Has(req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Found: columns}
	}

	return mapped, nil
}

func matchesSynonym(header string, synonyms []string) bool {
	for _, s := range synonyms {
		if header == s {
			return true
		}
	}
	return false
}
