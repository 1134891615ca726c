package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"50000", 50000},
		{"50000.50", 50000.50},
		{"₹1,234.50", 1234.50},
		{"$500", 500},
		{"€2,000", 2000},
		{"£1,000,000", 1000000},
		{" 42 ", 42},
		{"-150.25", -150.25},
		{"", 0},
		{"N/A", 0},
		{"abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseAmount(tt.raw); got != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		time    string
		want    string // RFC3339, empty means nil expected
	}{
		{"date and time", "2024-01-01", "10:00:00", "2024-01-01T10:00:00Z"},
		{"date only", "2024-01-02", "", "2024-01-02T00:00:00Z"},
		{"combined in date column", "2024-01-01 10:30:00", "", "2024-01-01T10:30:00Z"},
		{"slash format", "02/01/2024", "", "2024-01-02T00:00:00Z"},
		{"bad time falls back to date", "2024-01-03", "not-a-time", "2024-01-03T00:00:00Z"},
		{"unparsable", "yesterday", "", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.date, tt.time)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil timestamp, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tt.want)
			}
			want, _ := time.Parse(time.RFC3339, tt.want)
			if !got.Equal(want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	table := &domain.RawTable{
		Columns: []string{"account_id", "date", "amount"},
		Rows: [][]string{
			{"ACC-001", "2024-01-01", "₹45,500"},
			{"ACC-002", "garbage-date", "oops"},
		},
	}
	cols, err := MapColumns(table.Columns)
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}

	txs := Normalize(table, cols)
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}

	if txs[0].Amount != 45500 {
		t.Errorf("expected cleaned amount 45500, got %v", txs[0].Amount)
	}
	if txs[0].Type != "Unknown" {
		t.Errorf("expected default type Unknown, got %q", txs[0].Type)
	}
	if txs[0].RelatedAccount != "" {
		t.Errorf("expected empty related account, got %q", txs[0].RelatedAccount)
	}

	// A defective row degrades to neutral defaults, never an error.
	if txs[1].Timestamp != nil {
		t.Errorf("expected nil timestamp for bad date, got %v", txs[1].Timestamp)
	}
	if txs[1].Amount != 0 {
		t.Errorf("expected 0 amount for bad value, got %v", txs[1].Amount)
	}
}

func TestNormalizeSeparateTimeColumn(t *testing.T) {
	table := &domain.RawTable{
		Columns: []string{"account_id", "date", "time", "amount", "type", "counterparty"},
		Rows: [][]string{
			{"ACC-001", "2024-01-01", "10:00:00", "50000", "Deposit", "DIRECT"},
		},
	}
	cols, err := MapColumns(table.Columns)
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}

	txs := Normalize(table, cols)
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}

	tx := txs[0]
	if tx.Timestamp == nil {
		t.Fatal("expected combined timestamp")
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !tx.Timestamp.Equal(want) {
		t.Errorf("got %v, want %v", tx.Timestamp, want)
	}
	if tx.Type != "Deposit" {
		t.Errorf("got type %q, want Deposit", tx.Type)
	}
	if tx.RelatedAccount != "DIRECT" {
		t.Errorf("got related %q, want DIRECT", tx.RelatedAccount)
	}
}

func TestNormalizeSkipsBlankAccounts(t *testing.T) {
	table := &domain.RawTable{
		Columns: []string{"account_id", "date", "amount"},
		Rows: [][]string{
			{"", "2024-01-01", "100"},
			{"ACC-001", "2024-01-01", "200"},
		},
	}
	cols, _ := MapColumns(table.Columns)
	txs := Normalize(table, cols)
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].AccountID != "ACC-001" {
		t.Errorf("unexpected account %q", txs[0].AccountID)
	}
}

func TestDecodeCSV(t *testing.T) {
	input := "account_id,date,amount\nACC-001,2024-01-01,100\nACC-002,2024-01-02,200\n"
	table, err := DecodeCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(table.Columns) != 3 {
		t.Errorf("expected 3 columns, got %d", len(table.Columns))
	}
	if table.RowCount() != 2 {
		t.Errorf("expected 2 rows, got %d", table.RowCount())
	}
}

func TestDecodeCSVEmpty(t *testing.T) {
	if _, err := DecodeCSV(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestDecodeCSVRaggedRows(t *testing.T) {
	input := "account_id,date,amount,type\nACC-001,2024-01-01,100\n"
	table, err := DecodeCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if table.RowCount() != 1 {
		t.Fatalf("expected ragged row kept, got %d rows", table.RowCount())
	}
}
