package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// timestampLayouts are tried in order when parsing date or date+time
// strings. Batches arrive from bank exports with no agreed format.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"01-02-2006 15:04:05",
	"02-01-2006",
	time.RFC3339,
}

// currencyReplacer strips currency symbols and thousands separators
// before amount parsing.
var currencyReplacer = strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", ",", "", " ", "")

// Normalize produces one typed record per table row using the resolved
// column map. Row-level defects never abort the batch: bad timestamps
// become nil, bad amounts become 0, a missing type column defaults every
// row to "Unknown".
func Normalize(table *domain.RawTable, cols ColumnMap) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(table.Rows))

	dateIdx := cols[FieldDate]
	amountIdx := cols[FieldAmount]
	accountIdx := cols[FieldAccountID]
	timeIdx, hasTime := cols[FieldTime]
	typeIdx, hasType := cols[FieldType]
	relatedIdx, hasRelated := cols[FieldRelated]

	for _, row := range table.Rows {
		tx := domain.Transaction{
			AccountID: strings.TrimSpace(cell(row, accountIdx)),
			Type:      "Unknown",
			Amount:    ParseAmount(cell(row, amountIdx)),
		}
		if tx.AccountID == "" {
			continue
		}

		dateStr := strings.TrimSpace(cell(row, dateIdx))
		if hasTime {
			tx.Timestamp = ParseTimestamp(dateStr, strings.TrimSpace(cell(row, timeIdx)))
		} else {
			tx.Timestamp = ParseTimestamp(dateStr, "")
		}

		if hasType {
			if t := strings.TrimSpace(cell(row, typeIdx)); t != "" {
				tx.Type = t
			}
		}
		if hasRelated {
			tx.RelatedAccount = strings.TrimSpace(cell(row, relatedIdx))
		}

		txs = append(txs, tx)
	}

	return txs
}

// ParseTimestamp parses a date plus optional time-of-day string. Returns
// nil rather than an error when no layout matches, so one malformed row
// cannot abort a batch.
func ParseTimestamp(date, timeOfDay string) *time.Time {
	if date == "" {
		return nil
	}

	candidate := date
	if timeOfDay != "" {
		candidate = date + " " + timeOfDay
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, candidate); err == nil {
			return &ts
		}
	}

	// Combined parse failed; fall back to the date alone.
	if timeOfDay != "" {
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, date); err == nil {
				return &ts
			}
		}
	}

	return nil
}

// ParseAmount coerces a currency-formatted value to a float. Unparsable or
// missing values become 0 rather than an error.
func ParseAmount(raw string) float64 {
	cleaned := currencyReplacer.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
