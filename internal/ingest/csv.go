package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/opensource-finance/harrier/internal/domain"
)

// DecodeCSV reads a CSV byte stream into a RawTable. The first record is
// treated as the header row. Rows with a different field count than the
// header are kept; the normalizer treats missing cells as empty.
func DecodeCSV(r io.Reader) (*domain.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	table := &domain.RawTable{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(table.Rows)+2, err)
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}
