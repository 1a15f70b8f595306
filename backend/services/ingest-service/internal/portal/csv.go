package portal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Usage CSV columns. The portal sometimes emits them with a leading space.
const (
	ColumnDate        = "Date"
	ColumnReadType    = "Type of Read"
	ColumnAvgTemp     = "Avg Temp"
	ColumnDays        = "Number of Days"
	ColumnUnitsUsed   = "Units Used"
	ColumnYearlyUsage = "Yearly Usage"
	ColumnBillAmount  = "Bill Amount"
	ColumnCostPerDay  = "Cost per Day"
)

const utf8BOM = "\ufeff"

// Row is one CSV record keyed by header name, exactly as the portal wrote the header.
type Row map[string]string

// keyVariants are tried in order when resolving a column; the exact name wins.
var keyVariants = []func(string) string{
	func(name string) string { return name },
	func(name string) string { return " " + name },
}

// Lookup resolves name exactly, then with a leading space.
func (r Row) Lookup(name string) (string, bool) {
	for _, variant := range keyVariants {
		if value, ok := r[variant(name)]; ok {
			return value, true
		}
	}
	return "", false
}

// Field is Lookup without the presence flag.
func (r Row) Field(name string) string {
	value, _ := r.Lookup(name)
	return value
}

// DecodeCSV reads a header row followed by records. An empty body yields no rows.
// Records shorter than the header simply lack the trailing columns.
func DecodeCSV(body io.Reader) ([]Row, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}

		row := make(Row, len(header))
		for i, name := range header {
			if i >= len(record) {
				break
			}
			row[name] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
