package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is the normalized form of one usage CSV row.
type UsageRecord struct {
	PeriodStart time.Time        `json:"period_start"`
	ReadType    string           `json:"read_type,omitempty"`
	AvgTemp     *decimal.Decimal `json:"avg_temp,omitempty"`
	Days        *decimal.Decimal `json:"days,omitempty"`
	UnitsUsed   decimal.Decimal  `json:"units_used"`
	YearlyUsage *decimal.Decimal `json:"yearly_usage_pct,omitempty"`
	BillAmount  decimal.Decimal  `json:"bill_amount"`
	CostPerDay  *decimal.Decimal `json:"cost_per_day,omitempty"`
}

// ParseUsageRecord derives a UsageRecord from a row. Date, units and bill amount are
// required; the descriptive columns are kept when they parse and dropped otherwise.
func ParseUsageRecord(row Row) (UsageRecord, error) {
	var rec UsageRecord

	date, err := requiredField(row, ColumnDate)
	if err != nil {
		return rec, err
	}
	if rec.PeriodStart, err = ParseDate(date); err != nil {
		return rec, err
	}

	units, err := requiredField(row, ColumnUnitsUsed)
	if err != nil {
		return rec, err
	}
	if rec.UnitsUsed, err = ParseQuantity(units); err != nil {
		return rec, err
	}

	bill, err := requiredField(row, ColumnBillAmount)
	if err != nil {
		return rec, err
	}
	if rec.BillAmount, err = ParseCurrency(bill); err != nil {
		return rec, err
	}

	rec.ReadType = strings.TrimSpace(row.Field(ColumnReadType))
	rec.AvgTemp = optional(row, ColumnAvgTemp, ParseQuantity)
	rec.Days = optional(row, ColumnDays, ParseQuantity)
	rec.YearlyUsage = optional(row, ColumnYearlyUsage, ParsePercentage)
	rec.CostPerDay = optional(row, ColumnCostPerDay, ParseCurrency)
	return rec, nil
}

// ParseUsageRecords converts rows in feed order, skipping rows that fail ParseUsageRecord.
func ParseUsageRecords(rows []Row) ([]UsageRecord, int) {
	records := make([]UsageRecord, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		rec, err := ParseUsageRecord(row)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func requiredField(row Row, name string) (string, error) {
	value, ok := row.Lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("missing column %q", name)
	}
	return value, nil
}

func optional(row Row, name string, parse func(string) (decimal.Decimal, error)) *decimal.Decimal {
	value, ok := row.Lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := parse(value)
	if err != nil {
		return nil
	}
	return &d
}
