package statistics

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"gasledger/backend/services/ingest-service/internal/portal"
)

// SeriesID names a statistic series in the external store.
type SeriesID string

const (
	ConsumptionID SeriesID = "nisource:consumption"
	CostID        SeriesID = "nisource:cost"
)

var (
	ErrMissingField = errors.New("statistics: missing field")
	ErrInvalidValue = errors.New("statistics: invalid value")
)

// Point is one persisted period of a cumulative series.
type Point struct {
	PeriodStart time.Time       `json:"period_start"`
	Value       decimal.Decimal `json:"value"`
	Sum         decimal.Decimal `json:"sum"`
}

// Series describes how one statistic is derived from the usage CSV.
type Series struct {
	ID     SeriesID
	Name   string
	Unit   string
	Column string
	Parse  func(string) (decimal.Decimal, error)
}

var (
	Consumption = Series{
		ID:     ConsumptionID,
		Name:   "NiSource Gas Consumption",
		Unit:   "CCF",
		Column: portal.ColumnUnitsUsed,
		Parse:  portal.ParseQuantity,
	}
	Cost = Series{
		ID:     CostID,
		Name:   "NiSource Gas Cost",
		Unit:   "USD",
		Column: portal.ColumnBillAmount,
		Parse:  portal.ParseCurrency,
	}
)

// All returns every series built from the usage CSV, consumption first.
func All() []Series {
	return []Series{Consumption, Cost}
}

// Lookup finds a series by id.
func Lookup(id SeriesID) (Series, bool) {
	for _, s := range All() {
		if s.ID == id {
			return s, true
		}
	}
	return Series{}, false
}
