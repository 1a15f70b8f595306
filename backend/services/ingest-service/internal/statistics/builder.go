package statistics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/portal"
)

// Drift is reported when the persisted running sum at the marker no longer matches
// the sum recomputed from the full feed history.
type Drift struct {
	Marker     time.Time
	Persisted  decimal.Decimal
	Recomputed decimal.Decimal
}

// Delta is Recomputed minus Persisted.
func (d Drift) Delta() decimal.Decimal {
	return d.Recomputed.Sub(d.Persisted)
}

// Result is the outcome of one Build call.
type Result struct {
	Series  SeriesID
	Points  []Point
	Skipped int
	// Total is the running sum over the whole feed, including periods not emitted.
	Total decimal.Decimal
	Drift *Drift
}

// Builder turns a full usage snapshot into the points that are new since the last persisted one.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder returns a Builder that logs skipped rows through logger.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.Named("statistics")}
}

type entry struct {
	start time.Time
	value decimal.Decimal
}

// Build computes new points for series from rows in portal (newest-first) order. last is the
// most recent persisted point or nil on a first run. Only periods strictly after
// last.PeriodStart are emitted, and their sums continue from last.Sum even when the feed no
// longer carries the oldest periods. The full-history recomputation is kept for Drift.
func (b *Builder) Build(rows []portal.Row, series Series, last *Point) Result {
	res := Result{Series: series.ID, Total: decimal.Zero}

	entries := make([]entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		start, value, err := ParseRow(rows[i], series)
		if err != nil {
			res.Skipped++
			b.logger.Warn("skipping usage row",
				zap.String("series", string(series.ID)),
				zap.Int("row", i),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, entry{start: start, value: value})
	}

	// Already chronological after the reversal for newest-first feeds; the stable sort
	// makes oldest-first feeds produce the same result.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].start.Before(entries[j].start)
	})
	entries = mergeSamePeriod(entries)

	atMarker := decimal.Zero
	sum := decimal.Zero
	if last != nil {
		sum = last.Sum
	}
	for _, e := range entries {
		res.Total = res.Total.Add(e.value)
		if last != nil && !e.start.After(last.PeriodStart) {
			atMarker = res.Total
			continue
		}
		sum = sum.Add(e.value)
		res.Points = append(res.Points, Point{
			PeriodStart: e.start,
			Value:       e.value,
			Sum:         sum,
		})
	}

	if last != nil && !atMarker.Equal(last.Sum) {
		res.Drift = &Drift{Marker: last.PeriodStart, Persisted: last.Sum, Recomputed: atMarker}
	}
	return res
}

// ParseRow extracts the period start and the series value from one row.
func ParseRow(row portal.Row, series Series) (time.Time, decimal.Decimal, error) {
	rawDate, ok := row.Lookup(portal.ColumnDate)
	if !ok || strings.TrimSpace(rawDate) == "" {
		return time.Time{}, decimal.Zero, fmt.Errorf("%w: %s", ErrMissingField, portal.ColumnDate)
	}
	start, err := portal.ParseDate(rawDate)
	if err != nil {
		return time.Time{}, decimal.Zero, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	rawValue, ok := row.Lookup(series.Column)
	if !ok || strings.TrimSpace(rawValue) == "" {
		return time.Time{}, decimal.Zero, fmt.Errorf("%w: %s", ErrMissingField, series.Column)
	}
	value, err := series.Parse(rawValue)
	if err != nil {
		return time.Time{}, decimal.Zero, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return start.UTC().Truncate(24 * time.Hour), value, nil
}

func mergeSamePeriod(entries []entry) []entry {
	if len(entries) < 2 {
		return entries
	}
	merged := entries[:1]
	for _, e := range entries[1:] {
		tail := &merged[len(merged)-1]
		if e.start.Equal(tail.start) {
			tail.value = tail.value.Add(e.value)
			continue
		}
		merged = append(merged, e)
	}
	return merged
}
