package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gasledger/backend/services/ingest-service/internal/statistics"
)

// ErrUnknownSeries is returned for series ids that no statistics.Series defines.
var ErrUnknownSeries = errors.New("repository: unknown series")

// StatisticsStore is the durable home of cumulative series.
type StatisticsStore interface {
	// LastPoint returns the most recent persisted point, or nil when the series is empty.
	LastPoint(ctx context.Context, id statistics.SeriesID) (*statistics.Point, error)
	// Append persists points for series, ignoring periods that already exist.
	// It returns how many points were actually inserted.
	Append(ctx context.Context, series statistics.Series, points []statistics.Point) (int, error)
	// Range returns persisted points with from <= period_start < to in ascending order.
	// A zero from or to leaves that side open.
	Range(ctx context.Context, id statistics.SeriesID, from, to time.Time) ([]statistics.Point, error)
}

func checkSeries(id statistics.SeriesID) error {
	if _, ok := statistics.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSeries, id)
	}
	return nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
