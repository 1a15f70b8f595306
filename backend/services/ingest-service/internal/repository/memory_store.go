package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"gasledger/backend/services/ingest-service/internal/statistics"
)

// MemoryStore keeps series in process. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[statistics.SeriesID][]statistics.Point
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[statistics.SeriesID][]statistics.Point)}
}

// LastPoint implements StatisticsStore.
func (s *MemoryStore) LastPoint(_ context.Context, id statistics.SeriesID) (*statistics.Point, error) {
	if err := checkSeries(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[id]
	if len(points) == 0 {
		return nil, nil
	}
	last := points[len(points)-1]
	return &last, nil
}

// Append implements StatisticsStore.
func (s *MemoryStore) Append(_ context.Context, series statistics.Series, points []statistics.Point) (int, error) {
	if err := checkSeries(series.ID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.series[series.ID]
	seen := make(map[int64]struct{}, len(existing))
	for _, p := range existing {
		seen[p.PeriodStart.Unix()] = struct{}{}
	}

	inserted := 0
	for _, p := range points {
		key := p.PeriodStart.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		p.PeriodStart = p.PeriodStart.UTC()
		existing = append(existing, p)
		inserted++
	}
	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].PeriodStart.Before(existing[j].PeriodStart)
	})
	s.series[series.ID] = existing
	return inserted, nil
}

// Range implements StatisticsStore.
func (s *MemoryStore) Range(_ context.Context, id statistics.SeriesID, from, to time.Time) ([]statistics.Point, error) {
	if err := checkSeries(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []statistics.Point
	for _, p := range s.series[id] {
		if inRange(p.PeriodStart, from, to) {
			out = append(out, p)
		}
	}
	return out, nil
}
