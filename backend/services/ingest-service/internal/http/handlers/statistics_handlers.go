package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/repository"
	"gasledger/backend/services/ingest-service/internal/statistics"
)

// StatisticsHandlers serves persisted series.
type StatisticsHandlers struct {
	store  repository.StatisticsStore
	logger *zap.Logger
}

// NewStatisticsHandlers returns handler.
func NewStatisticsHandlers(store repository.StatisticsStore, logger *zap.Logger) *StatisticsHandlers {
	return &StatisticsHandlers{store: store, logger: logger}
}

// Range handles GET /api/v1/statistics/{series}?from=YYYY-MM-DD&to=YYYY-MM-DD (to is exclusive).
func (h *StatisticsHandlers) Range(w http.ResponseWriter, r *http.Request) {
	series, ok := statistics.Lookup(statistics.SeriesID(r.PathValue("series")))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown series")
		return
	}

	from, err := parseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to, err := parseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	points, err := h.store.Range(r.Context(), series.ID, from, to)
	if err != nil {
		h.logger.Error("statistics range failed", zap.String("series", string(series.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}
	if points == nil {
		points = []statistics.Point{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"series": series.ID,
		"name":   series.Name,
		"unit":   series.Unit,
		"points": points,
	})
}

// Latest handles GET /api/v1/statistics/{series}/latest.
func (h *StatisticsHandlers) Latest(w http.ResponseWriter, r *http.Request) {
	id := statistics.SeriesID(r.PathValue("series"))
	point, err := h.store.LastPoint(r.Context(), id)
	if errors.Is(err, repository.ErrUnknownSeries) {
		writeError(w, http.StatusNotFound, "unknown series")
		return
	}
	if err != nil {
		h.logger.Error("latest point failed", zap.String("series", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}
	if point == nil {
		writeError(w, http.StatusNotFound, "no data yet")
		return
	}
	writeJSON(w, http.StatusOK, point)
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, time.UTC)
}
