package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/models"
	"gasledger/backend/services/ingest-service/internal/portal"
	"gasledger/backend/services/ingest-service/internal/projection"
)

// SnapshotSource yields the last successful snapshot, or nil before the first cycle.
type SnapshotSource interface {
	Latest(ctx context.Context) (*models.Snapshot, error)
}

// SnapshotHandlers serve values derived from the latest fetched snapshot.
type SnapshotHandlers struct {
	source SnapshotSource
	logger *zap.Logger
}

// NewSnapshotHandlers returns handler.
func NewSnapshotHandlers(source SnapshotSource, logger *zap.Logger) *SnapshotHandlers {
	return &SnapshotHandlers{source: source, logger: logger}
}

// Projections handles GET /api/v1/projections.
func (h *SnapshotHandlers) Projections(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, projection.FromSnapshot(*snapshot))
}

// Usage handles GET /api/v1/usage.
func (h *SnapshotHandlers) Usage(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.latest(w, r)
	if !ok {
		return
	}
	records, skipped := portal.ParseUsageRecords(snapshot.Usage)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     snapshot.RunID,
		"fetched_at": snapshot.FetchedAt,
		"records":    records,
		"skipped":    skipped,
	})
}

func (h *SnapshotHandlers) latest(w http.ResponseWriter, r *http.Request) (*models.Snapshot, bool) {
	snapshot, err := h.source.Latest(r.Context())
	if err != nil {
		h.logger.Error("snapshot read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return nil, false
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "no snapshot yet")
		return nil, false
	}
	return snapshot, true
}
