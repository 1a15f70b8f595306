package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/scheduler"
	"gasledger/backend/services/ingest-service/internal/service"
)

// JobRunner runs a registered job synchronously.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// NewRefreshHandler returns POST /api/v1/refresh handler. It runs job through runner and
// reports the run id of the snapshot it produced.
func NewRefreshHandler(runner JobRunner, job string, snapshots SnapshotSource, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// a dropped client must not abort a cycle halfway through its writes
		ctx := context.WithoutCancel(r.Context())

		err := runner.RunNow(ctx, job)
		var updateErr *service.UpdateFailedError
		switch {
		case errors.Is(err, scheduler.ErrBusy):
			writeError(w, http.StatusConflict, "refresh already in progress")
			return
		case errors.As(err, &updateErr):
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": "update failed",
				"stage": string(updateErr.Stage),
			})
			return
		case err != nil:
			logger.Error("manual refresh failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "refresh failed")
			return
		}

		payload := map[string]interface{}{"status": "ok"}
		if snapshot, err := snapshots.Latest(ctx); err == nil && snapshot != nil {
			payload["run_id"] = snapshot.RunID
			payload["fetched_at"] = snapshot.FetchedAt
		}
		writeJSON(w, http.StatusOK, payload)
	}
}
