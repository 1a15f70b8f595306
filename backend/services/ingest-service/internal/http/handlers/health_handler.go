package handlers

import (
	"net/http"

	"gasledger/backend/services/ingest-service/internal/scheduler"
)

// JobLister reports scheduled job status.
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// NewHealthHandler returns GET /health handler. jobs may be nil.
func NewHealthHandler(jobs JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{"status": "ok"}
		if jobs != nil {
			payload["jobs"] = jobs.Jobs()
		}
		writeJSON(w, http.StatusOK, payload)
	}
}
