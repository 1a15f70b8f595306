package models

import (
	"time"

	"gasledger/backend/services/ingest-service/internal/portal"
)

// Snapshot is the raw payload set fetched by the last successful cycle.
type Snapshot struct {
	RunID     string                `json:"run_id"`
	Provider  string                `json:"provider"`
	FetchedAt time.Time             `json:"fetched_at"`
	Usage     []portal.Row          `json:"usage"`
	Billing   []portal.Row          `json:"billing"`
	Payments  []portal.Row          `json:"payments,omitempty"`
	Account   portal.AccountSummary `json:"account"`
}
