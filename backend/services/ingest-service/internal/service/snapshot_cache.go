package service

import (
	"context"
	"sync"

	"gasledger/backend/services/ingest-service/internal/models"
)

// SnapshotCache keeps the payloads of the last successful cycle for projections.
type SnapshotCache interface {
	Save(ctx context.Context, snapshot models.Snapshot) error
	// Latest returns nil when no cycle has succeeded yet.
	Latest(ctx context.Context) (*models.Snapshot, error)
}

// MemorySnapshotCache is the in-process SnapshotCache used when redis is not configured.
type MemorySnapshotCache struct {
	mu       sync.RWMutex
	snapshot *models.Snapshot
}

// NewMemorySnapshotCache returns an empty cache.
func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{}
}

// Save implements SnapshotCache.
func (c *MemorySnapshotCache) Save(_ context.Context, snapshot models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = &snapshot
	return nil
}

// Latest implements SnapshotCache.
func (c *MemorySnapshotCache) Latest(_ context.Context) (*models.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, nil
	}
	cp := *c.snapshot
	return &cp, nil
}
