package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gasledger/backend/services/ingest-service/internal/models"
)

// SnapshotStore caches the latest snapshot per provider.
type SnapshotStore struct {
	client   *redis.Client
	provider string
	ttl      time.Duration
}

// NewSnapshotStore returns redis-backed store. A zero ttl keeps the key forever.
func NewSnapshotStore(client *redis.Client, provider string, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, provider: provider, ttl: ttl}
}

func (s *SnapshotStore) key() string {
	return fmt.Sprintf("gasledger:snapshot:%s", s.provider)
}

// Save replaces the cached snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snapshot models.Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(), data, s.ttl).Err()
}

// Latest returns the cached snapshot, or nil when nothing is cached.
func (s *SnapshotStore) Latest(ctx context.Context) (*models.Snapshot, error) {
	result, err := s.client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(result)
}

func encodeSnapshot(snapshot models.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}
