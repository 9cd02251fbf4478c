package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vd4-dee/quiz/internal/stats"
)

const snapshotKey = "stats:snapshot"

// SnapshotCache shares the latest statistics snapshot across nodes so a
// restarted instance can serve dashboards before its own aggregates warm up.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// Store writes the snapshot with the configured TTL.
func (c *SnapshotCache) Store(ctx context.Context, snap stats.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey, data, c.ttl).Err()
}

// Load returns the cached snapshot; the bool reports whether one was present.
func (c *SnapshotCache) Load(ctx context.Context) (stats.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats.Snapshot{}, false, nil
	}
	if err != nil {
		return stats.Snapshot{}, false, err
	}
	var snap stats.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return stats.Snapshot{}, false, err
	}
	return snap, true, nil
}
