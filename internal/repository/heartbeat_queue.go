package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// HeartbeatQueue pushes watch-time heartbeats onto a Redis list drained by
// the heartbeat worker.
type HeartbeatQueue struct {
	rdb *redis.Client
}

// NewHeartbeatQueue creates a new HeartbeatQueue.
func NewHeartbeatQueue(rdb *redis.Client) *HeartbeatQueue {
	return &HeartbeatQueue{rdb: rdb}
}

func (q *HeartbeatQueue) Enqueue(ctx context.Context, hb model.Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.WatchHeartbeatQueue, data).Err()
}
