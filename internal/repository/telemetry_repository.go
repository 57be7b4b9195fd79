package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// TelemetryRepository accumulates in-flight session telemetry in a Redis
// hash and queues each raw delta for the audit worker.
type TelemetryRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTelemetryRepository creates a new TelemetryRepository.
func NewTelemetryRepository(rdb *redis.Client, ttl time.Duration) *TelemetryRepository {
	return &TelemetryRepository{rdb: rdb, ttl: ttl}
}

// Add increments the accumulator fields and enqueues the raw delta in one
// MULTI/EXEC so the hash and the audit trail never diverge.
func (r *TelemetryRepository) Add(ctx context.Context, assessmentID, userID string, fields map[string]float64, raw model.TelemetryDelta) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}
	event, err := json.Marshal(model.TelemetryEvent{
		AssessmentID: assessmentID,
		UserID:       userID,
		Timestamp:    time.Now().Unix(),
		Payload:      string(payload),
	})
	if err != nil {
		return fmt.Errorf("encode telemetry event: %w", err)
	}

	key := config.CacheKey.TelemetryKey(assessmentID, userID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for name, v := range fields {
			pipe.HIncrByFloat(ctx, key, name, v)
		}
		pipe.Expire(ctx, key, r.ttl)
		pipe.RPush(ctx, config.WorkerKey.PersistTelemetryQueue, event)
		return nil
	})
	return err
}

// Fields returns the accumulated hash. A missing key yields an empty map.
func (r *TelemetryRepository) Fields(ctx context.Context, assessmentID, userID string) (map[string]float64, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.TelemetryKey(assessmentID, userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out, nil
}

// Clear drops the accumulator after the session is finalized.
func (r *TelemetryRepository) Clear(ctx context.Context, assessmentID, userID string) error {
	return r.rdb.Del(ctx, config.CacheKey.TelemetryKey(assessmentID, userID)).Err()
}
