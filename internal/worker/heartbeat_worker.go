package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// HeartbeatApplier folds a batch of heartbeats into playlist progress and
// returns the ones that should be retried.
type HeartbeatApplier interface {
	ApplyHeartbeats(ctx context.Context, batch []model.Heartbeat) []model.Heartbeat
}

// HeartbeatWorker consumes watch_heartbeat_queue, coalescing bursts of player
// heartbeats into one progress write per playlist.
type HeartbeatWorker struct {
	applier    HeartbeatApplier
	queue      Queue
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewHeartbeatWorker creates a new HeartbeatWorker.
func NewHeartbeatWorker(applier HeartbeatApplier, rdb *redis.Client, log zerolog.Logger) *HeartbeatWorker {
	return &HeartbeatWorker{
		applier:    applier,
		queue:      NewRedisQueue(rdb, config.WorkerKey.WatchHeartbeatQueue),
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "heartbeat_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *HeartbeatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]model.Heartbeat, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(buffer)
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		raw, err := w.queue.Next(ctx, PollTimeout)
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Queue read error")
				sleepCtx(ctx, time.Second)
			}
			continue
		}

		var hb model.Heartbeat
		if err := json.Unmarshal([]byte(raw), &hb); err != nil {
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed heartbeat")
			continue
		}
		buffer = append(buffer, hb)
	}
}

func (w *HeartbeatWorker) flush(ctx context.Context, batch []model.Heartbeat) {
	failed := w.applier.ApplyHeartbeats(ctx, batch)
	if len(failed) == 0 {
		return
	}

	w.log.Error().Int("count", len(failed)).Dur("retry_in", w.retryDelay).Msg("Persist error, requeueing")
	if w.requeue(ctx, failed) {
		sleepCtx(ctx, w.retryDelay)
	}
}

func (w *HeartbeatWorker) requeue(ctx context.Context, items []model.Heartbeat) bool {
	jobs := make([]string, 0, len(items))
	for _, hb := range items {
		data, _ := json.Marshal(hb)
		jobs = append(jobs, string(data))
	}
	if err := w.queue.Push(ctx, jobs...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue heartbeats")
		return false
	}
	metrics.HeartbeatsRequeued.Add(float64(len(items)))
	return true
}

// drain applies the buffer and whatever is left in the queue before exit.
func (w *HeartbeatWorker) drain(buffer []model.Heartbeat) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		raw, err := w.queue.TryNext(ctx)
		if err != nil {
			break
		}
		var hb model.Heartbeat
		if err := json.Unmarshal([]byte(raw), &hb); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}
		buffer = append(buffer, hb)
	}

	if len(buffer) == 0 {
		return
	}
	if failed := w.applier.ApplyHeartbeats(ctx, buffer); len(failed) > 0 {
		w.requeue(ctx, failed)
	}
	w.log.Info().Int("count", len(buffer)).Msg("Drained remaining heartbeats")
}
