package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// eventWriter is the slice of *pgxpool.Pool the telemetry worker writes with.
type eventWriter interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// TelemetryWorker drains persist_telemetry_queue into the proctoring_events
// audit table in batches.
type TelemetryWorker struct {
	db      eventWriter
	queue   Queue
	backoff time.Duration
	log     zerolog.Logger
}

func NewTelemetryWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *TelemetryWorker {
	return &TelemetryWorker{
		db:      pool,
		queue:   NewRedisQueue(rdb, config.WorkerKey.PersistTelemetryQueue),
		backoff: 2 * time.Second,
		log:     log.With().Str("component", "telemetry_worker").Logger(),
	}
}

func (w *TelemetryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("TelemetryWorker started")

	buffer := make([]*model.TelemetryEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.queue.Next(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}

		var event model.TelemetryEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed telemetry event")
			continue
		}

		buffer = append(buffer, &event)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *TelemetryWorker) flushSafe(ctx context.Context, batch []*model.TelemetryEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *TelemetryWorker) bulkInsert(ctx context.Context, batch []*model.TelemetryEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []interface{}{
			e.AssessmentID, e.UserID, e.Payload, time.Unix(e.Timestamp, 0).UTC(),
		})
	}

	_, err := w.db.CopyFrom(
		ctx,
		pgx.Identifier{"proctoring_events"},
		[]string{"assessment_id", "user_id", "event_data", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *TelemetryWorker) fallbackInsert(ctx context.Context, batch []*model.TelemetryEvent) {
	requeueList := make([]*model.TelemetryEvent, 0)

	for _, e := range batch {
		if !json.Valid([]byte(e.Payload)) {
			w.log.Error().Str("assessment_id", e.AssessmentID).Msg("Dropping telemetry event with invalid payload")
			continue
		}

		_, err := w.db.Exec(ctx,
			`INSERT INTO proctoring_events (assessment_id, user_id, event_data, recorded_at)
			 VALUES ($1, $2, $3::jsonb, $4)`,
			e.AssessmentID, e.UserID, e.Payload, time.Unix(e.Timestamp, 0).UTC(),
		)
		if err != nil {
			w.log.Error().Err(err).Str("user_id", e.UserID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *TelemetryWorker) requeue(ctx context.Context, items []*model.TelemetryEvent) {
	jobs := make([]string, 0, len(items))
	for _, e := range items {
		data, _ := json.Marshal(e)
		jobs = append(jobs, string(data))
	}
	if err := w.queue.Push(ctx, jobs...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue telemetry events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed telemetry events")
	// Back off so a hard database outage does not spin the loop.
	sleepCtx(ctx, w.backoff)
}

func (w *TelemetryWorker) shutdown(buffer []*model.TelemetryEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
