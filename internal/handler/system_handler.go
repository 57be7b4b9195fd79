package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports liveness, dependency health and worker backlog.
// pool and rdb are nil when the server runs on in-memory stores.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Checks     map[string]string `json:"checks"`
	Queues     map[string]int64  `json:"queues,omitempty"`
	Goroutines int               `json:"goroutines"`
	HeapAlloc  uint64            `json:"heap_alloc"`
	GoVersion  string            `json:"go_version"`
}

// Health godoc
// GET /health
// Returns 503 when a configured dependency does not answer.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Checks:     make(map[string]string),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	report.HeapAlloc = ms.HeapAlloc

	if h.pool != nil {
		report.Checks["postgres"] = h.check(h.pool.Ping(ctx), "postgres")
	}
	if h.rdb != nil {
		report.Checks["redis"] = h.check(h.rdb.Ping(ctx).Err(), "redis")

		pipe := h.rdb.Pipeline()
		telemetryCmd := pipe.LLen(ctx, config.WorkerKey.PersistTelemetryQueue)
		heartbeatCmd := pipe.LLen(ctx, config.WorkerKey.WatchHeartbeatQueue)
		if _, err := pipe.Exec(ctx); err == nil {
			report.Queues = map[string]int64{
				config.WorkerKey.PersistTelemetryQueue: telemetryCmd.Val(),
				config.WorkerKey.WatchHeartbeatQueue:   heartbeatCmd.Val(),
			}
		}
	}

	status := http.StatusOK
	for _, v := range report.Checks {
		if v != "ok" {
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	response.Success(c, status, report)
}

func (h *SystemHandler) check(err error, name string) string {
	if err != nil {
		h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
		return "unavailable"
	}
	return "ok"
}
