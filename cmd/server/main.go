package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/database"
	"github.com/stemsi/learntrack-backend/internal/handler"
	"github.com/stemsi/learntrack-backend/internal/logger"
	"github.com/stemsi/learntrack-backend/internal/middleware"
	"github.com/stemsi/learntrack-backend/internal/proctoring"
	"github.com/stemsi/learntrack-backend/internal/progress"
	"github.com/stemsi/learntrack-backend/internal/repository"
	"github.com/stemsi/learntrack-backend/internal/repository/memory"
	"github.com/stemsi/learntrack-backend/internal/router"
	"github.com/stemsi/learntrack-backend/internal/service"
	"github.com/stemsi/learntrack-backend/internal/validator"
	"github.com/stemsi/learntrack-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store_driver", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting LearnTrack Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Scoring Rules ─────────────────────────────────────────────────
	rules, err := proctoring.LoadRules(cfg.ProctoringRulesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ProctoringRulesPath).Msg("Failed to load proctoring rules")
	}
	if cfg.SeverityHighBound >= 0 {
		rules.HighBound = cfg.SeverityHighBound
	}
	if cfg.SeverityMediumBound >= 0 {
		rules.MediumBound = cfg.SeverityMediumBound
	}
	engine, err := proctoring.NewEngine(rules)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid proctoring rules")
	}

	weighting, err := progress.ParseWeighting(cfg.ProgressWeighting)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid PROGRESS_WEIGHTING")
	}

	// ─── Stores ────────────────────────────────────────────────────────
	var (
		pool       *pgxpool.Pool
		rdb        *redis.Client
		attempts   service.AttemptStore
		documents  service.ProgressStore
		results    service.ResultStore
		buffer     service.TelemetryBuffer
		statsCache service.StatsCache
		heartbeats service.HeartbeatQueue
	)

	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("Using in-memory stores; data is lost on restart")
		attempts = memory.NewAttemptStore()
		documents = memory.NewProgressStore()
		results = memory.NewResultStore()
		buffer = memory.NewTelemetryBuffer()
	case "postgres":
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		attempts = repository.NewAttemptRepository(pool)
		documents = repository.NewProgressRepository(pool)
		results = repository.NewProctoringRepository(pool)
		buffer = repository.NewTelemetryRepository(rdb, cfg.TelemetryTTL)
		statsCache = repository.NewStatsCache(rdb, cfg.StatsCacheTTL, log)
		heartbeats = repository.NewHeartbeatQueue(rdb)
	default:
		log.Fatal().Str("store_driver", cfg.StoreDriver).Msg("STORE_DRIVER must be postgres or memory")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	ledgerService := service.NewLedgerService(attempts, cfg.StoreTimeout, cfg.MaxCASRetries, log)
	progressService := service.NewProgressService(ledgerService, documents, statsCache, heartbeats, service.ProgressOptions{
		StoreTimeout:        cfg.StoreTimeout,
		MaxCASRetries:       cfg.MaxCASRetries,
		RecentActivityLimit: cfg.RecentActivityLimit,
		Weighting:           weighting,
	}, log)
	proctoringService := service.NewProctoringService(engine, results, buffer, cfg.StoreTimeout, log)

	// Shared by the HTTP and websocket telemetry paths.
	limiter := middleware.NewRateLimiter(cfg.TelemetryRateLimit, time.Minute, middleware.LearnerKey)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Progress:   handler.NewProgressHandler(progressService),
		Proctoring: handler.NewProctoringHandler(proctoringService),
		WS:         handler.NewWSHandler(proctoringService, limiter, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	if rdb != nil {
		heartbeatWorker := worker.NewHeartbeatWorker(progressService, rdb, log)
		telemetryWorker := worker.NewTelemetryWorker(pool, rdb, log)

		workers.Add(2)
		go func() {
			defer workers.Done()
			heartbeatWorker.Start(workerCtx)
		}()
		go func() {
			defer workers.Done()
			telemetryWorker.Start(workerCtx)
		}()
	}

	go limiter.Run(workerCtx.Done())

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; each drains its in-memory batch on exit.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
