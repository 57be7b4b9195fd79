package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/handler"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/middleware"
	"github.com/stemsi/learntrack-backend/internal/response"
	"github.com/stemsi/learntrack-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Progress   *handler.ProgressHandler
	Proctoring *handler.ProctoringHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// telemetryLimiter may be nil to disable rate limiting of telemetry reports.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	telemetryLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(), metrics.Middleware())
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.Skipper = middleware.SkipPaths("/health", "/metrics")
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	api.Use(middleware.RequireLearnerJWT(authService), middleware.NoStore())

	// ─── 1. Progress ───────────────────────────────────────────────────
	progress := api.Group("/progress")
	{
		progress.GET("/playlists", handlers.Progress.ListPlaylists)
		progress.GET("/playlists/:playlist_id", handlers.Progress.GetPlaylist)
		progress.PUT("/playlists/:playlist_id/videos", handlers.Progress.ApplyVideos)
		progress.POST("/playlists/:playlist_id/videos/:video_id/heartbeat", handlers.Progress.Heartbeat)
		progress.POST("/playlists/:playlist_id/videos/:video_id/attempts", handlers.Progress.RecordAttempt)
		progress.GET("/videos/:video_id/attempts", handlers.Progress.ListAttempts)
		progress.GET("/stats", handlers.Progress.Stats)
	}

	// ─── 2. Proctoring ─────────────────────────────────────────────────
	telemetry := []gin.HandlerFunc{handlers.Proctoring.IngestTelemetry}
	if telemetryLimiter != nil {
		telemetry = append([]gin.HandlerFunc{telemetryLimiter.Middleware()}, telemetry...)
	}
	assessments := api.Group("/assessments/:assessment_id")
	{
		assessments.POST("/telemetry", telemetry...)
		assessments.POST("/proctoring/finalize", handlers.Proctoring.Finalize)
		assessments.GET("/proctoring", handlers.Proctoring.GetResult)
	}
	api.POST("/proctoring/score", handlers.Proctoring.Score)

	// ─── 3. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerWSAuth(authService))
	{
		ws.GET("/assessments/:assessment_id/telemetry", handlers.WS.TelemetryStream)
	}

	return router
}
