package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/middleware"
	"github.com/stemsi/learntrack-backend/internal/response"
	"github.com/stemsi/learntrack-backend/internal/service"
	ws "github.com/stemsi/learntrack-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams proctoring telemetry over a WebSocket.
type WSHandler struct {
	proctoringService *service.ProctoringService
	limiter           *middleware.RateLimiter
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter is the telemetry limiter the
// HTTP route uses, so both transports draw from one per-learner bucket; nil
// disables limiting.
func NewWSHandler(
	proctoringService *service.ProctoringService,
	limiter *middleware.RateLimiter,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		proctoringService: proctoringService,
		limiter:           limiter,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// TelemetryStream godoc
// WS /ws/v1/assessments/:assessment_id/telemetry
// Accepts telemetry reports for one session and answers a finalize action
// with the recorded verdict.
func (h *WSHandler) TelemetryStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	assessmentID, ok := pathID(c, "assessment_id")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.Learner()
	wsLog := h.log.With().
		Str("user_id", userID).
		Str("assessment_id", assessmentID).
		Logger()

	wsLog.Info().Msg("Telemetry stream connected")

	// The request context ends with the handler, so the stream owns its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		env, raw, err := ws.ReadEnvelope(conn)
		if err != nil {
			if errors.Is(err, ws.ErrMalformed) {
				ws.WriteError(conn, "malformed message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch env.Action {
		case ws.ActionTelemetry:
			if h.limiter != nil && !h.limiter.Allow(middleware.LearnerBucket(userID)) {
				metrics.TelemetryRateLimited.WithLabelValues("websocket").Inc()
				ws.WriteError(conn, "rate limit exceeded")
				continue
			}
			h.handleTelemetry(ctx, conn, wsLog, assessmentID, userID, raw)
		case ws.ActionFinalize:
			if h.handleFinalize(ctx, conn, wsLog, assessmentID, userID) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finalized"),
					time.Now().Add(time.Second))
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

func (h *WSHandler) handleTelemetry(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, assessmentID, userID string, raw []byte) {
	var req ws.TelemetryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "metrics must be an object of numbers")
		return
	}

	if err := h.proctoringService.Ingest(ctx, assessmentID, userID, req.Metrics); err != nil {
		wsLog.Error().Err(err).Msg("Telemetry ingest error")
		ws.WriteError(conn, "telemetry not recorded")
		return
	}
	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck, Status: "recorded"})
}

// handleFinalize reports whether the session is closed.
func (h *WSHandler) handleFinalize(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, assessmentID, userID string) bool {
	res, err := h.proctoringService.Finalize(ctx, assessmentID, userID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Finalize error")
		if apperror.IsUnavailable(err) {
			ws.WriteError(conn, "storage unavailable, retry finalize")
		} else {
			ws.WriteError(conn, "finalize failed")
		}
		return false
	}
	ws.WriteTyped(conn, ws.ResultResponse{Event: ws.EventResult, Result: res})
	return true
}
