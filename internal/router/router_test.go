package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/handler"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/middleware"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/proctoring"
	"github.com/stemsi/learntrack-backend/internal/progress"
	"github.com/stemsi/learntrack-backend/internal/repository/memory"
	"github.com/stemsi/learntrack-backend/internal/router"
	"github.com/stemsi/learntrack-backend/internal/service"
	"github.com/stemsi/learntrack-backend/internal/validator"
	ws "github.com/stemsi/learntrack-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newTestServer(t *testing.T, telemetryRate int) *testServer {
	t.Helper()
	validator.Setup()
	log := zerolog.Nop()

	engine, err := proctoring.NewEngine(proctoring.DefaultRules())
	require.NoError(t, err)

	auth := service.NewAuthService(testSecret)
	ledger := service.NewLedgerService(memory.NewAttemptStore(), time.Second, 3, log)
	progressService := service.NewProgressService(ledger, memory.NewProgressStore(), nil, nil, service.ProgressOptions{
		StoreTimeout:  time.Second,
		MaxCASRetries: 3,
		Weighting:     progress.WeightingMean,
	}, log)
	proctoringService := service.NewProctoringService(engine, memory.NewResultStore(), memory.NewTelemetryBuffer(), time.Second, log)

	limiter := middleware.NewRateLimiter(telemetryRate, time.Minute, middleware.LearnerKey)
	handlers := &router.Handlers{
		Progress:   handler.NewProgressHandler(progressService),
		Proctoring: handler.NewProctoringHandler(proctoringService),
		WS:         handler.NewWSHandler(proctoringService, limiter, log, nil),
		System:     handler.NewSystemHandler(nil, nil, log),
	}
	cfg := &config.Config{GinMode: "test"}

	token, err := auth.IssueToken("learner-1", time.Hour)
	require.NoError(t, err)

	return &testServer{t: t, handler: router.SetupRouter(auth, handlers, limiter, cfg), token: token}
}

func (s *testServer) do(method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 10)
	code, env := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	var report struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, "ok", report.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 10)
	s.do(http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Contains(t, rec.Body.String(), `learntrack_http_request_duration_seconds_count{method="GET",route="/health",status="200"}`)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, 10)
	s.token = ""
	code, env := s.do(http.MethodGet, "/api/v1/progress/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TOKEN_REQUIRED", env.Error.Code)

	s.token = "not-a-jwt"
	code, env = s.do(http.MethodGet, "/api/v1/progress/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)
}

func TestProgressFlow(t *testing.T) {
	s := newTestServer(t, 10)

	code, env := s.do(http.MethodGet, "/api/v1/progress/playlists/pl-1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PLAYLIST_NOT_FOUND", env.Error.Code)

	code, env = s.do(http.MethodPut, "/api/v1/progress/playlists/pl-1/videos", map[string]interface{}{
		"playlist": map[string]string{"title": "Algebra"},
		"videos": []map[string]interface{}{
			{"videoId": "v2", "watchTime": 10, "totalDuration": 100},
			{"videoId": "v1", "watchTime": 100, "totalDuration": 100, "isCompleted": true},
		},
	})
	require.Equal(t, http.StatusOK, code, string(env.Data))

	var doc model.PlaylistProgress
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, []string{"v2", "v1"}, doc.Videos.Keys())
	assert.Equal(t, 1, doc.CompletedVideos)
	assert.Equal(t, 2, doc.TotalVideos)
	assert.Equal(t, "Algebra", doc.Title)

	code, env = s.do(http.MethodPost, "/api/v1/progress/playlists/pl-1/videos/v2/attempts", map[string]interface{}{
		"testScore":    70,
		"assessmentId": "quiz-2",
	})
	require.Equal(t, http.StatusCreated, code, string(env.Data))

	var recorded struct {
		Attempt        model.AssessmentAttempt `json:"attempt"`
		Playlist       model.PlaylistProgress  `json:"playlist"`
		RefreshPending bool                    `json:"refreshPending"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &recorded))
	assert.Equal(t, 1, recorded.Attempt.AttemptNumber)
	assert.False(t, recorded.RefreshPending)
	v2, ok := recorded.Playlist.Videos.Get("v2")
	require.True(t, ok)
	assert.Equal(t, 70.0, v2.BestScore)

	code, env = s.do(http.MethodGet, "/api/v1/progress/videos/v2/attempts", nil)
	require.Equal(t, http.StatusOK, code)
	var ledger struct {
		Attempts []model.AssessmentAttempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ledger))
	assert.Len(t, ledger.Attempts, 1)

	code, env = s.do(http.MethodGet, "/api/v1/progress/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats model.ProgressStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalPlaylists)
	assert.Equal(t, 2, stats.TotalVideos)
	assert.Equal(t, 1, stats.CompletedVideos)

	code, env = s.do(http.MethodGet, "/api/v1/progress/playlists", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Playlists []model.PlaylistProgress `json:"playlists"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Playlists, 1)
}

func TestHeartbeatAppliedInline(t *testing.T) {
	s := newTestServer(t, 10)

	code, _ := s.do(http.MethodPost, "/api/v1/progress/playlists/pl-1/videos/v1/heartbeat", map[string]interface{}{
		"watchTime":     45,
		"totalDuration": 90,
	})
	require.Equal(t, http.StatusAccepted, code)

	code, env := s.do(http.MethodGet, "/api/v1/progress/playlists/pl-1", nil)
	require.Equal(t, http.StatusOK, code)
	var doc model.PlaylistProgress
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	v1, ok := doc.Videos.Get("v1")
	require.True(t, ok)
	assert.Equal(t, 45.0, v1.WatchTime)
	assert.Equal(t, 50.0, v1.CompletionPercentage)
}

func TestProgressValidation(t *testing.T) {
	s := newTestServer(t, 10)

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode string
	}{
		{
			name:     "negative watch time",
			method:   http.MethodPut,
			path:     "/api/v1/progress/playlists/pl-1/videos",
			body:     map[string]interface{}{"videos": []map[string]interface{}{{"videoId": "v1", "watchTime": -1}}},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "derived field in update",
			method:   http.MethodPut,
			path:     "/api/v1/progress/playlists/pl-1/videos",
			body:     map[string]interface{}{"videos": []map[string]interface{}{{"videoId": "v1", "bestScore": 100}}},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "missing video list",
			method:   http.MethodPut,
			path:     "/api/v1/progress/playlists/pl-1/videos",
			body:     map[string]interface{}{},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "score out of range",
			method:   http.MethodPost,
			path:     "/api/v1/progress/playlists/pl-1/videos/v1/attempts",
			body:     map[string]interface{}{"testScore": 101, "assessmentId": "q"},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "attempt number gap",
			method:   http.MethodPost,
			path:     "/api/v1/progress/playlists/pl-1/videos/v1/attempts",
			body:     map[string]interface{}{"attemptNumber": 3, "testScore": 50, "assessmentId": "q"},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "unsafe id",
			method:   http.MethodGet,
			path:     "/api/v1/progress/playlists/bad%20id",
			wantCode: "INVALID_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestProctoringFlow(t *testing.T) {
	s := newTestServer(t, 10)

	code, env := s.do(http.MethodGet, "/api/v1/assessments/quiz-1/proctoring", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PROCTORING_RESULT_NOT_FOUND", env.Error.Code)

	for _, delta := range []map[string]float64{
		{"tabSwitches": 6, "pasteEvents": 1},
		{"tabSwitches": 6},
	} {
		code, _ := s.do(http.MethodPost, "/api/v1/assessments/quiz-1/telemetry", delta)
		require.Equal(t, http.StatusAccepted, code)
	}

	code, env = s.do(http.MethodPost, "/api/v1/assessments/quiz-1/proctoring/finalize", nil)
	require.Equal(t, http.StatusOK, code)
	var first model.ProctoringResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, []string{proctoring.FlagExcessiveTabSwitching, proctoring.FlagPasteDetected}, first.Flags)
	assert.Equal(t, model.SeverityHigh, first.Severity)
	assert.Equal(t, "learner-1", first.UserID)

	// Telemetry after finalize does not change the recorded verdict.
	code, _ = s.do(http.MethodPost, "/api/v1/assessments/quiz-1/telemetry", map[string]float64{"copyEvents": 9})
	require.Equal(t, http.StatusAccepted, code)

	code, env = s.do(http.MethodPost, "/api/v1/assessments/quiz-1/proctoring/finalize", nil)
	require.Equal(t, http.StatusOK, code)
	var second model.ProctoringResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, first.IntegrityScore, second.IntegrityScore)
	assert.Equal(t, first.Flags, second.Flags)

	code, env = s.do(http.MethodGet, "/api/v1/assessments/quiz-1/proctoring", nil)
	require.Equal(t, http.StatusOK, code)
	var stored model.ProctoringResult
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Equal(t, first.Flags, stored.Flags)
}

func TestTelemetryToleratesUnknownKeys(t *testing.T) {
	s := newTestServer(t, 10)

	code, _ := s.do(http.MethodPost, "/api/v1/assessments/quiz-2/telemetry", map[string]interface{}{
		"pasteEvents": 1,
		"sdkVersion":  "3.2.0",
	})
	require.Equal(t, http.StatusAccepted, code)

	code, env := s.do(http.MethodPost, "/api/v1/proctoring/score", map[string]interface{}{
		"assessmentId": "quiz-2",
		"metrics":      map[string]interface{}{"pasteEvents": 1, "heartRate": 80},
		"clientClock":  "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, code)
	var res model.ProctoringResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []string{proctoring.FlagPasteDetected}, res.Flags)
}

func TestStatelessScore(t *testing.T) {
	s := newTestServer(t, 10)

	code, env := s.do(http.MethodPost, "/api/v1/proctoring/score", map[string]interface{}{
		"assessmentId": "quiz-9",
		"metrics":      map[string]float64{"pasteEvents": 1},
	})
	require.Equal(t, http.StatusOK, code)

	var res model.ProctoringResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "quiz-9", res.AssessmentID)
	assert.InDelta(t, 97.0, res.IntegrityScore, 1e-9)
	assert.Equal(t, []string{proctoring.FlagPasteDetected}, res.Flags)
	assert.Equal(t, model.SeverityMedium, res.Severity)
}

func TestTelemetryRateLimited(t *testing.T) {
	s := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		code, _ := s.do(http.MethodPost, "/api/v1/assessments/quiz-1/telemetry", map[string]float64{"copyEvents": 1})
		require.Equal(t, http.StatusAccepted, code)
	}
	code, env := s.do(http.MethodPost, "/api/v1/assessments/quiz-1/telemetry", map[string]float64{"copyEvents": 1})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)

	// Other routes are not limited.
	code, _ = s.do(http.MethodGet, "/api/v1/progress/stats", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestTelemetryStream(t *testing.T) {
	s := newTestServer(t, 10)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/assessments/quiz-ws/telemetry?token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	var pong ws.PongResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, ws.EventPong, pong.Event)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var bad ws.ErrorResponse
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, ws.EventError, bad.Event)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":  "telemetry",
		"metrics": map[string]float64{"copyEvents": 4},
	}))
	var ack ws.AckResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, ws.EventAck, ack.Event)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "finalize"}))
	var result ws.ResultResponse
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, ws.EventResult, result.Event)
	require.NotNil(t, result.Result)
	assert.Equal(t, []string{proctoring.FlagCopyDetected}, result.Result.Flags)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestTelemetryStreamSharesRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	limitedWS := metrics.TelemetryRateLimited.WithLabelValues("websocket")
	before := testutil.ToFloat64(limitedWS)

	code, _ := s.do(http.MethodPost, "/api/v1/assessments/quiz-ws/telemetry", map[string]float64{"copyEvents": 1})
	require.Equal(t, http.StatusAccepted, code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/assessments/quiz-ws/telemetry?token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	telemetry := map[string]interface{}{"action": "telemetry", "metrics": map[string]float64{"copyEvents": 1}}

	require.NoError(t, conn.WriteJSON(telemetry))
	var ack ws.AckResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, ws.EventAck, ack.Event)

	require.NoError(t, conn.WriteJSON(telemetry))
	var limited ws.ErrorResponse
	require.NoError(t, conn.ReadJSON(&limited))
	assert.Equal(t, ws.EventError, limited.Event)
	assert.Equal(t, "rate limit exceeded", limited.Error)
	assert.Equal(t, before+1, testutil.ToFloat64(limitedWS))

	// The stream stays open for other actions.
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	var pong ws.PongResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, ws.EventPong, pong.Event)
}

func TestTelemetryStreamRequiresToken(t *testing.T) {
	s := newTestServer(t, 10)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/assessments/quiz-ws/telemetry"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
