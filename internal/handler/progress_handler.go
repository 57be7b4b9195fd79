package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/middleware"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/response"
	"github.com/stemsi/learntrack-backend/internal/service"
	"github.com/stemsi/learntrack-backend/internal/validator"
)

// ProgressHandler serves learner progress and the assessment attempt ledger.
type ProgressHandler struct {
	progressService *service.ProgressService
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progressService *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progressService: progressService}
}

// ListPlaylists godoc
// GET /api/v1/progress/playlists
func (h *ProgressHandler) ListPlaylists(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	list, err := h.progressService.ListPlaylists(c.Request.Context(), claims.Learner())
	if err != nil {
		failFromError(c, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"playlists": list})
}

// GetPlaylist godoc
// GET /api/v1/progress/playlists/:playlist_id
func (h *ProgressHandler) GetPlaylist(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	playlistID, ok := pathID(c, "playlist_id")
	if !ok {
		return
	}

	p, err := h.progressService.GetPlaylist(c.Request.Context(), claims.Learner(), playlistID)
	if err != nil {
		failFromError(c, err, response.ErrPlaylistNotFound)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// ApplyVideos godoc
// PUT /api/v1/progress/playlists/:playlist_id/videos
// Upserts a video list; the first call creates the playlist document.
func (h *ProgressHandler) ApplyVideos(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	playlistID, ok := pathID(c, "playlist_id")
	if !ok {
		return
	}

	var req model.ApplyVideosRequest
	if fields := validator.BindStrict(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.progressService.ApplyVideos(c.Request.Context(), claims.Learner(), playlistID, req.Videos, req.Playlist)
	if err != nil {
		failFromError(c, err, response.ErrPlaylistNotFound)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// Heartbeat godoc
// POST /api/v1/progress/playlists/:playlist_id/videos/:video_id/heartbeat
// Accepts a watch-time report; it may be applied asynchronously.
func (h *ProgressHandler) Heartbeat(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	playlistID, ok := pathID(c, "playlist_id")
	if !ok {
		return
	}
	videoID, ok := pathID(c, "video_id")
	if !ok {
		return
	}

	var req model.HeartbeatRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.progressService.Heartbeat(c.Request.Context(), model.Heartbeat{
		UserID:        claims.Learner(),
		PlaylistID:    playlistID,
		VideoID:       videoID,
		WatchTime:     req.WatchTime,
		TotalDuration: req.TotalDuration,
	})
	if err != nil {
		failFromError(c, err, response.ErrPlaylistNotFound)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"status": "accepted"})
}

// RecordAttempt godoc
// POST /api/v1/progress/playlists/:playlist_id/videos/:video_id/attempts
// Appends an attempt to the ledger and refreshes the playlist.
func (h *ProgressHandler) RecordAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	playlistID, ok := pathID(c, "playlist_id")
	if !ok {
		return
	}
	videoID, ok := pathID(c, "video_id")
	if !ok {
		return
	}

	var req model.RecordAttemptRequest
	if fields := validator.BindStrict(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, p, err := h.progressService.RecordAttempt(c.Request.Context(), claims.Learner(), playlistID, videoID, req.VideoTitle, req.ToAttempt())
	switch {
	case errors.Is(err, service.ErrRefreshPending):
		response.Success(c, http.StatusCreated, gin.H{"attempt": rec, "playlist": nil, "refreshPending": true})
		return
	case err != nil:
		failFromError(c, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"attempt": rec, "playlist": p, "refreshPending": false})
}

// ListAttempts godoc
// GET /api/v1/progress/videos/:video_id/attempts
func (h *ProgressHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	videoID, ok := pathID(c, "video_id")
	if !ok {
		return
	}

	attempts, err := h.progressService.ListAttempts(c.Request.Context(), claims.Learner(), videoID)
	if err != nil {
		failFromError(c, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// Stats godoc
// GET /api/v1/progress/stats
func (h *ProgressHandler) Stats(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	stats, err := h.progressService.Stats(c.Request.Context(), claims.Learner())
	if err != nil {
		failFromError(c, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
