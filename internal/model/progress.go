package model

import (
	"time"

	"github.com/google/uuid"
)

// VideoProgress is the per-video summary owned by a PlaylistProgress.
type VideoProgress struct {
	VideoID              string              `json:"videoId"`
	Title                string              `json:"title"`
	IsCompleted          bool                `json:"isCompleted"`
	WatchTime            float64             `json:"watchTime"`
	TotalDuration        float64             `json:"totalDuration"`
	CompletionPercentage float64             `json:"completionPercentage"`
	Attempts             []AssessmentAttempt `json:"attempts"`
	BestScore            float64             `json:"bestScore"`
	AverageScore         float64             `json:"averageScore"`
	TotalAttempts        int                 `json:"totalAttempts"`
}

// Clone returns a deep copy of v.
func (v VideoProgress) Clone() VideoProgress {
	if v.Attempts != nil {
		attempts := make([]AssessmentAttempt, len(v.Attempts))
		copy(attempts, v.Attempts)
		v.Attempts = attempts
	}
	return v
}

// PlaylistProgress is the versioned per-(user, playlist) progress document.
// It is persisted as a single document and replaced with compare-and-swap on
// Version.
type PlaylistProgress struct {
	ID              uuid.UUID  `json:"id"`
	UserID          string     `json:"userId"`
	PlaylistID      string     `json:"playlistId"`
	Title           string     `json:"title,omitempty"`
	Thumbnail       string     `json:"thumbnail,omitempty"`
	Videos          *VideoMap  `json:"videos"`
	OverallProgress float64    `json:"overallProgress"`
	CompletedVideos int        `json:"completedVideos"`
	TotalVideos     int        `json:"totalVideos"`
	AverageScore    float64    `json:"averageScore"`
	TotalTimeSpent  float64    `json:"totalTimeSpent"`
	LastAccessed    time.Time  `json:"lastAccessed"`
	IsCompleted     bool       `json:"isCompleted"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Version         int64      `json:"version"`
}

// NewPlaylistProgress returns an empty document for a first interaction.
func NewPlaylistProgress(userID, playlistID string, now time.Time) *PlaylistProgress {
	return &PlaylistProgress{
		ID:           uuid.New(),
		UserID:       userID,
		PlaylistID:   playlistID,
		Videos:       NewVideoMap(),
		LastAccessed: now,
		CreatedAt:    now,
	}
}

// Clone returns a deep copy of p so that a failed update never leaks partial
// writes into the caller's copy.
func (p *PlaylistProgress) Clone() *PlaylistProgress {
	if p == nil {
		return nil
	}
	out := *p
	out.Videos = p.Videos.Clone()
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// PlaylistMeta carries optional descriptive playlist fields supplied with a
// video list.
type PlaylistMeta struct {
	Title     string `json:"title" binding:"max=512"`
	Thumbnail string `json:"thumbnail" binding:"max=2048"`
}

// VideoUpdate is a partial update for one video. Nil fields mean "no change".
// CompletionPercentage is range checked but never trusted; the stored value is
// always derived from watchTime and totalDuration.
type VideoUpdate struct {
	VideoID              string   `json:"videoId" binding:"required,max=128"`
	Title                *string  `json:"title" binding:"omitempty,max=512"`
	WatchTime            *float64 `json:"watchTime"`
	TotalDuration        *float64 `json:"totalDuration"`
	IsCompleted          *bool    `json:"isCompleted"`
	CompletionPercentage *float64 `json:"completionPercentage"`
}

// ApplyVideosRequest is the payload for upserting a playlist's video list.
type ApplyVideosRequest struct {
	Videos   []VideoUpdate `json:"videos" binding:"required,dive"`
	Playlist *PlaylistMeta `json:"playlist"`
}

// HeartbeatRequest is a high-frequency watch-time report from the player.
type HeartbeatRequest struct {
	WatchTime     float64  `json:"watchTime" binding:"min=0"`
	TotalDuration *float64 `json:"totalDuration" binding:"omitempty,min=0"`
}

// RecentActivity is a compact view of a recently accessed playlist.
type RecentActivity struct {
	PlaylistID      string    `json:"playlistId"`
	Title           string    `json:"title,omitempty"`
	OverallProgress float64   `json:"overallProgress"`
	IsCompleted     bool      `json:"isCompleted"`
	LastAccessed    time.Time `json:"lastAccessed"`
}

// ProgressStats aggregates every playlist owned by a user. It is derived and
// never persisted as a source of truth.
type ProgressStats struct {
	TotalPlaylists     int              `json:"totalPlaylists"`
	CompletedPlaylists int              `json:"completedPlaylists"`
	TotalVideos        int              `json:"totalVideos"`
	CompletedVideos    int              `json:"completedVideos"`
	AverageScore       float64          `json:"averageScore"`
	TotalTimeSpent     float64          `json:"totalTimeSpent"`
	RecentActivity     []RecentActivity `json:"recentActivity"`
}

// Heartbeat is a queued watch-time report for one video.
type Heartbeat struct {
	UserID        string    `json:"user_id"`
	PlaylistID    string    `json:"playlist_id"`
	VideoID       string    `json:"video_id"`
	WatchTime     float64   `json:"watch_time"`
	TotalDuration *float64  `json:"total_duration,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}
