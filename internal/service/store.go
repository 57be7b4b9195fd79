package service

import (
	"context"

	"github.com/stemsi/learntrack-backend/internal/model"
)

// AttemptStore is the append-only ledger backend. Append must fail with a
// ConflictError when attemptNumber is not the next number for (user, video).
type AttemptStore interface {
	Append(ctx context.Context, userID, videoID string, a model.AssessmentAttempt) error
	List(ctx context.Context, userID, videoID string) ([]model.AssessmentAttempt, error)
	// VideoIDs returns the videos that have attempts submitted through
	// playlistID, in order of their first attempt.
	VideoIDs(ctx context.Context, userID, playlistID string) ([]string, error)
}

// ProgressStore persists one PlaylistProgress document per (user, playlist).
// Write replaces the whole document only when the stored version equals
// expectedVersion (0 = not yet stored) and then sets p.Version to
// expectedVersion+1; otherwise it returns a ConflictError.
type ProgressStore interface {
	Read(ctx context.Context, userID, playlistID string) (*model.PlaylistProgress, error)
	Write(ctx context.Context, p *model.PlaylistProgress, expectedVersion int64) error
	ListByUser(ctx context.Context, userID string) ([]model.PlaylistProgress, error)
}

// ResultStore records proctoring verdicts. Save is insert-once and returns
// the stored result, which is the earlier one if it already existed.
type ResultStore interface {
	Save(ctx context.Context, r *model.ProctoringResult) (*model.ProctoringResult, error)
	Get(ctx context.Context, assessmentID, userID string) (*model.ProctoringResult, error)
}

// TelemetryBuffer accumulates telemetry deltas for an in-flight session.
type TelemetryBuffer interface {
	Add(ctx context.Context, assessmentID, userID string, fields map[string]float64, raw model.TelemetryDelta) error
	Fields(ctx context.Context, assessmentID, userID string) (map[string]float64, error)
	Clear(ctx context.Context, assessmentID, userID string) error
}

// StatsCache caches derived per-user stats. Implementations treat every
// failure as a cache miss.
//
// Invalidate bumps the user's generation. Set stores stats only while the
// generation still equals gen, the value read before the stats were
// computed, so a computation that raced a write is never cached.
type StatsCache interface {
	Get(ctx context.Context, userID string) (*model.ProgressStats, bool)
	Generation(ctx context.Context, userID string) (int64, bool)
	Set(ctx context.Context, userID string, gen int64, stats *model.ProgressStats)
	Invalidate(ctx context.Context, userID string)
}

// HeartbeatQueue defers high-frequency watch-time reports to a worker.
type HeartbeatQueue interface {
	Enqueue(ctx context.Context, hb model.Heartbeat) error
}
