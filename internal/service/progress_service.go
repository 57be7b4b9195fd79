package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/progress"
)

// ErrRefreshPending marks a recorded attempt whose playlist refresh failed.
// The attempt is durable; the playlist catches up on its next update.
var ErrRefreshPending = errors.New("playlist refresh pending")

// ProgressOptions configures a ProgressService.
type ProgressOptions struct {
	StoreTimeout        time.Duration
	MaxCASRetries       int
	RecentActivityLimit int
	Weighting           progress.Weighting
}

// ProgressService aggregates video progress into per-playlist documents.
// Updates to one (user, playlist) are serialized in-process and guarded by
// compare-and-swap on the document version across processes.
type ProgressService struct {
	ledger     *LedgerService
	store      ProgressStore
	cache      StatsCache
	heartbeats HeartbeatQueue
	locks      *keyedMutex
	opts       ProgressOptions
	now        func() time.Time
	log        zerolog.Logger
}

// NewProgressService creates a new ProgressService. cache and heartbeats may
// be nil: stats are then always recomputed and heartbeats applied inline.
func NewProgressService(
	ledger *LedgerService,
	store ProgressStore,
	cache StatsCache,
	heartbeats HeartbeatQueue,
	opts ProgressOptions,
	log zerolog.Logger,
) *ProgressService {
	if opts.MaxCASRetries < 1 {
		opts.MaxCASRetries = 1
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if opts.RecentActivityLimit <= 0 {
		opts.RecentActivityLimit = progress.DefaultRecentActivityLimit
	}
	if opts.Weighting == "" {
		opts.Weighting = progress.WeightingMean
	}
	return &ProgressService{
		ledger:     ledger,
		store:      store,
		cache:      cache,
		heartbeats: heartbeats,
		locks:      newKeyedMutex(),
		opts:       opts,
		now:        time.Now,
		log:        log.With().Str("component", "progress_service").Logger(),
	}
}

// ApplyVideos upserts a video list into the playlist and returns the stored
// document. The first call for a (user, playlist) creates it.
func (s *ProgressService) ApplyVideos(
	ctx context.Context,
	userID, playlistID string,
	updates []model.VideoUpdate,
	meta *model.PlaylistMeta,
) (*model.PlaylistProgress, error) {
	if err := checkIDs(userID, playlistID); err != nil {
		return nil, err
	}
	for i, u := range updates {
		if err := progress.ValidateVideoUpdate(u); err != nil {
			return nil, fmt.Errorf("videos[%d]: %w", i, err)
		}
	}

	unlock, err := s.lock(ctx, userID, playlistID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.applyLocked(ctx, userID, playlistID, updates, meta)
}

// RecordAttempt appends an attempt to the ledger, then refreshes the video's
// derived stats in the playlist. If the refresh fails the attempt stays
// recorded and the next write to the playlist picks it up from the ledger,
// adding the video if it was not in the playlist yet.
func (s *ProgressService) RecordAttempt(
	ctx context.Context,
	userID, playlistID, videoID, videoTitle string,
	a model.AssessmentAttempt,
) (model.AssessmentAttempt, *model.PlaylistProgress, error) {
	if err := checkIDs(userID, playlistID); err != nil {
		return a, nil, err
	}

	unlock, err := s.lock(ctx, userID, playlistID)
	if err != nil {
		return a, nil, err
	}
	defer unlock()

	a.PlaylistID = playlistID
	rec, err := s.ledger.Record(ctx, userID, videoID, a)
	if err != nil {
		return a, nil, err
	}

	update := model.VideoUpdate{VideoID: videoID}
	if videoTitle != "" {
		update.Title = &videoTitle
	}
	p, err := s.applyLocked(ctx, userID, playlistID, []model.VideoUpdate{update}, nil)
	if err != nil {
		s.log.Warn().Err(err).
			Str("user_id", userID).
			Str("playlist_id", playlistID).
			Int("attempt_number", rec.AttemptNumber).
			Msg("Attempt recorded but playlist refresh failed")
		return rec, nil, fmt.Errorf("%w after attempt %d: %w", ErrRefreshPending, rec.AttemptNumber, err)
	}
	return rec, p, nil
}

// ListAttempts returns the ledger for (userID, videoID).
func (s *ProgressService) ListAttempts(ctx context.Context, userID, videoID string) ([]model.AssessmentAttempt, error) {
	return s.ledger.List(ctx, userID, videoID)
}

// GetPlaylist returns the stored document or apperror.ErrNotFound.
func (s *ProgressService) GetPlaylist(ctx context.Context, userID, playlistID string) (*model.PlaylistProgress, error) {
	if err := checkIDs(userID, playlistID); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	p, err := s.store.Read(opCtx, userID, playlistID)
	if err != nil {
		return nil, apperror.Unavailable("read progress", err)
	}
	return p, nil
}

// ListPlaylists returns every playlist document owned by userID.
func (s *ProgressService) ListPlaylists(ctx context.Context, userID string) ([]model.PlaylistProgress, error) {
	if userID == "" {
		return nil, apperror.Invalid("userId", "is required")
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	list, err := s.store.ListByUser(opCtx, userID)
	if err != nil {
		return nil, apperror.Unavailable("list progress", err)
	}
	return list, nil
}

// Stats computes the user's aggregate stats, served from cache when fresh.
func (s *ProgressService) Stats(ctx context.Context, userID string) (*model.ProgressStats, error) {
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, userID); ok {
			return cached, nil
		}
		gen, cacheable = s.cache.Generation(ctx, userID)
	}

	list, err := s.ListPlaylists(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := progress.ComputeStats(list, s.opts.RecentActivityLimit)

	if cacheable {
		s.cache.Set(ctx, userID, gen, &stats)
	}
	return &stats, nil
}

// Heartbeat reports watch time for one video. With a queue configured the
// report is applied asynchronously by the heartbeat worker.
func (s *ProgressService) Heartbeat(ctx context.Context, hb model.Heartbeat) error {
	if err := checkIDs(hb.UserID, hb.PlaylistID); err != nil {
		return err
	}
	u := model.VideoUpdate{VideoID: hb.VideoID, WatchTime: &hb.WatchTime, TotalDuration: hb.TotalDuration}
	if err := progress.ValidateVideoUpdate(u); err != nil {
		return err
	}
	if hb.ReceivedAt.IsZero() {
		hb.ReceivedAt = s.now().UTC()
	}

	if s.heartbeats == nil {
		_, err := s.ApplyVideos(ctx, hb.UserID, hb.PlaylistID, []model.VideoUpdate{u}, nil)
		return err
	}
	if err := s.heartbeats.Enqueue(ctx, hb); err != nil {
		return apperror.Unavailable("enqueue heartbeat", err)
	}
	return nil
}

// ApplyHeartbeats coalesces a batch and applies one update per playlist.
// It returns the heartbeats whose playlist update failed with a retryable
// error; malformed ones are logged and dropped.
func (s *ProgressService) ApplyHeartbeats(ctx context.Context, batch []model.Heartbeat) []model.Heartbeat {
	var failed []model.Heartbeat
	for _, g := range progress.CoalesceHeartbeats(batch) {
		_, err := s.ApplyVideos(ctx, g.UserID, g.PlaylistID, g.Updates, nil)
		if err == nil {
			continue
		}
		if apperror.IsValidation(err) {
			s.log.Warn().Err(err).Str("user_id", g.UserID).Str("playlist_id", g.PlaylistID).Msg("Dropping invalid heartbeats")
			continue
		}
		s.log.Error().Err(err).Str("user_id", g.UserID).Str("playlist_id", g.PlaylistID).Msg("Heartbeat apply failed")
		failed = append(failed, g.Sources...)
	}
	return failed
}

func (s *ProgressService) lock(ctx context.Context, userID, playlistID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, config.CacheKey.ProgressLockKey(userID, playlistID))
	if err != nil {
		return nil, apperror.Unavailable("acquire progress lock", err)
	}
	return unlock, nil
}

// applyLocked runs the read-modify-CAS loop. The caller holds the key lock.
func (s *ProgressService) applyLocked(
	ctx context.Context,
	userID, playlistID string,
	updates []model.VideoUpdate,
	meta *model.PlaylistMeta,
) (*model.PlaylistProgress, error) {
	var lastErr error
	for try := 0; try < s.opts.MaxCASRetries; try++ {
		next, err := s.tryApply(ctx, userID, playlistID, updates, meta)
		if err == nil {
			if s.cache != nil {
				s.cache.Invalidate(ctx, userID)
			}
			return next, nil
		}
		if !apperror.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		metrics.ProgressConflicts.Inc()
		s.log.Debug().Str("user_id", userID).Str("playlist_id", playlistID).Int("try", try+1).Msg("Version conflict, re-reading")
	}
	return nil, lastErr
}

func (s *ProgressService) tryApply(
	ctx context.Context,
	userID, playlistID string,
	updates []model.VideoUpdate,
	meta *model.PlaylistMeta,
) (*model.PlaylistProgress, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	now := s.now()
	current, err := s.store.Read(opCtx, userID, playlistID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		current = model.NewPlaylistProgress(userID, playlistID, now.UTC())
	case err != nil:
		return nil, apperror.Unavailable("read progress", err)
	}
	expected := current.Version

	// Attempt stats are re-derived for the whole playlist on every write.
	// Videos attempted through this playlist but missing from it are added.
	attempted, err := s.ledger.VideoIDs(opCtx, userID, playlistID)
	if err != nil {
		return nil, err
	}
	ids := current.Videos.Keys()
	for _, u := range updates {
		ids = append(ids, u.VideoID)
	}
	for _, id := range attempted {
		if _, ok := current.Videos.Get(id); ok || slices.ContainsFunc(updates, func(u model.VideoUpdate) bool { return u.VideoID == id }) {
			continue
		}
		updates = append(slices.Clip(updates), model.VideoUpdate{VideoID: id})
		ids = append(ids, id)
	}

	attempts := make(map[string][]model.AssessmentAttempt, len(ids))
	for _, id := range ids {
		if _, ok := attempts[id]; ok {
			continue
		}
		list, err := s.ledger.List(opCtx, userID, id)
		if err != nil {
			return nil, err
		}
		attempts[id] = list
	}

	next, err := progress.ApplyVideoList(current, updates, meta, attempts, now, progress.Options{Weighting: s.opts.Weighting})
	if err != nil {
		return nil, err
	}

	if err := s.store.Write(opCtx, next, expected); err != nil {
		return nil, apperror.Unavailable("write progress", err)
	}
	return next, nil
}

func checkIDs(userID, playlistID string) error {
	if userID == "" {
		return apperror.Invalid("userId", "is required")
	}
	if playlistID == "" {
		return apperror.Invalid("playlistId", "is required")
	}
	return nil
}
