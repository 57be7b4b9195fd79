package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/progress"
)

// LedgerService owns the append-only assessment attempt history.
type LedgerService struct {
	store      AttemptStore
	timeout    time.Duration
	maxRetries int
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(store AttemptStore, timeout time.Duration, maxRetries int, log zerolog.Logger) *LedgerService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &LedgerService{
		store:      store,
		timeout:    timeout,
		maxRetries: maxRetries,
		now:        time.Now,
		log:        log.With().Str("component", "ledger_service").Logger(),
	}
}

// Record validates and appends an attempt for (userID, videoID). When the
// caller leaves AttemptNumber at 0 the next number is assigned, and a lost
// race against a concurrent append is retried with a fresh number.
func (s *LedgerService) Record(ctx context.Context, userID, videoID string, a model.AssessmentAttempt) (model.AssessmentAttempt, error) {
	if userID == "" {
		return a, apperror.Invalid("userId", "is required")
	}
	if videoID == "" {
		return a, apperror.Invalid("videoId", "is required")
	}

	autoNumber := a.AttemptNumber == 0
	var lastErr error
	for try := 0; try < s.maxRetries; try++ {
		rec, err := s.tryRecord(ctx, userID, videoID, a)
		if err == nil {
			return rec, nil
		}
		if !autoNumber || !apperror.IsConflict(err) {
			return a, err
		}
		lastErr = err
		s.log.Debug().Str("user_id", userID).Str("video_id", videoID).Int("try", try+1).Msg("Attempt number taken, retrying")
	}
	return a, lastErr
}

func (s *LedgerService) tryRecord(ctx context.Context, userID, videoID string, a model.AssessmentAttempt) (model.AssessmentAttempt, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.store.List(opCtx, userID, videoID)
	if err != nil {
		return a, apperror.Unavailable("list attempts", err)
	}

	rec, err := progress.PrepareAttempt(existing, a, s.now())
	if err != nil {
		return a, err
	}

	if err := s.store.Append(opCtx, userID, videoID, rec); err != nil {
		return a, apperror.Unavailable("append attempt", err)
	}
	return rec, nil
}

// List returns every attempt for (userID, videoID) ordered by attempt number.
// An unknown pair yields an empty slice.
func (s *LedgerService) List(ctx context.Context, userID, videoID string) ([]model.AssessmentAttempt, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempts, err := s.store.List(opCtx, userID, videoID)
	if err != nil {
		return nil, apperror.Unavailable("list attempts", err)
	}
	out := make([]model.AssessmentAttempt, len(attempts))
	copy(out, attempts)
	progress.SortAttempts(out)
	return out, nil
}

// VideoIDs returns the videos with attempts submitted through playlistID.
func (s *LedgerService) VideoIDs(ctx context.Context, userID, playlistID string) ([]string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.store.VideoIDs(opCtx, userID, playlistID)
	if err != nil {
		return nil, apperror.Unavailable("list attempted videos", err)
	}
	return ids, nil
}
