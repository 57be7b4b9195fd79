package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/metrics"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/proctoring"
)

// ProctoringService scores assessment sessions and records the verdicts.
type ProctoringService struct {
	engine  *proctoring.Engine
	results ResultStore
	buffer  TelemetryBuffer
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewProctoringService creates a new ProctoringService.
func NewProctoringService(
	engine *proctoring.Engine,
	results ResultStore,
	buffer TelemetryBuffer,
	timeout time.Duration,
	log zerolog.Logger,
) *ProctoringService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ProctoringService{
		engine:  engine,
		results: results,
		buffer:  buffer,
		timeout: timeout,
		now:     time.Now,
		log:     log.With().Str("component", "proctoring_service").Logger(),
	}
}

// Score evaluates a supplied snapshot without touching any store.
func (s *ProctoringService) Score(assessmentID string, snap model.TelemetrySnapshot) model.ProctoringResult {
	res := s.engine.Score(assessmentID, snap)
	res.CreatedAt = s.now().UTC()
	return res
}

// Ingest folds a telemetry delta into the session accumulator. Telemetry is
// best effort: malformed values are clamped, never rejected.
func (s *ProctoringService) Ingest(ctx context.Context, assessmentID, userID string, d model.TelemetryDelta) error {
	if err := checkSession(assessmentID, userID); err != nil {
		return err
	}
	fields := proctoring.DeltaFields(d)
	if len(fields) == 0 {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.buffer.Add(opCtx, assessmentID, userID, fields, d); err != nil {
		return apperror.Unavailable("add telemetry", err)
	}
	return nil
}

// Finalize scores the accumulated telemetry and records the result once.
// Later calls return the stored verdict unchanged.
func (s *ProctoringService) Finalize(ctx context.Context, assessmentID, userID string) (*model.ProctoringResult, error) {
	if err := checkSession(assessmentID, userID); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.results.Get(opCtx, assessmentID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unavailable("get proctoring result", err)
	}

	fields, err := s.buffer.Fields(opCtx, assessmentID, userID)
	if err != nil {
		return nil, apperror.Unavailable("read telemetry", err)
	}

	res := s.Score(assessmentID, proctoring.SnapshotFromFields(fields))
	res.UserID = userID

	stored, err := s.results.Save(opCtx, &res)
	if err != nil {
		return nil, apperror.Unavailable("save proctoring result", err)
	}

	metrics.ProctoringVerdicts.WithLabelValues(string(stored.Severity)).Inc()

	if err := s.buffer.Clear(opCtx, assessmentID, userID); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID).Str("user_id", userID).Msg("Failed to clear telemetry accumulator")
	}

	s.log.Info().
		Str("assessment_id", assessmentID).
		Str("user_id", userID).
		Float64("integrity_score", stored.IntegrityScore).
		Str("severity", string(stored.Severity)).
		Strs("flags", stored.Flags).
		Msg("Proctoring result recorded")
	return stored, nil
}

// Result returns the recorded verdict or apperror.ErrNotFound.
func (s *ProctoringService) Result(ctx context.Context, assessmentID, userID string) (*model.ProctoringResult, error) {
	if err := checkSession(assessmentID, userID); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.results.Get(opCtx, assessmentID, userID)
	if err != nil {
		return nil, apperror.Unavailable("get proctoring result", err)
	}
	return res, nil
}

func checkSession(assessmentID, userID string) error {
	if assessmentID == "" {
		return apperror.Invalid("assessmentId", "is required")
	}
	if userID == "" {
		return apperror.Invalid("userId", "is required")
	}
	return nil
}
