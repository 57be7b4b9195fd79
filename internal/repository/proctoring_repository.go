package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// ProctoringRepository records proctoring verdicts, one per
// (assessment, user).
type ProctoringRepository struct {
	pool *pgxpool.Pool
}

// NewProctoringRepository creates a new ProctoringRepository.
func NewProctoringRepository(pool *pgxpool.Pool) *ProctoringRepository {
	return &ProctoringRepository{pool: pool}
}

// Save inserts r unless a result already exists, in which case the stored
// one is returned untouched.
func (r *ProctoringRepository) Save(ctx context.Context, res *model.ProctoringResult) (*model.ProctoringResult, error) {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	flags := res.Flags
	if flags == nil {
		flags = []string{}
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO proctoring_results
		   (assessment_id, user_id, integrity_score, flags, metrics, severity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (assessment_id, user_id) DO NOTHING
		 RETURNING created_at`,
		res.AssessmentID, res.UserID, res.IntegrityScore, flags, metrics, string(res.Severity), res.CreatedAt,
	).Scan(&res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.Get(ctx, res.AssessmentID, res.UserID)
	}
	if err != nil {
		return nil, mapError("save proctoring result", "proctoring_results", err)
	}
	out := *res
	out.Flags = flags
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}

// Get returns the recorded result for (assessment, user).
func (r *ProctoringRepository) Get(ctx context.Context, assessmentID, userID string) (*model.ProctoringResult, error) {
	res := &model.ProctoringResult{}
	var (
		metrics  []byte
		severity string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT assessment_id, user_id, integrity_score, flags, metrics, severity, created_at
		 FROM proctoring_results
		 WHERE assessment_id = $1 AND user_id = $2`, assessmentID, userID,
	).Scan(&res.AssessmentID, &res.UserID, &res.IntegrityScore, &res.Flags, &metrics, &severity, &res.CreatedAt)
	if err != nil {
		return nil, mapError("get proctoring result", "proctoring_results", err)
	}
	if err := json.Unmarshal(metrics, &res.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if res.Flags == nil {
		res.Flags = []string{}
	}
	res.Severity = model.Severity(severity)
	res.CreatedAt = res.CreatedAt.UTC()
	return res, nil
}
