package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// AttemptRepository is the PostgreSQL attempt ledger.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Append inserts the attempt only if its number is exactly one past the
// current maximum for (user, video). Two racing writers that both pass the
// guard are separated by the primary key.
func (r *AttemptRepository) Append(ctx context.Context, userID, videoID string, a model.AssessmentAttempt) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO assessment_attempts
		   (user_id, video_id, attempt_number, test_score, cli_value, cli_classification,
		    confidence, time_spent, completed_at, assessment_id, playlist_id)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		 WHERE (SELECT COALESCE(MAX(attempt_number), 0)
		          FROM assessment_attempts
		         WHERE user_id = $1 AND video_id = $2) = $3 - 1`,
		userID, videoID, a.AttemptNumber, a.TestScore, a.CLIValue, a.CLIClassification,
		a.Confidence, a.TimeSpent, a.CompletedAt, a.AssessmentID, a.PlaylistID,
	)
	if err != nil {
		return mapError("append attempt", "assessment_attempts", err)
	}
	if tag.RowsAffected() == 0 {
		return &apperror.ConflictError{
			Resource: "assessment_attempts",
			Detail:   fmt.Sprintf("attempt %d is not the next number", a.AttemptNumber),
		}
	}
	return nil
}

// List returns every attempt for (user, video) by ascending attempt number.
func (r *AttemptRepository) List(ctx context.Context, userID, videoID string) ([]model.AssessmentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_number, test_score, cli_value, cli_classification,
		        confidence, time_spent, completed_at, assessment_id, playlist_id
		   FROM assessment_attempts
		  WHERE user_id = $1 AND video_id = $2
		  ORDER BY attempt_number ASC`, userID, videoID,
	)
	if err != nil {
		return nil, mapError("list attempts", "assessment_attempts", err)
	}
	defer rows.Close()

	attempts := make([]model.AssessmentAttempt, 0)
	for rows.Next() {
		var a model.AssessmentAttempt
		if err := rows.Scan(&a.AttemptNumber, &a.TestScore, &a.CLIValue, &a.CLIClassification,
			&a.Confidence, &a.TimeSpent, &a.CompletedAt, &a.AssessmentID, &a.PlaylistID); err != nil {
			return nil, mapError("scan attempt", "assessment_attempts", err)
		}
		a.CompletedAt = a.CompletedAt.UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list attempts", "assessment_attempts", err)
	}
	return attempts, nil
}

// VideoIDs returns the distinct videos attempted through playlistID, ordered
// by when each was first attempted.
func (r *AttemptRepository) VideoIDs(ctx context.Context, userID, playlistID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT video_id
		   FROM assessment_attempts
		  WHERE user_id = $1 AND playlist_id = $2
		  GROUP BY video_id
		  ORDER BY MIN(recorded_at) ASC, video_id ASC`, userID, playlistID,
	)
	if err != nil {
		return nil, mapError("list attempted videos", "assessment_attempts", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("list attempted videos", "assessment_attempts", err)
	}
	return ids, nil
}
