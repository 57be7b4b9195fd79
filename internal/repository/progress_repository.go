package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// ProgressRepository stores each PlaylistProgress as one JSONB document
// replaced with compare-and-swap on version.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// Read loads the document for (user, playlist).
func (r *ProgressRepository) Read(ctx context.Context, userID, playlistID string) (*model.PlaylistProgress, error) {
	var (
		raw     []byte
		version int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT document, version FROM playlist_progress
		 WHERE user_id = $1 AND playlist_id = $2`, userID, playlistID,
	).Scan(&raw, &version)
	if err != nil {
		return nil, mapError("read progress", "playlist_progress", err)
	}
	return decodeProgress(raw, version)
}

// Write replaces the document when the stored version still equals
// expectedVersion. expectedVersion 0 inserts a new document.
func (r *ProgressRepository) Write(ctx context.Context, p *model.PlaylistProgress, expectedVersion int64) error {
	p.Version = expectedVersion + 1
	doc, err := json.Marshal(p)
	if err != nil {
		p.Version = expectedVersion
		return fmt.Errorf("encode progress: %w", err)
	}

	var affected int64
	if expectedVersion == 0 {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO playlist_progress
			   (id, user_id, playlist_id, document, version, is_completed, last_accessed)
			 VALUES ($1, $2, $3, $4, 1, $5, $6)
			 ON CONFLICT (user_id, playlist_id) DO NOTHING`,
			p.ID, p.UserID, p.PlaylistID, doc, p.IsCompleted, p.LastAccessed,
		)
		if err != nil {
			p.Version = expectedVersion
			return mapError("insert progress", "playlist_progress", err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx,
			`UPDATE playlist_progress
			 SET document = $1, version = version + 1, is_completed = $2,
			     last_accessed = $3, updated_at = NOW()
			 WHERE user_id = $4 AND playlist_id = $5 AND version = $6`,
			doc, p.IsCompleted, p.LastAccessed, p.UserID, p.PlaylistID, expectedVersion,
		)
		if err != nil {
			p.Version = expectedVersion
			return mapError("update progress", "playlist_progress", err)
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		p.Version = expectedVersion
		return &apperror.ConflictError{
			Resource: "playlist_progress",
			Detail:   fmt.Sprintf("version %d is stale", expectedVersion),
		}
	}
	return nil
}

// ListByUser returns every document owned by userID, most recent first.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]model.PlaylistProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT document, version FROM playlist_progress
		 WHERE user_id = $1
		 ORDER BY last_accessed DESC, playlist_id ASC`, userID,
	)
	if err != nil {
		return nil, mapError("list progress", "playlist_progress", err)
	}
	defer rows.Close()

	list := make([]model.PlaylistProgress, 0)
	for rows.Next() {
		var (
			raw     []byte
			version int64
		)
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, mapError("scan progress", "playlist_progress", err)
		}
		p, err := decodeProgress(raw, version)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list progress", "playlist_progress", err)
	}
	return list, nil
}

// decodeProgress trusts the version column over the embedded copy.
func decodeProgress(raw []byte, version int64) (*model.PlaylistProgress, error) {
	p := &model.PlaylistProgress{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if p.Videos == nil {
		p.Videos = model.NewVideoMap()
	}
	p.Version = version
	return p, nil
}
