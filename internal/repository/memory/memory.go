// Package memory holds process-local stores used by tests and by the server
// when STORE_DRIVER=memory. Every store deep-copies on the way in and out.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/progress"
)

type pairKey struct{ a, b string }

// ─── Attempts ────────────────────────────────────────────────────────────────

// AttemptStore is an in-memory append-only attempt ledger.
type AttemptStore struct {
	mu     sync.RWMutex
	rows   map[pairKey][]model.AssessmentAttempt
	videos map[pairKey][]string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		rows:   make(map[pairKey][]model.AssessmentAttempt),
		videos: make(map[pairKey][]string),
	}
}

func (s *AttemptStore) Append(ctx context.Context, userID, videoID string, a model.AssessmentAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{userID, videoID}
	if want := progress.MaxAttemptNumber(s.rows[k]) + 1; a.AttemptNumber != want {
		return &apperror.ConflictError{
			Resource: "assessment_attempts",
			Detail:   fmt.Sprintf("attempt %d already taken, next is %d", a.AttemptNumber, want),
		}
	}
	s.rows[k] = append(s.rows[k], a)

	if a.PlaylistID != "" {
		pk := pairKey{userID, a.PlaylistID}
		if !slices.Contains(s.videos[pk], videoID) {
			s.videos[pk] = append(s.videos[pk], videoID)
		}
	}
	return nil
}

func (s *AttemptStore) VideoIDs(ctx context.Context, userID, playlistID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.videos[pairKey{userID, playlistID}]), nil
}

func (s *AttemptStore) List(ctx context.Context, userID, videoID string) ([]model.AssessmentAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[pairKey{userID, videoID}]
	out := make([]model.AssessmentAttempt, len(rows))
	copy(out, rows)
	return out, nil
}

// ─── Playlist progress ───────────────────────────────────────────────────────

// ProgressStore is an in-memory versioned document store.
type ProgressStore struct {
	mu   sync.RWMutex
	docs map[pairKey]*model.PlaylistProgress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{docs: make(map[pairKey]*model.PlaylistProgress)}
}

func (s *ProgressStore) Read(ctx context.Context, userID, playlistID string) (*model.PlaylistProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.docs[pairKey{userID, playlistID}]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *ProgressStore) Write(ctx context.Context, p *model.PlaylistProgress, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{p.UserID, p.PlaylistID}
	var stored int64
	if cur, ok := s.docs[k]; ok {
		stored = cur.Version
	}
	if stored != expectedVersion {
		return &apperror.ConflictError{
			Resource: "playlist_progress",
			Detail:   fmt.Sprintf("expected version %d, found %d", expectedVersion, stored),
		}
	}

	p.Version = expectedVersion + 1
	s.docs[k] = p.Clone()
	return nil
}

func (s *ProgressStore) ListByUser(ctx context.Context, userID string) ([]model.PlaylistProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PlaylistProgress, 0)
	for k, p := range s.docs {
		if k.a == userID {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessed.Equal(out[j].LastAccessed) {
			return out[i].LastAccessed.After(out[j].LastAccessed)
		}
		return out[i].PlaylistID < out[j].PlaylistID
	})
	return out, nil
}

// ─── Proctoring results ──────────────────────────────────────────────────────

// ResultStore is an in-memory insert-once result table.
type ResultStore struct {
	mu   sync.RWMutex
	rows map[pairKey]model.ProctoringResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{rows: make(map[pairKey]model.ProctoringResult)}
}

func (s *ResultStore) Save(ctx context.Context, r *model.ProctoringResult) (*model.ProctoringResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{r.AssessmentID, r.UserID}
	if existing, ok := s.rows[k]; ok {
		return cloneResult(existing), nil
	}
	s.rows[k] = *cloneResult(*r)
	return cloneResult(*r), nil
}

func (s *ResultStore) Get(ctx context.Context, assessmentID, userID string) (*model.ProctoringResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[pairKey{assessmentID, userID}]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return cloneResult(r), nil
}

func cloneResult(r model.ProctoringResult) *model.ProctoringResult {
	r.Flags = append([]string(nil), r.Flags...)
	if r.Flags == nil {
		r.Flags = []string{}
	}
	return &r
}

// ─── Telemetry ───────────────────────────────────────────────────────────────

// TelemetryBuffer is an in-memory telemetry accumulator. Raw deltas are not
// audited in memory mode.
type TelemetryBuffer struct {
	mu     sync.Mutex
	fields map[pairKey]map[string]float64
}

func NewTelemetryBuffer() *TelemetryBuffer {
	return &TelemetryBuffer{fields: make(map[pairKey]map[string]float64)}
}

func (b *TelemetryBuffer) Add(ctx context.Context, assessmentID, userID string, fields map[string]float64, _ model.TelemetryDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	k := pairKey{assessmentID, userID}
	acc, ok := b.fields[k]
	if !ok {
		acc = make(map[string]float64, len(fields))
		b.fields[k] = acc
	}
	for name, v := range fields {
		acc[name] += v
	}
	return nil
}

func (b *TelemetryBuffer) Fields(ctx context.Context, assessmentID, userID string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.fields[pairKey{assessmentID, userID}]
	out := make(map[string]float64, len(acc))
	for k, v := range acc {
		out[k] = v
	}
	return out, nil
}

func (b *TelemetryBuffer) Clear(ctx context.Context, assessmentID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fields, pairKey{assessmentID, userID})
	return nil
}
