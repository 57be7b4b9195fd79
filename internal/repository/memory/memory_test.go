package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAttemptStoreRequiresNextNumber(t *testing.T) {
	ctx := context.Background()
	s := NewAttemptStore()

	require.NoError(t, s.Append(ctx, "u", "v", model.AssessmentAttempt{AttemptNumber: 1, TestScore: 40}))
	err := s.Append(ctx, "u", "v", model.AssessmentAttempt{AttemptNumber: 1, TestScore: 60})
	assert.True(t, apperror.IsConflict(err))
	require.NoError(t, s.Append(ctx, "u", "v", model.AssessmentAttempt{AttemptNumber: 2, TestScore: 60}))

	list, err := s.List(ctx, "u", "v")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list[0].TestScore = 0
	again, _ := s.List(ctx, "u", "v")
	assert.Equal(t, 40.0, again[0].TestScore)
}

func TestAttemptStoreVideoIDsByPlaylist(t *testing.T) {
	ctx := context.Background()
	s := NewAttemptStore()

	require.NoError(t, s.Append(ctx, "u", "v2", model.AssessmentAttempt{AttemptNumber: 1, PlaylistID: "pl"}))
	require.NoError(t, s.Append(ctx, "u", "v1", model.AssessmentAttempt{AttemptNumber: 1, PlaylistID: "pl"}))
	require.NoError(t, s.Append(ctx, "u", "v2", model.AssessmentAttempt{AttemptNumber: 2, PlaylistID: "pl"}))
	require.NoError(t, s.Append(ctx, "u", "v3", model.AssessmentAttempt{AttemptNumber: 1}))

	ids, err := s.VideoIDs(ctx, "u", "pl")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v1"}, ids)

	none, err := s.VideoIDs(ctx, "other", "pl")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestProgressStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore()

	_, err := s.Read(ctx, "u", "pl")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	p := model.NewPlaylistProgress("u", "pl", t0)
	require.NoError(t, s.Write(ctx, p, 0))
	assert.Equal(t, int64(1), p.Version)

	stale := model.NewPlaylistProgress("u", "pl", t0)
	assert.True(t, apperror.IsConflict(s.Write(ctx, stale, 0)))

	cur, err := s.Read(ctx, "u", "pl")
	require.NoError(t, err)
	cur.Title = "x"
	require.NoError(t, s.Write(ctx, cur, 1))
	assert.Equal(t, int64(2), cur.Version)
}

func TestProgressStoreListByUser(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore()

	for i, id := range []string{"old", "new", "other"} {
		owner := "u"
		if id == "other" {
			owner = "someone"
		}
		p := model.NewPlaylistProgress(owner, id, t0)
		p.LastAccessed = t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Write(ctx, p, 0))
	}

	list, err := s.ListByUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].PlaylistID)
	assert.Equal(t, "old", list[1].PlaylistID)
}

func TestResultStoreInsertOnce(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore()

	first, err := s.Save(ctx, &model.ProctoringResult{AssessmentID: "a", UserID: "u", IntegrityScore: 80})
	require.NoError(t, err)
	assert.Equal(t, []string{}, first.Flags)

	second, err := s.Save(ctx, &model.ProctoringResult{AssessmentID: "a", UserID: "u", IntegrityScore: 10})
	require.NoError(t, err)
	assert.Equal(t, 80.0, second.IntegrityScore)

	_, err = s.Get(ctx, "a", "other")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTelemetryBufferSumsFields(t *testing.T) {
	ctx := context.Background()
	b := NewTelemetryBuffer()

	require.NoError(t, b.Add(ctx, "a", "u", map[string]float64{"tabSwitches": 2}, model.TelemetryDelta{}))
	require.NoError(t, b.Add(ctx, "a", "u", map[string]float64{"tabSwitches": 3, "gazeDeviation:n": 1}, model.TelemetryDelta{}))

	fields, err := b.Fields(ctx, "a", "u")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tabSwitches": 5, "gazeDeviation:n": 1}, fields)

	require.NoError(t, b.Clear(ctx, "a", "u"))
	fields, err = b.Fields(ctx, "a", "u")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestStoresHonourCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProgressStore().Read(ctx, "u", "pl")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, NewAttemptStore().Append(ctx, "u", "v", model.AssessmentAttempt{AttemptNumber: 1}), context.Canceled)
}
