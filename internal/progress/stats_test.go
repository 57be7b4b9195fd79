package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/learntrack-backend/internal/model"
)

func playlistAt(t *testing.T, id string, at time.Time, updates []model.VideoUpdate, attempts map[string][]model.AssessmentAttempt) model.PlaylistProgress {
	t.Helper()
	p, err := ApplyVideoList(model.NewPlaylistProgress("user-1", id, at), updates, &model.PlaylistMeta{Title: "Playlist " + id}, attempts, at, Options{})
	require.NoError(t, err)
	return *p
}

func TestComputeStatsTotals(t *testing.T) {
	done := playlistAt(t, "p1", fixedNow, []model.VideoUpdate{
		{VideoID: "a", IsCompleted: b(true), WatchTime: f(100)},
	}, map[string][]model.AssessmentAttempt{"a": {attempt(1, 90)}})
	half := playlistAt(t, "p2", fixedNow.Add(time.Minute), []model.VideoUpdate{
		{VideoID: "b", IsCompleted: b(true), WatchTime: f(30)},
		{VideoID: "c", WatchTime: f(20)},
	}, map[string][]model.AssessmentAttempt{"b": {attempt(1, 50), attempt(2, 70)}})
	unscored := playlistAt(t, "p3", fixedNow.Add(2*time.Minute), []model.VideoUpdate{
		{VideoID: "d", WatchTime: f(5)},
	}, nil)

	stats := ComputeStats([]model.PlaylistProgress{done, half, unscored}, 5)

	assert.Equal(t, 3, stats.TotalPlaylists)
	assert.Equal(t, 1, stats.CompletedPlaylists)
	assert.Equal(t, 4, stats.TotalVideos)
	assert.Equal(t, 2, stats.CompletedVideos)
	assert.Equal(t, 155.0, stats.TotalTimeSpent)
	assert.InDelta(t, 75.0, stats.AverageScore, 1e-9, "mean(90, 60); unscored playlist excluded")
	require.Len(t, stats.RecentActivity, 3)
	assert.Equal(t, "p3", stats.RecentActivity[0].PlaylistID)
	assert.Equal(t, "Playlist p3", stats.RecentActivity[0].Title)
}

func TestComputeStatsRecentActivityOrderingAndLimit(t *testing.T) {
	var playlists []model.PlaylistProgress
	// Same timestamp for ids 3..7 to exercise the tie-break.
	for i := 7; i >= 0; i-- {
		at := fixedNow
		if i < 3 {
			at = fixedNow.Add(-time.Duration(i+1) * time.Hour)
		}
		playlists = append(playlists, playlistAt(t, fmt.Sprintf("pl-%d", i), at, nil, nil))
	}

	stats := ComputeStats(playlists, 0)

	require.Len(t, stats.RecentActivity, DefaultRecentActivityLimit)
	ids := make([]string, 0, len(stats.RecentActivity))
	for _, r := range stats.RecentActivity {
		ids = append(ids, r.PlaylistID)
	}
	assert.Equal(t, []string{"pl-3", "pl-4", "pl-5", "pl-6", "pl-7"}, ids)

	stats = ComputeStats(playlists, 2)
	assert.Len(t, stats.RecentActivity, 2)
}

func TestComputeStatsIsPure(t *testing.T) {
	input := []model.PlaylistProgress{
		playlistAt(t, "b", fixedNow, []model.VideoUpdate{{VideoID: "v", WatchTime: f(3)}}, nil),
		playlistAt(t, "a", fixedNow, []model.VideoUpdate{{VideoID: "w", IsCompleted: b(true)}}, nil),
	}

	first := ComputeStats(input, 5)
	second := ComputeStats(input, 5)

	assert.Equal(t, first, second)
	assert.Equal(t, "b", input[0].PlaylistID, "input order untouched")
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, 5)

	assert.Equal(t, 0, stats.TotalPlaylists)
	assert.Equal(t, 0.0, stats.AverageScore)
	assert.NotNil(t, stats.RecentActivity)
	assert.Empty(t, stats.RecentActivity)
}
