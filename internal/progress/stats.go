package progress

import (
	"sort"

	"github.com/stemsi/learntrack-backend/internal/model"
)

// DefaultRecentActivityLimit is the recent-activity window used when the
// configured size is not positive.
const DefaultRecentActivityLimit = 5

// ComputeStats aggregates all playlists of one user. It has no side effects
// and returns identical output for identical input.
func ComputeStats(playlists []model.PlaylistProgress, recentLimit int) model.ProgressStats {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentActivityLimit
	}

	stats := model.ProgressStats{
		TotalPlaylists: len(playlists),
		RecentActivity: []model.RecentActivity{},
	}

	var scoreSum float64
	scored := 0
	for i := range playlists {
		p := &playlists[i]
		if p.IsCompleted {
			stats.CompletedPlaylists++
		}
		stats.TotalVideos += p.TotalVideos
		stats.CompletedVideos += p.CompletedVideos
		stats.TotalTimeSpent += p.TotalTimeSpent
		if hasScoredVideo(p) {
			scoreSum += p.AverageScore
			scored++
		}
	}
	if scored > 0 {
		stats.AverageScore = scoreSum / float64(scored)
	}

	recent := make([]model.RecentActivity, 0, len(playlists))
	for i := range playlists {
		p := &playlists[i]
		recent = append(recent, model.RecentActivity{
			PlaylistID:      p.PlaylistID,
			Title:           p.Title,
			OverallProgress: p.OverallProgress,
			IsCompleted:     p.IsCompleted,
			LastAccessed:    p.LastAccessed,
		})
	}
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].LastAccessed.Equal(recent[j].LastAccessed) {
			return recent[i].LastAccessed.After(recent[j].LastAccessed)
		}
		return recent[i].PlaylistID < recent[j].PlaylistID
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	stats.RecentActivity = recent

	return stats
}

func hasScoredVideo(p *model.PlaylistProgress) bool {
	for _, v := range p.Videos.Values() {
		if v.TotalAttempts > 0 {
			return true
		}
	}
	return false
}
