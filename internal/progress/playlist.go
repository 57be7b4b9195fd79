package progress

import (
	"fmt"
	"time"

	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// Weighting selects how overallProgress combines per-video percentages.
type Weighting string

const (
	// WeightingMean is the unweighted mean of completionPercentage.
	WeightingMean Weighting = "mean"
	// WeightingDuration weights each video by its totalDuration. Falls back
	// to the mean when no video has a known duration.
	WeightingDuration Weighting = "duration"
)

// ParseWeighting converts a config string into a Weighting.
func ParseWeighting(s string) (Weighting, error) {
	switch Weighting(s) {
	case "", WeightingMean:
		return WeightingMean, nil
	case WeightingDuration:
		return WeightingDuration, nil
	}
	return "", fmt.Errorf("unknown progress weighting %q", s)
}

// Options tunes the playlist aggregation.
type Options struct {
	Weighting Weighting
}

// ApplyVideoList upserts every update into a copy of p and recomputes the
// playlist aggregates. attempts holds the ledger contents per video id; videos
// that are not updated but appear in attempts get their attempt statistics
// re-derived too, so a missed refresh heals on the next write. p itself is
// never modified, so a failed write leaves the caller's state untouched.
func ApplyVideoList(
	p *model.PlaylistProgress,
	updates []model.VideoUpdate,
	meta *model.PlaylistMeta,
	attempts map[string][]model.AssessmentAttempt,
	now time.Time,
	opts Options,
) (*model.PlaylistProgress, error) {
	if p == nil {
		return nil, apperror.Invalid("playlist", "progress document is required")
	}

	out := p.Clone()
	if out.Videos == nil {
		out.Videos = model.NewVideoMap()
	}

	updated := make(map[string]bool, len(updates))
	for i, u := range updates {
		current, ok := out.Videos.Get(u.VideoID)
		if !ok {
			current = model.VideoProgress{VideoID: u.VideoID}
		}
		merged, err := ApplyUpdate(current, u, attempts[u.VideoID])
		if err != nil {
			return nil, fmt.Errorf("videos[%d]: %w", i, err)
		}
		out.Videos.Set(merged)
		updated[u.VideoID] = true
	}

	for _, v := range out.Videos.Values() {
		list, ok := attempts[v.VideoID]
		if !ok || updated[v.VideoID] {
			continue
		}
		applyAttempts(&v, list)
		out.Videos.Set(v)
	}

	if meta != nil {
		if meta.Title != "" {
			out.Title = meta.Title
		}
		if meta.Thumbnail != "" {
			out.Thumbnail = meta.Thumbnail
		}
	}

	Recompute(out, now, opts)
	return out, nil
}

// Recompute refreshes every derived playlist field of p from its videos and
// stamps lastAccessed. Completion is re-evaluated on every call: a grown
// video set may revert isCompleted, which clears completedAt.
func Recompute(p *model.PlaylistProgress, now time.Time, opts Options) {
	videos := p.Videos.Values()

	p.TotalVideos = len(videos)
	p.CompletedVideos = 0
	p.TotalTimeSpent = 0

	var scoreSum float64
	scored := 0
	for _, v := range videos {
		if v.IsCompleted {
			p.CompletedVideos++
		}
		p.TotalTimeSpent += v.WatchTime
		if v.TotalAttempts > 0 {
			scoreSum += v.AverageScore
			scored++
		}
	}

	p.AverageScore = 0
	if scored > 0 {
		p.AverageScore = scoreSum / float64(scored)
	}
	p.OverallProgress = overallProgress(videos, opts.Weighting)

	complete := p.TotalVideos > 0 && p.CompletedVideos == p.TotalVideos
	switch {
	case complete && (!p.IsCompleted || p.CompletedAt == nil):
		at := now.UTC()
		p.CompletedAt = &at
	case !complete:
		p.CompletedAt = nil
	}
	p.IsCompleted = complete
	p.LastAccessed = now.UTC()
}

func overallProgress(videos []model.VideoProgress, w Weighting) float64 {
	if len(videos) == 0 {
		return 0
	}
	if w == WeightingDuration {
		var weighted, total float64
		for _, v := range videos {
			weighted += v.CompletionPercentage * v.TotalDuration
			total += v.TotalDuration
		}
		if total > 0 {
			return weighted / total
		}
	}
	var sum float64
	for _, v := range videos {
		sum += v.CompletionPercentage
	}
	return sum / float64(len(videos))
}
