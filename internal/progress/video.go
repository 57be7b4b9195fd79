package progress

import (
	"math"

	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// ValidateVideoUpdate rejects malformed partial updates. Absent fields are
// always valid.
func ValidateVideoUpdate(u model.VideoUpdate) error {
	if u.VideoID == "" {
		return apperror.Invalid("videoId", "is required")
	}
	if u.WatchTime != nil && (!finite(*u.WatchTime) || *u.WatchTime < 0) {
		return apperror.Invalid("watchTime", "must be >= 0, got %v", *u.WatchTime)
	}
	if u.TotalDuration != nil && (!finite(*u.TotalDuration) || *u.TotalDuration < 0) {
		return apperror.Invalid("totalDuration", "must be >= 0, got %v", *u.TotalDuration)
	}
	if u.CompletionPercentage != nil {
		if p := *u.CompletionPercentage; !finite(p) || p < 0 || p > 100 {
			return apperror.Invalid("completionPercentage", "must be within [0,100], got %v", p)
		}
	}
	return nil
}

// ApplyUpdate merges a partial update into v and refreshes the ledger-derived
// fields from attempts. v is not modified.
//
//   - watchTime only ever grows
//   - isCompleted is sticky once true
//   - a new totalDuration replaces the percentage basis, even when lower
//   - attempt statistics come from the ledger, never from the caller
func ApplyUpdate(v model.VideoProgress, u model.VideoUpdate, attempts []model.AssessmentAttempt) (model.VideoProgress, error) {
	if err := ValidateVideoUpdate(u); err != nil {
		return v, err
	}
	if v.VideoID != "" && v.VideoID != u.VideoID {
		return v, apperror.Invalid("videoId", "update for %q applied to %q", u.VideoID, v.VideoID)
	}

	out := v.Clone()
	out.VideoID = u.VideoID

	if u.Title != nil && *u.Title != "" {
		out.Title = *u.Title
	}
	if u.TotalDuration != nil {
		out.TotalDuration = *u.TotalDuration
	}
	if u.WatchTime != nil && *u.WatchTime > out.WatchTime {
		out.WatchTime = *u.WatchTime
	}
	if u.IsCompleted != nil && *u.IsCompleted {
		out.IsCompleted = true
	}

	out.CompletionPercentage = completionPercentage(out)
	applyAttempts(&out, attempts)
	return out, nil
}

func completionPercentage(v model.VideoProgress) float64 {
	if v.IsCompleted {
		return 100
	}
	if v.TotalDuration <= 0 {
		return 0
	}
	return math.Min(100, v.WatchTime/v.TotalDuration*100)
}

func applyAttempts(v *model.VideoProgress, attempts []model.AssessmentAttempt) {
	v.Attempts = make([]model.AssessmentAttempt, len(attempts))
	copy(v.Attempts, attempts)
	SortAttempts(v.Attempts)

	v.TotalAttempts = len(v.Attempts)
	v.BestScore = 0
	v.AverageScore = 0
	if v.TotalAttempts == 0 {
		return
	}

	var sum float64
	for _, a := range v.Attempts {
		sum += a.TestScore
		if a.TestScore > v.BestScore {
			v.BestScore = a.TestScore
		}
	}
	v.AverageScore = sum / float64(v.TotalAttempts)
}
