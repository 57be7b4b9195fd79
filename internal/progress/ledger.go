// Package progress holds the pure aggregation rules for assessment attempts,
// video progress, playlist roll-ups and per-user statistics. Nothing in this
// package performs I/O; the service layer supplies ledger contents and
// persists results.
package progress

import (
	"math"
	"sort"
	"time"

	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
)

// MaxAttemptNumber returns the highest attempt number in attempts, or 0.
func MaxAttemptNumber(attempts []model.AssessmentAttempt) int {
	highest := 0
	for _, a := range attempts {
		if a.AttemptNumber > highest {
			highest = a.AttemptNumber
		}
	}
	return highest
}

// PrepareAttempt validates a new attempt against the existing ledger for the
// same (user, video) and returns the entry to append. An AttemptNumber of 0 is
// assigned the next number; any other value must equal max+1.
func PrepareAttempt(existing []model.AssessmentAttempt, a model.AssessmentAttempt, now time.Time) (model.AssessmentAttempt, error) {
	if !finite(a.TestScore) || a.TestScore < 0 || a.TestScore > 100 {
		return a, apperror.Invalid("testScore", "must be within [0,100], got %v", a.TestScore)
	}
	if !finite(a.Confidence) || a.Confidence < 0 || a.Confidence > 1 {
		return a, apperror.Invalid("confidence", "must be within [0,1], got %v", a.Confidence)
	}
	if !finite(a.TimeSpent) || a.TimeSpent < 0 {
		return a, apperror.Invalid("timeSpent", "must be >= 0, got %v", a.TimeSpent)
	}
	if !finite(a.CLIValue) {
		return a, apperror.Invalid("cliValue", "must be a finite number")
	}
	if a.AssessmentID == "" {
		return a, apperror.Invalid("assessmentId", "is required")
	}

	next := MaxAttemptNumber(existing) + 1
	switch {
	case a.AttemptNumber == 0:
		a.AttemptNumber = next
	case a.AttemptNumber < 0:
		return a, apperror.Invalid("attemptNumber", "must be positive, got %d", a.AttemptNumber)
	case a.AttemptNumber != next:
		return a, apperror.Invalid("attemptNumber", "expected %d, got %d", next, a.AttemptNumber)
	}

	if a.CompletedAt.IsZero() {
		a.CompletedAt = now
	}
	a.CompletedAt = a.CompletedAt.UTC()
	return a, nil
}

// SortAttempts orders attempts by ascending attempt number in place.
func SortAttempts(attempts []model.AssessmentAttempt) {
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].AttemptNumber < attempts[j].AttemptNumber
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
