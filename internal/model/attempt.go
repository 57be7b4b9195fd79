package model

import "time"

// AssessmentAttempt is one immutable ledger entry for a video assessment.
// It is uniquely identified by (userId, videoId, attemptNumber).
type AssessmentAttempt struct {
	AttemptNumber     int       `json:"attemptNumber"`
	TestScore         float64   `json:"testScore"`
	CLIValue          float64   `json:"cliValue"`
	CLIClassification string    `json:"cliClassification"`
	Confidence        float64   `json:"confidence"`
	TimeSpent         float64   `json:"timeSpent"`
	CompletedAt       time.Time `json:"completedAt"`
	AssessmentID      string    `json:"assessmentId"`

	// PlaylistID is the playlist the attempt was submitted through. It is
	// not part of the attempt's identity and is never rendered.
	PlaylistID string `json:"-"`
}

// RecordAttemptRequest is the payload for submitting an assessment attempt.
// AttemptNumber may be omitted; the server then assigns the next number.
type RecordAttemptRequest struct {
	AttemptNumber     int        `json:"attemptNumber" binding:"omitempty,min=1"`
	TestScore         *float64   `json:"testScore" binding:"required,min=0,max=100"`
	CLIValue          float64    `json:"cliValue"`
	CLIClassification string     `json:"cliClassification" binding:"max=64"`
	Confidence        float64    `json:"confidence" binding:"min=0,max=1"`
	TimeSpent         float64    `json:"timeSpent" binding:"min=0"`
	CompletedAt       *time.Time `json:"completedAt"`
	AssessmentID      string     `json:"assessmentId" binding:"required,max=128"`
	VideoTitle        string     `json:"videoTitle" binding:"max=512"`
}

// ToAttempt converts the request into a ledger entry. A missing completedAt
// stays zero and is stamped by the ledger.
func (r *RecordAttemptRequest) ToAttempt() AssessmentAttempt {
	a := AssessmentAttempt{
		AttemptNumber:     r.AttemptNumber,
		CLIValue:          r.CLIValue,
		CLIClassification: r.CLIClassification,
		Confidence:        r.Confidence,
		TimeSpent:         r.TimeSpent,
		AssessmentID:      r.AssessmentID,
	}
	if r.TestScore != nil {
		a.TestScore = *r.TestScore
	}
	if r.CompletedAt != nil {
		a.CompletedAt = *r.CompletedAt
	}
	return a
}
