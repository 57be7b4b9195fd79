package model

import "time"

// Severity is the reviewer triage bucket of a ProctoringResult.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// TelemetrySnapshot is the accumulated behavioural telemetry of one
// assessment session. A nil field means "not measured".
type TelemetrySnapshot struct {
	OffScreenTime *float64 `json:"offScreenTime,omitempty"`
	NoFaceFrames  *float64 `json:"noFaceFrames,omitempty"`
	TotalFrames   *float64 `json:"totalFrames,omitempty"`
	GazeDeviation *float64 `json:"gazeDeviation,omitempty"`
	AvgKeyDelay   *float64 `json:"avgKeyDelay,omitempty"`
	PasteEvents   *float64 `json:"pasteEvents,omitempty"`
	BackspaceRate *float64 `json:"backspaceRate,omitempty"`
	TabSwitches   *float64 `json:"tabSwitches,omitempty"`
	CopyEvents    *float64 `json:"copyEvents,omitempty"`
}

// IsEmpty reports whether no metric was measured.
func (s TelemetrySnapshot) IsEmpty() bool {
	return s.OffScreenTime == nil && s.NoFaceFrames == nil && s.TotalFrames == nil &&
		s.GazeDeviation == nil && s.AvgKeyDelay == nil && s.PasteEvents == nil &&
		s.BackspaceRate == nil && s.TabSwitches == nil && s.CopyEvents == nil
}

// TelemetryDelta is an incremental telemetry report sent during a session.
// Counter fields are summed across reports; gauge fields (gazeDeviation,
// avgKeyDelay, backspaceRate) are averaged.
type TelemetryDelta TelemetrySnapshot

// ProctoringResult is the immutable integrity verdict for one assessment
// session, recorded for audit.
type ProctoringResult struct {
	AssessmentID   string            `json:"assessmentId"`
	UserID         string            `json:"userId,omitempty"`
	IntegrityScore float64           `json:"integrityScore"`
	Flags          []string          `json:"flags"`
	Metrics        TelemetrySnapshot `json:"metrics"`
	Severity       Severity          `json:"severity"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ScoreRequest asks for a stateless score of a supplied snapshot.
type ScoreRequest struct {
	AssessmentID string            `json:"assessmentId" binding:"max=128"`
	Metrics      TelemetrySnapshot `json:"metrics"`
}

// Float is a helper for building optional metric values.
func Float(v float64) *float64 { return &v }

// TelemetryEvent is a raw telemetry delta queued for the audit trail.
type TelemetryEvent struct {
	AssessmentID string `json:"assessment_id"`
	UserID       string `json:"user_id"`
	Timestamp    int64  `json:"timestamp"`
	Payload      string `json:"payload"`
}
