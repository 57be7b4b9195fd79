package proctoring

import (
	"math"

	"github.com/stemsi/learntrack-backend/internal/model"
)

// Engine scores telemetry snapshots. It holds only its configuration and is
// safe for concurrent use.
type Engine struct {
	rules Rules
}

// NewEngine creates an Engine. Invalid rules are rejected.
func NewEngine(rules Rules) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Engine{rules: rules}, nil
}

// Rules returns the engine's configuration.
func (e *Engine) Rules() Rules { return e.rules }

// Score evaluates one session snapshot. The same input always yields the
// same result; CreatedAt is left for the caller to stamp.
func (e *Engine) Score(assessmentID string, snap model.TelemetrySnapshot) model.ProctoringResult {
	values := Normalize(snap)

	flags := make([]string, 0, len(EvaluationOrder))
	seen := make(map[string]bool, len(EvaluationOrder))
	highFlags := 0
	var penalty float64

	for _, name := range EvaluationOrder {
		v, ok := values[name]
		if !ok {
			continue
		}
		rule, ok := e.rules.Metrics[name]
		if !ok {
			continue
		}

		penalty += risk(v, rule) * rule.Weight

		if fires(v, rule) && !seen[rule.Flag] {
			seen[rule.Flag] = true
			flags = append(flags, rule.Flag)
			if rule.HighSeverity {
				highFlags++
			}
		}
	}

	score := clamp(100-penalty, 0, 100)

	return model.ProctoringResult{
		AssessmentID:   assessmentID,
		IntegrityScore: score,
		Flags:          flags,
		Metrics:        Sanitize(snap),
		Severity:       e.severity(score, len(flags), highFlags),
	}
}

// severity buckets a result. A lone flag is enough for medium; several
// flags that are neither high severity nor costly enough to drop the score
// below MediumBound stay low.
func (e *Engine) severity(score float64, flags, highFlags int) model.Severity {
	switch {
	case score < e.rules.HighBound || highFlags >= 2:
		return model.SeverityHigh
	case score < e.rules.MediumBound || flags == 1:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// Normalize maps the present fields of snap to metric values. Negative or
// non-finite inputs are clamped to 0. The noFace ratio is only present when
// both frame counts are measured and totalFrames is positive.
func Normalize(snap model.TelemetrySnapshot) map[string]float64 {
	s := Sanitize(snap)
	out := make(map[string]float64, len(EvaluationOrder))

	if s.NoFaceFrames != nil && s.TotalFrames != nil && *s.TotalFrames > 0 {
		out[MetricNoFace] = math.Min(1, *s.NoFaceFrames / *s.TotalFrames)
	}
	put := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	put(MetricOffScreenTime, s.OffScreenTime)
	put(MetricGazeDeviation, s.GazeDeviation)
	put(MetricTabSwitches, s.TabSwitches)
	put(MetricPasteEvents, s.PasteEvents)
	put(MetricCopyEvents, s.CopyEvents)
	put(MetricAvgKeyDelay, s.AvgKeyDelay)
	put(MetricBackspaceRate, s.BackspaceRate)
	return out
}

// Sanitize returns a copy of snap with negative and non-finite values
// replaced by 0. Telemetry is best effort and never rejected.
func Sanitize(snap model.TelemetrySnapshot) model.TelemetrySnapshot {
	fix := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		x := *v
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			x = 0
		}
		return &x
	}
	return model.TelemetrySnapshot{
		OffScreenTime: fix(snap.OffScreenTime),
		NoFaceFrames:  fix(snap.NoFaceFrames),
		TotalFrames:   fix(snap.TotalFrames),
		GazeDeviation: fix(snap.GazeDeviation),
		AvgKeyDelay:   fix(snap.AvgKeyDelay),
		PasteEvents:   fix(snap.PasteEvents),
		BackspaceRate: fix(snap.BackspaceRate),
		TabSwitches:   fix(snap.TabSwitches),
		CopyEvents:    fix(snap.CopyEvents),
	}
}

func risk(v float64, r Rule) float64 {
	x := math.Min(v, r.Cap) / r.Cap
	if r.Inverse {
		return 1 - x
	}
	return x
}

func fires(v float64, r Rule) bool {
	if r.Inverse {
		return v < r.Threshold
	}
	return v > r.Threshold
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

