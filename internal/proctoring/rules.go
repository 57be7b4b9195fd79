// Package proctoring turns a behavioural telemetry snapshot into an
// integrity score, a severity tier and a stable list of flags.
package proctoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Metric names, in the fixed evaluation order used for flag output.
const (
	MetricNoFace        = "noFace"
	MetricOffScreenTime = "offScreenTime"
	MetricGazeDeviation = "gazeDeviation"
	MetricTabSwitches   = "tabSwitches"
	MetricPasteEvents   = "pasteEvents"
	MetricCopyEvents    = "copyEvents"
	MetricAvgKeyDelay   = "avgKeyDelay"
	MetricBackspaceRate = "backspaceRate"
)

// EvaluationOrder lists every metric in the order flags are emitted.
var EvaluationOrder = []string{
	MetricNoFace,
	MetricOffScreenTime,
	MetricGazeDeviation,
	MetricTabSwitches,
	MetricPasteEvents,
	MetricCopyEvents,
	MetricAvgKeyDelay,
	MetricBackspaceRate,
}

// Flag codes.
const (
	FlagFaceNotDetected       = "FACE_NOT_DETECTED"
	FlagExcessiveOffScreen    = "EXCESSIVE_OFF_SCREEN_TIME"
	FlagGazeDeviation         = "GAZE_DEVIATION"
	FlagExcessiveTabSwitching = "EXCESSIVE_TAB_SWITCHING"
	FlagPasteDetected         = "PASTE_DETECTED"
	FlagCopyDetected          = "COPY_DETECTED"
	FlagAbnormalTypingSpeed   = "ABNORMAL_TYPING_SPEED"
	FlagLowCorrectionRate     = "LOW_CORRECTION_RATE"
)

// Rule configures one metric.
//
// Risk is min(value, Cap)/Cap, or one minus that when Inverse is set (low
// values are the suspicious ones). A flag fires when the value is strictly
// above Threshold, or strictly below it for inverse metrics.
type Rule struct {
	Weight       float64 `json:"weight"`
	Threshold    float64 `json:"threshold"`
	Cap          float64 `json:"cap"`
	Flag         string  `json:"flag"`
	HighSeverity bool    `json:"highSeverity"`
	Inverse      bool    `json:"inverse"`
}

// Rules is the full scoring configuration.
type Rules struct {
	Metrics map[string]Rule `json:"metrics"`
	// Scores below HighBound are high severity.
	HighBound float64 `json:"highBound"`
	// Scores below MediumBound are at least medium severity.
	MediumBound float64 `json:"mediumBound"`
}

// DefaultRules returns the built-in rule table. noFace is the ratio
// noFaceFrames/totalFrames, offScreenTime is in seconds, avgKeyDelay in
// milliseconds and backspaceRate a fraction of keystrokes.
func DefaultRules() Rules {
	return Rules{
		HighBound:   40,
		MediumBound: 70,
		Metrics: map[string]Rule{
			MetricNoFace:        {Weight: 30, Threshold: 0.5, Cap: 1, Flag: FlagFaceNotDetected, HighSeverity: true},
			MetricOffScreenTime: {Weight: 15, Threshold: 30, Cap: 120, Flag: FlagExcessiveOffScreen},
			MetricGazeDeviation: {Weight: 10, Threshold: 0.35, Cap: 1, Flag: FlagGazeDeviation},
			MetricTabSwitches:   {Weight: 20, Threshold: 10, Cap: 20, Flag: FlagExcessiveTabSwitching, HighSeverity: true},
			MetricPasteEvents:   {Weight: 15, Threshold: 0, Cap: 5, Flag: FlagPasteDetected, HighSeverity: true},
			MetricCopyEvents:    {Weight: 5, Threshold: 2, Cap: 10, Flag: FlagCopyDetected},
			MetricAvgKeyDelay:   {Weight: 5, Threshold: 30, Cap: 200, Flag: FlagAbnormalTypingSpeed, Inverse: true},
			MetricBackspaceRate: {Weight: 5, Threshold: 0.01, Cap: 0.1, Flag: FlagLowCorrectionRate, Inverse: true},
		},
	}
}

// Validate checks that every rule is usable.
func (r Rules) Validate() error {
	if r.HighBound < 0 || r.MediumBound > 100 || r.HighBound > r.MediumBound {
		return fmt.Errorf("severity bounds must satisfy 0 <= highBound <= mediumBound <= 100, got %v/%v", r.HighBound, r.MediumBound)
	}
	for name, rule := range r.Metrics {
		if !knownMetric(name) {
			return fmt.Errorf("unknown metric %q", name)
		}
		if rule.Cap <= 0 || math.IsInf(rule.Cap, 0) || math.IsNaN(rule.Cap) {
			return fmt.Errorf("metric %q: cap must be positive", name)
		}
		if rule.Weight < 0 || math.IsNaN(rule.Weight) {
			return fmt.Errorf("metric %q: weight must be >= 0", name)
		}
		if rule.Flag == "" {
			return fmt.Errorf("metric %q: flag code is required", name)
		}
	}
	return nil
}

// LoadRules reads a JSON rule file and overlays it on DefaultRules. Metrics
// present in the file replace the default rule for that metric entirely.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}

	// Pointers tell an explicit 0 bound apart from an absent one.
	var override struct {
		Metrics     map[string]Rule `json:"metrics"`
		HighBound   *float64        `json:"highBound"`
		MediumBound *float64        `json:"mediumBound"`
	}
	if err := json.Unmarshal(raw, &override); err != nil {
		return rules, fmt.Errorf("parse rules file: %w", err)
	}

	for name, rule := range override.Metrics {
		rules.Metrics[name] = rule
	}
	if override.HighBound != nil {
		rules.HighBound = *override.HighBound
	}
	if override.MediumBound != nil {
		rules.MediumBound = *override.MediumBound
	}

	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("invalid rules file: %w", err)
	}
	return rules, nil
}

func knownMetric(name string) bool {
	for _, m := range EvaluationOrder {
		if m == name {
			return true
		}
	}
	return false
}
