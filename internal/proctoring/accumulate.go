package proctoring

import (
	"github.com/stemsi/learntrack-backend/internal/model"
)

// Accumulator hash fields. Counters are summed; gauges keep a running sum
// and sample count so the snapshot reports their mean.
const (
	fieldOffScreenTime = "offScreenTime"
	fieldNoFaceFrames  = "noFaceFrames"
	fieldTotalFrames   = "totalFrames"
	fieldPasteEvents   = "pasteEvents"
	fieldTabSwitches   = "tabSwitches"
	fieldCopyEvents    = "copyEvents"
	fieldGazeDeviation = "gazeDeviation"
	fieldAvgKeyDelay   = "avgKeyDelay"
	fieldBackspaceRate = "backspaceRate"

	sumSuffix   = ":sum"
	countSuffix = ":n"
)

// DeltaFields turns a telemetry delta into increments for the accumulator
// hash. Negative and non-finite values are clamped to 0 first.
func DeltaFields(d model.TelemetryDelta) map[string]float64 {
	s := Sanitize(model.TelemetrySnapshot(d))
	out := make(map[string]float64)

	counter := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	gauge := func(name string, v *float64) {
		if v != nil {
			out[name+sumSuffix] = *v
			out[name+countSuffix] = 1
		}
	}

	counter(fieldOffScreenTime, s.OffScreenTime)
	counter(fieldNoFaceFrames, s.NoFaceFrames)
	counter(fieldTotalFrames, s.TotalFrames)
	counter(fieldPasteEvents, s.PasteEvents)
	counter(fieldTabSwitches, s.TabSwitches)
	counter(fieldCopyEvents, s.CopyEvents)
	gauge(fieldGazeDeviation, s.GazeDeviation)
	gauge(fieldAvgKeyDelay, s.AvgKeyDelay)
	gauge(fieldBackspaceRate, s.BackspaceRate)
	return out
}

// SnapshotFromFields rebuilds a snapshot from accumulated hash fields.
// Metrics that never received a value stay nil.
func SnapshotFromFields(fields map[string]float64) model.TelemetrySnapshot {
	counter := func(name string) *float64 {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		return &v
	}
	gauge := func(name string) *float64 {
		n := fields[name+countSuffix]
		if n <= 0 {
			return nil
		}
		mean := fields[name+sumSuffix] / n
		return &mean
	}

	return model.TelemetrySnapshot{
		OffScreenTime: counter(fieldOffScreenTime),
		NoFaceFrames:  counter(fieldNoFaceFrames),
		TotalFrames:   counter(fieldTotalFrames),
		PasteEvents:   counter(fieldPasteEvents),
		TabSwitches:   counter(fieldTabSwitches),
		CopyEvents:    counter(fieldCopyEvents),
		GazeDeviation: gauge(fieldGazeDeviation),
		AvgKeyDelay:   gauge(fieldAvgKeyDelay),
		BackspaceRate: gauge(fieldBackspaceRate),
	}
}
