package proctoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/learntrack-backend/internal/model"
)

func fold(deltas ...model.TelemetryDelta) map[string]float64 {
	acc := make(map[string]float64)
	for _, d := range deltas {
		for k, v := range DeltaFields(d) {
			acc[k] += v
		}
	}
	return acc
}

func TestAccumulatorSumsCountersAndAveragesGauges(t *testing.T) {
	fields := fold(
		model.TelemetryDelta{TabSwitches: ptr(3), GazeDeviation: ptr(0.2), TotalFrames: ptr(100)},
		model.TelemetryDelta{TabSwitches: ptr(4), GazeDeviation: ptr(0.4), NoFaceFrames: ptr(10)},
		model.TelemetryDelta{TotalFrames: ptr(50)},
	)
	snap := SnapshotFromFields(fields)

	require.NotNil(t, snap.TabSwitches)
	assert.Equal(t, 7.0, *snap.TabSwitches)
	require.NotNil(t, snap.TotalFrames)
	assert.Equal(t, 150.0, *snap.TotalFrames)
	require.NotNil(t, snap.GazeDeviation)
	assert.InDelta(t, 0.3, *snap.GazeDeviation, 1e-9)
	assert.Nil(t, snap.AvgKeyDelay)
	assert.Nil(t, snap.PasteEvents)
}

func TestDeltaFieldsClampsNegativeValues(t *testing.T) {
	fields := DeltaFields(model.TelemetryDelta{PasteEvents: ptr(-2), AvgKeyDelay: ptr(-5)})
	assert.Equal(t, 0.0, fields["pasteEvents"])
	assert.Equal(t, 0.0, fields["avgKeyDelay:sum"])
	assert.Equal(t, 1.0, fields["avgKeyDelay:n"])
}

func TestSnapshotFromEmptyFieldsIsEmpty(t *testing.T) {
	assert.True(t, SnapshotFromFields(nil).IsEmpty())
}
