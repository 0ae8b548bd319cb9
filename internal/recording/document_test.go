package recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTrajectoryRoundTrips(t *testing.T) {
	doc := TrajectoryDocument{
		FrameRate: 60,
		Frames: []TrajectoryFrame{
			{
				Translation:   [3]float64{1, 2, 3},
				Pose:          [][3]float64{{0, 0, 0}, {0.1, 0.2, 0.3}},
				BodyNames:     []string{"Pelvis", "L_Hip"},
				BodyPositions: [][3]float64{{1, 1, 1}, {2, 2, 2}},
				Timestamp:     "2026-08-01T00:00:00Z",
			},
		},
	}

	data, err := encodeTrajectory(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	got, err := decodeTrajectory(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestEncodeTrajectoryHandlesEmptyFrameList(t *testing.T) {
	doc := TrajectoryDocument{FrameRate: 30}
	data, err := encodeTrajectory(doc)
	require.NoError(t, err)

	got, err := decodeTrajectory(data)
	require.NoError(t, err)
	assert.Equal(t, 30, got.FrameRate)
	assert.Empty(t, got.Frames)
}
