package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motivo-run/motivo-server/internal/collab"
)

func identityQPos() []float64 {
	qpos := make([]float64, ExpectedQPosLen)
	qpos[3] = 1 // identity quaternion w=1
	return qpos
}

func TestConvertRejectsShortQPos(t *testing.T) {
	_, err := Convert([]float64{0, 0, 0}, collab.Snapshot{})
	require.Error(t, err)
}

func TestConvertIdentityPoseYieldsZeroRotations(t *testing.T) {
	out, err := Convert(identityQPos(), collab.Snapshot{BodyPos: map[string][]float64{}})
	require.NoError(t, err)
	for i, p := range out.Pose {
		assert.InDelta(t, 0.0, p[0], 1e-9, "bone %d (%s) x", i, CanonicalBoneOrder[i])
		assert.InDelta(t, 0.0, p[1], 1e-9, "bone %d (%s) y", i, CanonicalBoneOrder[i])
		assert.InDelta(t, 0.0, p[2], 1e-9, "bone %d (%s) z", i, CanonicalBoneOrder[i])
	}
}

func TestConvertPreservesTranslation(t *testing.T) {
	qpos := identityQPos()
	qpos[0], qpos[1], qpos[2] = 1.5, -0.25, 0.9
	out, err := Convert(qpos, collab.Snapshot{BodyPos: map[string][]float64{}})
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1.5, -0.25, 0.9}, out.Translation)
}

func TestConvertOnlyIncludesKnownBodiesInDeclaredOrder(t *testing.T) {
	qpos := identityQPos()
	snap := collab.Snapshot{BodyPos: map[string][]float64{
		"Head":   {0, 0, 1.7},
		"Pelvis": {0, 0, 1.0},
	}}
	out, err := Convert(qpos, snap)
	require.NoError(t, err)
	require.Len(t, out.BodyNames, 2)
	// Pelvis precedes Head in CanonicalBoneOrder regardless of map iteration order.
	assert.Equal(t, "Pelvis", out.BodyNames[0])
	assert.Equal(t, "Head", out.BodyNames[1])
}

func TestQuatAxisAngleRoundTrip(t *testing.T) {
	// A 90 degree rotation about the Z axis.
	angle := math.Pi / 2
	w, x, y, z := math.Cos(angle/2), 0.0, 0.0, math.Sin(angle/2)
	aa := quatToAxisAngle(w, x, y, z)
	assert.InDelta(t, angle, math.Sqrt(aa[0]*aa[0]+aa[1]*aa[1]+aa[2]*aa[2]), 1e-9)

	rw, rx, ry, rz := axisAngleToQuat(aa)
	assert.InDelta(t, w, rw, 1e-9)
	assert.InDelta(t, x, rx, 1e-9)
	assert.InDelta(t, y, ry, 1e-9)
	assert.InDelta(t, z, rz, 1e-9)
}

func TestEulerAxisAngleRoundTrip(t *testing.T) {
	ex, ey, ez := 0.3, -0.2, 0.5
	aa := eulerXYZToAxisAngle(ex, ey, ez)
	gotEx, gotEy, gotEz := axisAngleToEulerXYZ(aa)
	assert.InDelta(t, ex, gotEx, 1e-6)
	assert.InDelta(t, ey, gotEy, 1e-6)
	assert.InDelta(t, ez, gotEz, 1e-6)
}

func TestToQPosRejectsWrongJointCount(t *testing.T) {
	_, err := ToQPos([3]float64{}, make([][3]float64, 3))
	require.Error(t, err)
}

func TestConvertToQPosRoundTrip(t *testing.T) {
	axisAngles := make([][3]float64, len(CanonicalBoneOrder))
	axisAngles[0] = [3]float64{0, 0, math.Pi / 4}
	for i := 1; i < len(axisAngles); i++ {
		axisAngles[i] = [3]float64{0.1, -0.05, 0.02}
	}
	trans := [3]float64{0.1, 0.2, 0.95}

	qpos, err := ToQPos(trans, axisAngles)
	require.NoError(t, err)
	require.Len(t, qpos, ExpectedQPosLen)

	out, err := Convert(qpos, collab.Snapshot{BodyPos: map[string][]float64{}})
	require.NoError(t, err)
	assert.Equal(t, trans, out.Translation)
	for i, want := range axisAngles {
		got := out.Pose[i]
		assert.InDelta(t, want[0], got[0], 1e-6, "bone %d", i)
		assert.InDelta(t, want[1], got[1], 1e-6, "bone %d", i)
		assert.InDelta(t, want[2], got[2], 1e-6, "bone %d", i)
	}
}
