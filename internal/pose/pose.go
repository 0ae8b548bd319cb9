// Package pose implements C4, the conversion from a simulator's generalized
// positions (qpos) into a rig-neutral pose representation: a root
// translation, per-joint axis-angle rotations in a canonical order, and the
// named world-frame body positions the simulator's forward kinematics
// already computed. Grounded on
// original_source/motivo/utils/smpl_utils.py's qpos_to_smpl, with MuJoCo's
// mj_kinematics call replaced by collab.Snapshot.BodyPos (the environment
// collaborator is the only component that steps the simulator and therefore
// the only one entitled to run forward kinematics).
package pose

import (
	"fmt"
	"math"

	"github.com/motivo-run/motivo-server/internal/collab"
)

// CanonicalBoneOrder is the fixed joint order every Convert result reports
// in, matching original_source's SMPL_BONE_ORDER_NAMES. The root (Pelvis)
// is first and has no local joint rotation entry of its own — its
// orientation is the root rotation.
var CanonicalBoneOrder = []string{
	"Pelvis",
	"L_Hip", "R_Hip", "Torso",
	"L_Knee", "R_Knee", "Spine",
	"L_Ankle", "R_Ankle", "Chest",
	"L_Toe", "R_Toe",
	"Neck", "L_Thorax", "R_Thorax", "Head",
	"L_Shoulder", "R_Shoulder",
	"L_Elbow", "R_Elbow",
	"L_Wrist", "R_Wrist",
	"L_Hand", "R_Hand",
}

// RootDims is qpos[0:3] (translation) + qpos[3:7] (quaternion), the fixed
// 7-DOF root block every rig places at the start of qpos.
const RootDims = 7

// JointDims is the per-joint Euler angle block size used by every non-root
// bone in CanonicalBoneOrder.
const JointDims = 3

// ExpectedQPosLen is RootDims plus three DOF per non-root bone: 7 + 23*3 =
// 76, the N the spec names as the typical rig size.
var ExpectedQPosLen = RootDims + (len(CanonicalBoneOrder)-1)*JointDims

// Converted is C4's output: the rig-neutral pose representation.
type Converted struct {
	Translation   [3]float64
	Pose          [][3]float64 // one axis-angle vector per CanonicalBoneOrder entry, root first
	BodyNames     []string
	BodyPositions [][3]float64
}

// Convert reads qpos and the snapshot's already-computed body positions and
// produces the rig-neutral representation. It returns an error if qpos is
// shorter than ExpectedQPosLen (a malformed or mismatched rig).
func Convert(qpos []float64, snap collab.Snapshot) (Converted, error) {
	if len(qpos) < ExpectedQPosLen {
		return Converted{}, fmt.Errorf("pose: qpos has length %d, want at least %d", len(qpos), ExpectedQPosLen)
	}

	out := Converted{
		Translation: [3]float64{qpos[0], qpos[1], qpos[2]},
		Pose:        make([][3]float64, len(CanonicalBoneOrder)),
	}

	// MuJoCo's quaternion convention is [w, x, y, z]; the root orientation is
	// the axis-angle form of that quaternion.
	out.Pose[0] = quatToAxisAngle(qpos[3], qpos[4], qpos[5], qpos[6])

	for i := range CanonicalBoneOrder[1:] {
		start := RootDims + i*JointDims
		ex, ey, ez := qpos[start], qpos[start+1], qpos[start+2]
		out.Pose[i+1] = eulerXYZToAxisAngle(ex, ey, ez)
	}

	out.BodyNames = make([]string, 0, len(CanonicalBoneOrder))
	out.BodyPositions = make([][3]float64, 0, len(CanonicalBoneOrder))
	for _, bone := range CanonicalBoneOrder {
		pos, ok := snap.BodyPos[bone]
		if !ok || len(pos) < 3 {
			continue
		}
		out.BodyNames = append(out.BodyNames, bone)
		out.BodyPositions = append(out.BodyPositions, [3]float64{pos[0], pos[1], pos[2]})
	}

	return out, nil
}

// PoseRows returns Pose as the [][]float64 the wire protocol's SMPLUpdate
// expects.
func (c Converted) PoseRows() [][]float64 {
	rows := make([][]float64, len(c.Pose))
	for i, p := range c.Pose {
		rows[i] = []float64{p[0], p[1], p[2]}
	}
	return rows
}

// PositionRows returns BodyPositions as the [][]float64 the wire protocol
// expects, parallel to BodyNames.
func (c Converted) PositionRows() [][]float64 {
	rows := make([][]float64, len(c.BodyPositions))
	for i, p := range c.BodyPositions {
		rows[i] = []float64{p[0], p[1], p[2]}
	}
	return rows
}

// quatToAxisAngle converts a unit quaternion (w, x, y, z) to an axis-angle
// vector whose direction is the rotation axis and magnitude is the angle in
// radians, matching scipy's Rotation.as_rotvec().
func quatToAxisAngle(w, x, y, z float64) [3]float64 {
	w = clampUnit(w)
	angle := 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < 1e-8 {
		return [3]float64{0, 0, 0}
	}
	return [3]float64{x / s * angle, y / s * angle, z / s * angle}
}

// eulerXYZToAxisAngle converts intrinsic XYZ Euler angles (scipy's "XYZ"
// convention: rotate about X, then the new Y, then the new Z) to an
// axis-angle vector by composing the rotation matrix R = Rx * Ry * Rz and
// converting that to axis-angle form.
func eulerXYZToAxisAngle(ex, ey, ez float64) [3]float64 {
	r := matMul3(rotX(ex), matMul3(rotY(ey), rotZ(ez)))
	return matToAxisAngle(r)
}

type mat3 [3][3]float64

func rotX(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(a float64) mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func matMul3(a, b mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

// matToAxisAngle converts a rotation matrix to axis-angle form via the
// standard trace/Rodrigues identity. Near-zero rotations return the zero
// vector rather than an arbitrary axis.
func matToAxisAngle(r mat3) [3]float64 {
	trace := r[0][0] + r[1][1] + r[2][2]
	cosAngle := clampUnit((trace - 1) / 2)
	angle := math.Acos(cosAngle)
	if angle < 1e-8 {
		return [3]float64{0, 0, 0}
	}
	sinAngle := math.Sin(angle)
	if sinAngle < 1e-8 {
		// angle is near pi: the standard formula is numerically unstable
		// here. Recover the axis from the matrix's diagonal instead.
		axis := [3]float64{
			math.Sqrt(math.Max(0, (r[0][0]+1)/2)),
			math.Sqrt(math.Max(0, (r[1][1]+1)/2)),
			math.Sqrt(math.Max(0, (r[2][2]+1)/2)),
		}
		return [3]float64{axis[0] * angle, axis[1] * angle, axis[2] * angle}
	}
	k := angle / (2 * sinAngle)
	return [3]float64{
		(r[2][1] - r[1][2]) * k,
		(r[0][2] - r[2][0]) * k,
		(r[1][0] - r[0][1]) * k,
	}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
