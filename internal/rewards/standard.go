package rewards

import (
	"math"

	"github.com/motivo-run/motivo-server/internal/collab"
)

// registerStandard adds the predefined movement/pose archetypes named in
// spec.md §4.1: jump, rotation, crawl, lie-down, sit, split, locomotion,
// move-ego, arms-raise, headstand. Each reduces to a handful of body
// heights/angles/velocities scored against a target with tolerance(),
// grounded on original_source/motivo/rewards/task_rewards.py's archetype
// shape. move-ego's parameter set (move_speed, stand_height, move_angle,
// egocentric_target, low_height, stay_low) is documented in
// original_source/motivo/reward_context.py's reward-name dispatch, which
// maps it to humenv_rewards.LocomotionReward — a third-party library whose
// source isn't available here, so its scoring below is reconstructed from
// the documented parameters in this package's own tolerance()-based idiom
// rather than ported line by line.
func registerStandard(r *Registry) {
	r.Register("jump", func(params map[string]any) (Primitive, error) {
		height, err := floatParam(params, "height", 1.6)
		if err != nil {
			return nil, &ValidationError{"jump", err.Error()}
		}
		margin, err := floatParam(params, "margin", 0.3)
		if err != nil {
			return nil, &ValidationError{"jump", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pelvis := s.BodyPos["Pelvis"]
			if len(pelvis) < 3 {
				return 0
			}
			return tolerance(pelvis[2], height-0.05, height+0.05, margin, 0.1, "linear")
		}), nil
	})

	r.Register("rotation", func(params map[string]any) (Primitive, error) {
		axis, err := stringParam(params, "axis", "z")
		if err != nil {
			return nil, &ValidationError{"rotation", err.Error()}
		}
		speed, err := floatParam(params, "angular_velocity", 3.0)
		if err != nil {
			return nil, &ValidationError{"rotation", err.Error()}
		}
		axisIdx := axisIndex(axis)
		return ComputeFunc(func(s collab.Snapshot) float64 {
			if len(s.QVel) <= axisIdx+3 {
				return 0
			}
			actual := math.Abs(s.QVel[axisIdx+3])
			return tolerance(actual, speed-0.5, speed+0.5, speed, 0.1, "linear")
		}), nil
	})

	r.Register("crawl", func(params map[string]any) (Primitive, error) {
		targetHeight, err := floatParam(params, "height", 0.4)
		if err != nil {
			return nil, &ValidationError{"crawl", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pelvis := s.BodyPos["Pelvis"]
			if len(pelvis) < 3 {
				return 0
			}
			return tolerance(pelvis[2], targetHeight-0.1, targetHeight+0.1, 0.2, 0.1, "linear")
		}), nil
	})

	r.Register("lie-down", func(params map[string]any) (Primitive, error) {
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pelvis := s.BodyPos["Pelvis"]
			if len(pelvis) < 3 {
				return 0
			}
			return tolerance(pelvis[2], 0.0, 0.25, 0.2, 0.1, "linear")
		}), nil
	})

	r.Register("sit", func(params map[string]any) (Primitive, error) {
		targetHeight, err := floatParam(params, "height", 0.6)
		if err != nil {
			return nil, &ValidationError{"sit", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pelvis := s.BodyPos["Pelvis"]
			if len(pelvis) < 3 {
				return 0
			}
			return tolerance(pelvis[2], targetHeight-0.08, targetHeight+0.08, 0.2, 0.1, "linear")
		}), nil
	})

	r.Register("split", func(params map[string]any) (Primitive, error) {
		targetDist, err := floatParam(params, "distance", 1.2)
		if err != nil {
			return nil, &ValidationError{"split", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			lToe, okL := s.BodyPos["L_Toe"]
			rToe, okR := s.BodyPos["R_Toe"]
			if !okL || !okR || len(lToe) < 3 || len(rToe) < 3 {
				return 0
			}
			dist := math.Hypot(lToe[0]-rToe[0], lToe[1]-rToe[1])
			return tolerance(dist, targetDist-0.1, targetDist+0.1, 0.3, 0.1, "linear")
		}), nil
	})

	r.Register("locomotion", func(params map[string]any) (Primitive, error) {
		moveSpeed, err := floatParam(params, "move_speed", 2.0)
		if err != nil {
			return nil, &ValidationError{"locomotion", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			if len(s.QVel) < 2 {
				return 0
			}
			speed := math.Hypot(s.QVel[0], s.QVel[1])
			return tolerance(speed, moveSpeed-0.3, moveSpeed+0.3, moveSpeed, 0.1, "linear")
		}), nil
	})

	r.Register("move-ego", func(params map[string]any) (Primitive, error) {
		moveSpeed, err := floatParam(params, "move_speed", 2.0)
		if err != nil {
			return nil, &ValidationError{"move-ego", err.Error()}
		}
		standHeight, err := floatParam(params, "stand_height", 1.4)
		if err != nil {
			return nil, &ValidationError{"move-ego", err.Error()}
		}
		moveAngle, err := floatParam(params, "move_angle", 0)
		if err != nil {
			return nil, &ValidationError{"move-ego", err.Error()}
		}
		egocentricTarget, err := boolParam(params, "egocentric_target", true)
		if err != nil {
			return nil, &ValidationError{"move-ego", err.Error()}
		}
		lowHeight, err := floatParam(params, "low_height", 0.6)
		if err != nil {
			return nil, &ValidationError{"move-ego", err.Error()}
		}
		stayLow, err := boolParam(params, "stay_low", false)
		if err != nil {
			return nil, &ValidationError{"move-ego", err.Error()}
		}
		targetHeight := standHeight
		if stayLow {
			targetHeight = lowHeight
		}
		angleRad := moveAngle * math.Pi / 180
		localDirX, localDirY := math.Cos(angleRad), math.Sin(angleRad)
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pelvis := s.BodyPos["Pelvis"]
			if len(pelvis) < 3 || len(s.QVel) < 2 {
				return 0
			}
			heightScore := tolerance(pelvis[2], targetHeight-0.1, targetHeight+0.1, 0.2, 0.1, "linear")

			dirX, dirY := localDirX, localDirY
			if egocentricTarget {
				// Rotate the requested local direction into the world frame by
				// the pelvis heading, read from the first column of PelvisRot.
				heading := math.Atan2(s.PelvisRot[3], s.PelvisRot[0])
				cosH, sinH := math.Cos(heading), math.Sin(heading)
				dirX = localDirX*cosH - localDirY*sinH
				dirY = localDirX*sinH + localDirY*cosH
			}

			speed := math.Hypot(s.QVel[0], s.QVel[1])
			speedScore := tolerance(speed, moveSpeed-0.3, moveSpeed+0.3, math.Max(moveSpeed, 0.5), 0.1, "linear")

			dirScore := 1.0
			if moveSpeed > 1e-6 && speed > 1e-3 {
				cosSim := (s.QVel[0]*dirX + s.QVel[1]*dirY) / speed
				dirScore = tolerance(cosSim, 0.8, 1.0, 1.0, 0.1, "linear")
			}
			return math.Cbrt(heightScore * speedScore * dirScore)
		}), nil
	})

	r.Register("arms-raise", func(params map[string]any) (Primitive, error) {
		targetHeight, err := floatParam(params, "height", 1.5)
		if err != nil {
			return nil, &ValidationError{"arms-raise", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			lHand, okL := s.BodyPos["L_Hand"]
			rHand, okR := s.BodyPos["R_Hand"]
			if !okL || !okR {
				return 0
			}
			avg := (lHand[2] + rHand[2]) / 2
			return tolerance(avg, targetHeight-0.1, targetHeight+0.1, 0.3, 0.1, "linear")
		}), nil
	})

	r.Register("headstand", func(params map[string]any) (Primitive, error) {
		return ComputeFunc(func(s collab.Snapshot) float64 {
			head, okH := s.BodyPos["Head"]
			pelvis, okP := s.BodyPos["Pelvis"]
			if !okH || !okP {
				return 0
			}
			// Head must be lower than pelvis and near ground.
			inverted := tolerance(pelvis[2]-head[2], 0.3, 2.0, 0.3, 0.1, "linear")
			grounded := tolerance(head[2], 0.0, 0.15, 0.15, 0.1, "linear")
			return math.Sqrt(inverted * grounded)
		}), nil
	})
}

func axisIndex(axis string) int {
	switch axis {
	case "x":
		return 0
	case "y":
		return 1
	default:
		return 2
	}
}
