package rewards

import (
	"math"

	"github.com/motivo-run/motivo-server/internal/collab"
)

// registerBehavioralComposites adds standing, upright, balance, symmetry,
// energy-efficiency and small-control, grounded on
// original_source/motivo/rewards/behaviour_rewards.py's StandingReward,
// UprightReward, BalanceReward, SymmetryReward, EnergyEfficiencyReward and
// SmallControlReward classes.
func registerBehavioralComposites(r *Registry) {
	r.Register("standing", func(params map[string]any) (Primitive, error) {
		standHeight, err := floatParam(params, "stand_height", 1.4)
		if err != nil {
			return nil, &ValidationError{"standing", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pelvis := s.BodyPos["Pelvis"]
			if len(pelvis) < 3 {
				return 0
			}
			return tolerance(pelvis[2], standHeight-0.2, standHeight+0.5, 0.3, 0.05, "linear")
		}), nil
	})

	r.Register("upright", func(params map[string]any) (Primitive, error) {
		return ComputeFunc(func(s collab.Snapshot) float64 {
			// The z-column of the pelvis rotation matrix is the body's "up" axis;
			// its alignment with world-up is cos(tilt).
			upZ := s.PelvisRot[8]
			return clamp01(upZ)
		}), nil
	})

	r.Register("balance", func(params map[string]any) (Primitive, error) {
		return ComputeFunc(func(s collab.Snapshot) float64 {
			lToe, okL := s.BodyPos["L_Toe"]
			rToe, okR := s.BodyPos["R_Toe"]
			pelvis, okP := s.BodyPos["Pelvis"]
			if !okL || !okR || !okP {
				return 0
			}
			supportCenterX := (lToe[0] + rToe[0]) / 2
			supportCenterY := (lToe[1] + rToe[1]) / 2
			offset := math.Hypot(pelvis[0]-supportCenterX, pelvis[1]-supportCenterY)
			return tolerance(offset, 0, 0.15, 0.3, 0.1, "linear")
		}), nil
	})

	r.Register("symmetry", func(params map[string]any) (Primitive, error) {
		return ComputeFunc(func(s collab.Snapshot) float64 {
			lHand, okLH := s.BodyPos["L_Hand"]
			rHand, okRH := s.BodyPos["R_Hand"]
			lToe, okLT := s.BodyPos["L_Toe"]
			rToe, okRT := s.BodyPos["R_Toe"]
			if !okLH || !okRH || !okLT || !okRT {
				return 0
			}
			handAsym := math.Abs(lHand[2] - rHand[2])
			toeAsym := math.Abs(lToe[2] - rToe[2])
			return tolerance(handAsym+toeAsym, 0, 0.05, 0.3, 0.1, "linear")
		}), nil
	})

	r.Register("energy-efficiency", func(params map[string]any) (Primitive, error) {
		return ComputeFunc(func(s collab.Snapshot) float64 {
			if len(s.Control) == 0 {
				return 1
			}
			sumSq := 0.0
			for _, c := range s.Control {
				sumSq += c * c
			}
			meanSq := sumSq / float64(len(s.Control))
			return tolerance(meanSq, 0, 0.1, 1.0, 0.1, "linear")
		}), nil
	})

	r.Register("small-control", func(params map[string]any) (Primitive, error) {
		margin, err := floatParam(params, "margin", 1.0)
		if err != nil {
			return nil, &ValidationError{"small-control", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			if len(s.Control) == 0 {
				return 1
			}
			maxAbs := 0.0
			for _, c := range s.Control {
				if a := math.Abs(c); a > maxAbs {
					maxAbs = a
				}
			}
			return tolerance(maxAbs, 0, 0.3, margin, 0.1, "quadratic")
		}), nil
	})
}
