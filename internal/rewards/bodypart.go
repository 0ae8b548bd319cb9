package rewards

import (
	"math"

	"github.com/motivo-run/motivo-server/internal/collab"
)

// registerBodyPartTargets adds the head/pelvis/hand/foot height-or-distance
// primitives from spec.md §4.1, each parameterized by a named body, a
// target value, and a tolerance; the two distance primitives also take a
// reference body (default "Pelvis").
func registerBodyPartTargets(r *Registry) {
	r.Register("body-height", bodyHeightConstructor)
	r.Register("body-lateral-distance", bodyAxisDistanceConstructor(1))
	r.Register("body-forward-distance", bodyAxisDistanceConstructor(0))
}

func bodyHeightConstructor(params map[string]any) (Primitive, error) {
	body, err := stringParam(params, "body", "")
	if err != nil || body == "" {
		return nil, &ValidationError{"body-height", "missing required string parameter \"body\""}
	}
	target, err := floatParam(params, "target", 1.0)
	if err != nil {
		return nil, &ValidationError{"body-height", err.Error()}
	}
	tol, err := floatParam(params, "tolerance", 0.1)
	if err != nil {
		return nil, &ValidationError{"body-height", err.Error()}
	}
	return ComputeFunc(func(s collab.Snapshot) float64 {
		pos, ok := s.BodyPos[body]
		if !ok || len(pos) < 3 {
			return 0
		}
		return tolerance(pos[2], target-tol/2, target+tol/2, tol, 0.1, "linear")
	}), nil
}

// bodyAxisDistanceConstructor returns a constructor for a primitive scoring
// the distance between a body and a reference body along one horizontal axis
// (0=x/forward, 1=y/lateral).
func bodyAxisDistanceConstructor(axis int) Constructor {
	return func(params map[string]any) (Primitive, error) {
		body, err := stringParam(params, "body", "")
		if err != nil || body == "" {
			return nil, &ValidationError{"body-axis-distance", "missing required string parameter \"body\""}
		}
		ref, err := stringParam(params, "reference", "Pelvis")
		if err != nil {
			return nil, &ValidationError{"body-axis-distance", err.Error()}
		}
		target, err := floatParam(params, "target", 0.3)
		if err != nil {
			return nil, &ValidationError{"body-axis-distance", err.Error()}
		}
		tol, err := floatParam(params, "tolerance", 0.1)
		if err != nil {
			return nil, &ValidationError{"body-axis-distance", err.Error()}
		}
		return ComputeFunc(func(s collab.Snapshot) float64 {
			pos, ok1 := s.BodyPos[body]
			refPos, ok2 := s.BodyPos[ref]
			if !ok1 || !ok2 || len(pos) < 3 || len(refPos) < 3 {
				return 0
			}
			dist := math.Abs(pos[axis] - refPos[axis])
			return tolerance(dist, target-tol/2, target+tol/2, tol, 0.1, "linear")
		}), nil
	}
}
