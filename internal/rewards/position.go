package rewards

import (
	"fmt"

	"github.com/motivo-run/motivo-server/internal/collab"
)

// positionTarget is one entry in the general position reward's target
// dictionary: a body name plus per-axis targets, a weight, a margin, and a
// sigmoid shape, matching original_source's PositionTarget dataclass.
type positionTarget struct {
	Body     string
	X, Y, Z  *float64
	Weight   float64
	Margin   float64
	Sigmoid  string
}

// registerPositionReward adds "position", the general dictionary-of-targets
// reward from spec.md §4.1, optionally transformed into the pelvis's local
// frame.
func registerPositionReward(r *Registry) {
	r.Register("position", func(params map[string]any) (Primitive, error) {
		rawTargets, ok := params["targets"].([]any)
		if !ok || len(rawTargets) == 0 {
			return nil, &ValidationError{"position", "missing required array parameter \"targets\""}
		}
		useLocalFrame, err := boolParam(params, "use_local_frame", false)
		if err != nil {
			return nil, &ValidationError{"position", err.Error()}
		}

		targets := make([]positionTarget, 0, len(rawTargets))
		for i, rt := range rawTargets {
			m, ok := rt.(map[string]any)
			if !ok {
				return nil, &ValidationError{"position", fmt.Sprintf("targets[%d] must be an object", i)}
			}
			t, err := parsePositionTarget(m)
			if err != nil {
				return nil, &ValidationError{"position", fmt.Sprintf("targets[%d]: %s", i, err)}
			}
			targets = append(targets, t)
		}

		return ComputeFunc(func(s collab.Snapshot) float64 {
			return evaluatePositionTargets(s, targets, useLocalFrame)
		}), nil
	})
}

func parsePositionTarget(m map[string]any) (positionTarget, error) {
	var t positionTarget
	body, err := stringParam(m, "body", "")
	if err != nil || body == "" {
		return t, fmt.Errorf("missing required string field \"body\"")
	}
	t.Body = body

	if v, ok := m["x"]; ok {
		f, err := floatParam(m, "x", 0)
		if err != nil {
			return t, err
		}
		t.X = &f
		_ = v
	}
	if v, ok := m["y"]; ok {
		f, err := floatParam(m, "y", 0)
		if err != nil {
			return t, err
		}
		t.Y = &f
		_ = v
	}
	if v, ok := m["z"]; ok {
		f, err := floatParam(m, "z", 0)
		if err != nil {
			return t, err
		}
		t.Z = &f
		_ = v
	}

	weight, err := floatParam(m, "weight", 1.0)
	if err != nil {
		return t, err
	}
	t.Weight = weight

	margin, err := floatParam(m, "margin", 0.05)
	if err != nil {
		return t, err
	}
	t.Margin = margin

	sigmoid, err := stringParam(m, "sigmoid", "linear")
	if err != nil {
		return t, err
	}
	t.Sigmoid = sigmoid

	return t, nil
}

func evaluatePositionTargets(s collab.Snapshot, targets []positionTarget, useLocalFrame bool) float64 {
	pelvis := s.BodyPos["Pelvis"]

	total := 0.0
	totalWeight := 0.0
	for _, t := range targets {
		pos, ok := s.BodyPos[t.Body]
		if !ok || len(pos) < 3 {
			continue
		}
		axes := [3]float64{pos[0], pos[1], pos[2]}
		if useLocalFrame && t.Body != "Pelvis" && len(pelvis) >= 3 {
			axes = toLocalFrame(axes, pelvis, s.PelvisRot)
		}

		var axisRewards []float64
		if t.X != nil {
			axisRewards = append(axisRewards, tolerance(axes[0], *t.X-t.Margin, *t.X+t.Margin, t.Margin, 0.01, t.Sigmoid))
		}
		if t.Y != nil {
			axisRewards = append(axisRewards, tolerance(axes[1], *t.Y-t.Margin, *t.Y+t.Margin, t.Margin, 0.01, t.Sigmoid))
		}
		if t.Z != nil {
			axisRewards = append(axisRewards, tolerance(axes[2], *t.Z-t.Margin, *t.Z+t.Margin, t.Margin, 0.01, t.Sigmoid))
		}
		if len(axisRewards) == 0 {
			continue
		}
		sum := 0.0
		for _, ar := range axisRewards {
			sum += ar
		}
		bodyReward := sum / float64(len(axisRewards))
		total += t.Weight * bodyReward
		totalWeight += t.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return total / totalWeight
}

// toLocalFrame expresses a world-frame point relative to the pelvis's
// position and orientation: local = R^T * (p - origin).
func toLocalFrame(p [3]float64, origin []float64, rot [9]float64) [3]float64 {
	d := [3]float64{p[0] - origin[0], p[1] - origin[1], p[2] - origin[2]}
	// rot is row-major 3x3; transpose-multiply means using columns of rot as rows.
	return [3]float64{
		rot[0]*d[0] + rot[3]*d[1] + rot[6]*d[2],
		rot[1]*d[0] + rot[4]*d[1] + rot[7]*d[2],
		rot[2]*d[0] + rot[5]*d[1] + rot[8]*d[2],
	}
}
