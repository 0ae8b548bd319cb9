package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motivo-run/motivo-server/internal/collab"
)

func TestUnknownPrimitiveIsValidationError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("does-not-exist", nil)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStandingRewardRangesInUnitInterval(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build("standing", map[string]any{"stand_height": 1.4})
	require.NoError(t, err)

	snap := collab.Snapshot{BodyPos: map[string][]float64{"Pelvis": {0, 0, 1.4}}}
	v := p.Compute(snap)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestBodyHeightMissingBodyIsZero(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build("body-height", map[string]any{"body": "Head", "target": 1.7, "tolerance": 0.1})
	require.NoError(t, err)

	v := p.Compute(collab.Snapshot{BodyPos: map[string][]float64{}})
	assert.Equal(t, 0.0, v)
}

func TestBodyHeightMissingBodyParamIsValidationError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("body-height", map[string]any{})
	require.Error(t, err)
}

func TestPositionRewardLocalFrame(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build("position", map[string]any{
		"use_local_frame": true,
		"targets": []any{
			map[string]any{"body": "L_Hand", "z": 0.2, "weight": 1.0, "margin": 0.05, "sigmoid": "linear"},
		},
	})
	require.NoError(t, err)

	snap := collab.Snapshot{
		BodyPos: map[string][]float64{
			"Pelvis": {0, 0, 1.0},
			"L_Hand": {0, 0, 1.2},
		},
		PelvisRot: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	v := p.Compute(snap)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestMoveEgoIdleStandScoresHighAtRestAndStandHeight(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build("move-ego", map[string]any{"move_speed": 0.0, "stand_height": 1.4})
	require.NoError(t, err)

	snap := collab.Snapshot{
		QVel:      make([]float64, 2),
		BodyPos:   map[string][]float64{"Pelvis": {0, 0, 1.4}},
		PelvisRot: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	v := p.Compute(snap)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestMoveEgoMissingStateIsZero(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build("move-ego", map[string]any{})
	require.NoError(t, err)

	v := p.Compute(collab.Snapshot{})
	assert.Equal(t, 0.0, v)
}

func TestMoveEgoStayLowTargetsLowHeight(t *testing.T) {
	r := NewRegistry()
	p, err := r.Build("move-ego", map[string]any{"move_speed": 0.0, "stay_low": true, "low_height": 0.6})
	require.NoError(t, err)

	snap := collab.Snapshot{
		QVel:      make([]float64, 2),
		BodyPos:   map[string][]float64{"Pelvis": {0, 0, 0.6}},
		PelvisRot: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	v := p.Compute(snap)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestPositionRewardRequiresTargets(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("position", map[string]any{})
	require.Error(t, err)
}

func TestRegistryNamesIncludesFullCatalog(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	for _, want := range []string{
		"jump", "rotation", "crawl", "lie-down", "sit", "split", "locomotion",
		"move-ego", "arms-raise", "headstand", "body-height", "body-lateral-distance",
		"body-forward-distance", "standing", "upright", "balance", "symmetry",
		"energy-efficiency", "small-control", "position",
	} {
		assert.Contains(t, names, want)
	}
}
