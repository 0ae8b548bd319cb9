// Package backend provides a minimal in-process stand-in for the two
// external collaborators spec.md §1 places out of scope: the pretrained
// control policy and the physics environment. It exists so cmd/motivod can
// start the whole control plane — simulation loop, context engine, message
// dispatcher, fan-out, recording — without a real model or simulator
// attached. A production deployment replaces this with an adapter to the
// actual inference/physics process; nothing else in this repository depends
// on this package.
package backend

import (
	"context"
	"math"
	"sync"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/pose"
)

// Standin implements both collab.Environment and collab.Policy with fixed,
// deterministic behavior: a motionless standing pose, context responses
// that are deterministic functions of their inputs, and an action that is
// always the zero vector.
type Standin struct {
	mu sync.Mutex

	qpos, qvel []float64
	bodyPos    map[string][]float64
	control    []float64

	contextDim int
	actionDim  int
}

// New builds a Standin whose Policy side reports the given dimensions.
func New(contextDim, actionDim int) *Standin {
	s := &Standin{
		contextDim: contextDim,
		actionDim:  actionDim,
		control:    make([]float64, actionDim),
	}
	s.resetLocked()
	return s
}

func (s *Standin) resetLocked() {
	qpos, err := pose.ToQPos([3]float64{0, 0, 1.4}, make([][3]float64, len(pose.CanonicalBoneOrder)))
	if err != nil {
		// ToQPos only fails on a row-count mismatch, which the zero-value
		// slice above can never trigger.
		panic(err)
	}
	s.qpos = qpos
	s.qvel = make([]float64, len(qpos))
	s.bodyPos = standingBodyPositions()
}

// standingBodyPositions assigns every canonical bone a plausible world
// position along a vertical stack, used only because this package has no
// forward kinematics of its own to derive one from qpos.
func standingBodyPositions() map[string][]float64 {
	positions := make(map[string][]float64, len(pose.CanonicalBoneOrder))
	for i, bone := range pose.CanonicalBoneOrder {
		height := 1.4 - float64(i)*0.05
		positions[bone] = []float64{0, 0, height}
	}
	return positions
}

func (s *Standin) snapshotLocked() collab.Snapshot {
	bodyPos := make(map[string][]float64, len(s.bodyPos))
	for k, v := range s.bodyPos {
		bodyPos[k] = append([]float64(nil), v...)
	}
	return collab.Snapshot{
		QPos:      append([]float64(nil), s.qpos...),
		QVel:      append([]float64(nil), s.qvel...),
		BodyPos:   bodyPos,
		Control:   append([]float64(nil), s.control...),
		Obs:       s.observationLocked(),
		PelvisRot: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
}

func (s *Standin) observationLocked() []float32 {
	obs := make([]float32, len(s.qpos)+len(s.qvel))
	for i, v := range s.qpos {
		obs[i] = float32(v)
	}
	for i, v := range s.qvel {
		obs[len(s.qpos)+i] = float32(v)
	}
	return obs
}

// --- collab.Environment ------------------------------------------------------

func (s *Standin) Step(ctx context.Context, action collab.Action) (collab.Snapshot, []float32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(action)
	if n > len(s.control) {
		n = len(s.control)
	}
	for i := 0; i < n; i++ {
		s.control[i] = float64(action[i])
	}
	snap := s.snapshotLocked()
	return snap, snap.Obs, false, nil
}

func (s *Standin) Reset(ctx context.Context) (collab.Snapshot, []float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	snap := s.snapshotLocked()
	return snap, snap.Obs, nil
}

func (s *Standin) Render(ctx context.Context) ([]byte, int, int, error) {
	const w, h = 640, 480
	rgb := make([]byte, w*h*3)
	for i := range rgb {
		rgb[i] = 64
	}
	return rgb, w, h, nil
}

func (s *Standin) CurrentSnapshot(ctx context.Context) (collab.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Standin) SetPhysics(ctx context.Context, qpos, qvel []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qpos = append([]float64(nil), qpos...)
	s.qvel = append([]float64(nil), qvel...)
	return nil
}

func (s *Standin) Observation(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observationLocked(), nil
}

func (s *Standin) BodyPosition(ctx context.Context, bodyName string) ([]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.bodyPos[bodyName]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), pos...), true
}

func (s *Standin) UpdateParameters(ctx context.Context, params map[string]any) error {
	return nil
}

// --- collab.Policy ------------------------------------------------------------

func (s *Standin) Act(ctx context.Context, obs []float32, z collab.Context) (collab.Action, error) {
	return make(collab.Action, s.actionDim), nil
}

func (s *Standin) QualityScore(ctx context.Context, obs []float32, z collab.Context) (float64, error) {
	return 50.0, nil
}

func (s *Standin) RewardWeightedInference(ctx context.Context, nextObs [][]float32, reward []float64) (collab.Context, error) {
	var mean float64
	for _, r := range reward {
		mean += r
	}
	if len(reward) > 0 {
		mean /= float64(len(reward))
	}
	z := make(collab.Context, s.contextDim)
	for i := range z {
		z[i] = float32(mean * math.Sin(float64(i)+1))
	}
	return z, nil
}

func (s *Standin) GoalTrackingEmbedding(ctx context.Context, kind collab.InferenceKind, obs []float32) (collab.Context, error) {
	z := make(collab.Context, s.contextDim)
	for i := range z {
		if i < len(obs) {
			z[i] = obs[i]
		}
	}
	return z, nil
}

func (s *Standin) ContextDim() int { return s.contextDim }
func (s *Standin) ActionDim() int  { return s.actionDim }
