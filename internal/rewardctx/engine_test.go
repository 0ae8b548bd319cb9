package rewardctx

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/mocks"
	"github.com/motivo-run/motivo-server/internal/protocol"
	"github.com/motivo-run/motivo-server/internal/rewards"
)

func testBuffer(t *testing.T, n int) *Buffer {
	t.Helper()
	snaps := make([]collab.Snapshot, n)
	obs := make([][]float32, n)
	for i := range snaps {
		snaps[i] = collab.Snapshot{BodyPos: map[string][]float64{"Pelvis": {0, 0, 1.4}}}
		obs[i] = []float32{float32(i)}
	}
	return &Buffer{snapshots: snaps, observations: obs}
}

func TestComputeSyncCachesOnSecondCall(t *testing.T) {
	policy := mocks.NewPolicy(t)
	policy.On("RewardWeightedInference", mock.Anything, mock.Anything, mock.Anything).
		Return(collab.Context{0.1, 0.2, 0.3}, nil).Once()

	cache, err := NewCache(t.TempDir(), 10)
	require.NoError(t, err)
	engine := NewEngine(rewards.NewRegistry(), testBuffer(t, 50), policy, cache, 4, 20, []float32{0, 0, 0})

	spec := protocol.RewardSpec{
		Rewards: []protocol.RewardPrimitive{{Name: "standing", Params: map[string]any{"stand_height": 1.4}}},
		Weights: []float64{1.0},
	}

	z1, err := engine.ComputeSync(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, z1)

	z2, err := engine.ComputeSync(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, z1, z2)

	policy.AssertNumberOfCalls(t, "RewardWeightedInference", 1)
}

func TestComputeAsyncValidationFailureDoesNotFallBack(t *testing.T) {
	policy := mocks.NewPolicy(t)
	cache, err := NewCache(t.TempDir(), 10)
	require.NoError(t, err)
	engine := NewEngine(rewards.NewRegistry(), testBuffer(t, 50), policy, cache, 4, 20, []float32{9, 9})

	spec := protocol.RewardSpec{Rewards: []protocol.RewardPrimitive{{Name: "does-not-exist"}}}

	done := make(chan struct{})
	var gotFallback bool
	var gotErr error
	var gotCtx []float32
	engine.ComputeAsync(context.Background(), spec, func(ctxVec []float32, fallback bool, err error) {
		gotCtx, gotFallback, gotErr = ctxVec, fallback, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ComputeAsync callback")
	}

	require.Error(t, gotErr)
	assert.False(t, gotFallback)
	assert.Nil(t, gotCtx)
	assert.False(t, engine.IsBusy())
}

func TestComputeAsyncInferenceFailureFallsBackToDefault(t *testing.T) {
	policy := mocks.NewPolicy(t)
	policy.On("RewardWeightedInference", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assertErr)

	cache, err := NewCache(t.TempDir(), 10)
	require.NoError(t, err)
	defaultCtx := []float32{7, 7}
	engine := NewEngine(rewards.NewRegistry(), testBuffer(t, 50), policy, cache, 4, 20, defaultCtx)

	spec := protocol.RewardSpec{Rewards: []protocol.RewardPrimitive{{Name: "standing"}}}

	done := make(chan struct{})
	var gotFallback bool
	var gotCtx []float32
	engine.ComputeAsync(context.Background(), spec, func(ctxVec []float32, fallback bool, err error) {
		gotCtx, gotFallback = ctxVec, fallback
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ComputeAsync callback")
	}

	assert.True(t, gotFallback)
	assert.Equal(t, defaultCtx, gotCtx)
}

func TestMixEmptyBUsesAOnly(t *testing.T) {
	policy := mocks.NewPolicy(t)
	policy.On("RewardWeightedInference", mock.Anything, mock.Anything, mock.Anything).
		Return(collab.Context{1, 0, 0}, nil).Once()

	cache, err := NewCache(t.TempDir(), 10)
	require.NoError(t, err)
	engine := NewEngine(rewards.NewRegistry(), testBuffer(t, 50), policy, cache, 4, 20, nil)

	specA := protocol.RewardSpec{Rewards: []protocol.RewardPrimitive{{Name: "standing"}}}
	specB := protocol.RewardSpec{}

	done := make(chan struct{})
	var got []float32
	engine.Mix(context.Background(), specA, specB, 0.7, MixLinear, HoldPoseBatchSize, func(ctxVec []float32, err error) {
		require.NoError(t, err)
		got = ctxVec
		close(done)
	})
	<-done
	assert.Equal(t, []float32{1, 0, 0}, got)
}

func TestSlerpFallsBackToLinearWhenNearlyParallel(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0.00001, 0} // nearly parallel to a
	out := slerp(a, b, 0.5)
	linear := linearCombine(a, b, 0.5)
	assert.InDelta(t, float64(linear[0]), float64(out[0]), 1e-4)
}

func TestSlerpInterpolatesOrthogonalVectorsAtMidpoint(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	out := slerp(a, b, 0.5)
	// Midpoint of two orthonormal vectors lies on the unit circle bisector.
	assert.InDelta(t, math.Sqrt2/2, float64(out[0]), 1e-6)
	assert.InDelta(t, math.Sqrt2/2, float64(out[1]), 1e-6)
}

func TestGoalTrackingEmbeddingRestoresPhysicsAfterInference(t *testing.T) {
	env := mocks.NewEnvironment(t)
	policy := mocks.NewPolicy(t)

	snap := collab.Snapshot{QPos: []float64{1, 2, 3}, QVel: []float64{0, 0, 0}}
	env.On("CurrentSnapshot", mock.Anything).Return(snap, nil).Once()
	env.On("SetPhysics", mock.Anything, []float64{9, 9, 9}, []float64{0, 0, 0}).Return(nil).Once()
	env.On("Observation", mock.Anything).Return([]float32{0.5}, nil).Once()
	env.On("SetPhysics", mock.Anything, snap.QPos, snap.QVel).Return(nil).Once()
	policy.On("GoalTrackingEmbedding", mock.Anything, collab.InferenceGoal, []float32{0.5}).
		Return(collab.Context{0.9}, nil).Once()

	cache, err := NewCache(t.TempDir(), 10)
	require.NoError(t, err)
	engine := NewEngine(rewards.NewRegistry(), testBuffer(t, 10), policy, cache, 4, 20, nil)

	z, err := engine.GoalTrackingEmbedding(context.Background(), env, collab.InferenceGoal, []float64{9, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9}, z)
}

func TestSetBatchSizeRejectsOutOfRange(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 10)
	require.NoError(t, err)
	engine := NewEngine(rewards.NewRegistry(), testBuffer(t, 10), mocks.NewPolicy(t), cache, 4, 20, nil)

	require.Error(t, engine.SetBatchSize(5))
	require.Error(t, engine.SetBatchSize(10_000))
	require.NoError(t, engine.SetBatchSize(1200))
	assert.Equal(t, 1200, engine.BatchSize())
}

var assertErr = assertErrType{}

type assertErrType struct{}

func (assertErrType) Error() string { return "inference backend unavailable" }
