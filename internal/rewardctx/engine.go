package rewardctx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/logger"
	"github.com/motivo-run/motivo-server/internal/protocol"
	"github.com/motivo-run/motivo-server/internal/rewards"
)

// Batch size bounds enforced by update_reward_computation (spec.md §4.9) and
// the hold-pose pathway's fixed override (spec.md §4.3 step 2).
const (
	MinBatchSize      = 10
	MaxBatchSize      = 5000
	HoldPoseBatchSize = 750
)

// Mixing strategies accepted by Mix, per spec.md §4.3.
const (
	MixLinear     = "linear"
	MixNormalized = "normalized"
	MixSlerp      = "slerp"
)

// Engine is C3: it compiles reward specifications against the Reward
// Buffer, runs batch evaluation on a capped worker pool, and calls into the
// policy collaborator for reward-weighted and goal/tracking/embedding
// inference. Grounded on original_source/motivo/reward_context.py's
// compute_reward_context pipeline and message_handler.py's
// handle_mix_pose_reward.
type Engine struct {
	registry       *rewards.Registry
	buffer         *Buffer
	policy         collab.Policy
	cache          *Cache
	defaultContext []float32

	sem *semaphore.Weighted

	mu        sync.RWMutex
	batchSize int

	busy atomic.Bool
}

// NewEngine constructs an Engine. A workerPoolSize outside (0, 8] is
// replaced by 8; a defaultBatchSize outside [MinBatchSize, MaxBatchSize] is
// replaced by HoldPoseBatchSize.
func NewEngine(registry *rewards.Registry, buffer *Buffer, policy collab.Policy, cache *Cache, workerPoolSize, defaultBatchSize int, defaultContext []float32) *Engine {
	if workerPoolSize <= 0 || workerPoolSize > 8 {
		workerPoolSize = 8
	}
	if defaultBatchSize < MinBatchSize || defaultBatchSize > MaxBatchSize {
		defaultBatchSize = HoldPoseBatchSize
	}
	return &Engine{
		registry:       registry,
		buffer:         buffer,
		policy:         policy,
		cache:          cache,
		defaultContext: defaultContext,
		sem:            semaphore.NewWeighted(int64(workerPoolSize)),
		batchSize:      defaultBatchSize,
	}
}

// IsBusy reports whether an async computation is currently in flight.
func (e *Engine) IsBusy() bool { return e.busy.Load() }

// Cache exposes the engine's disk+memory cache so the dispatcher can resolve
// a spec's on-disk cache file path for the wire protocol's cache_file field.
func (e *Engine) Cache() *Cache { return e.cache }

// BatchSize returns the engine's current default batch size.
func (e *Engine) BatchSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.batchSize
}

// SetBatchSize reconfigures the default batch size, rejecting values outside
// [MinBatchSize, MaxBatchSize] per update_reward_computation's contract.
func (e *Engine) SetBatchSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return fmt.Errorf("rewardctx: batch size %d out of range [%d, %d]", n, MinBatchSize, MaxBatchSize)
	}
	e.mu.Lock()
	e.batchSize = n
	e.mu.Unlock()
	return nil
}

type compiledPrimitive struct {
	prim   rewards.Primitive
	weight float64
}

func (e *Engine) compile(spec protocol.RewardSpec) ([]compiledPrimitive, error) {
	if len(spec.Rewards) == 0 {
		return nil, &rewards.ValidationError{Primitive: "(spec)", Reason: "reward specification has no primitives"}
	}
	out := make([]compiledPrimitive, len(spec.Rewards))
	for i, rp := range spec.Rewards {
		p, err := e.registry.Build(rp.Name, rp.Params)
		if err != nil {
			return nil, err
		}
		w := 1.0
		if i < len(spec.Weights) {
			w = spec.Weights[i]
		}
		out[i] = compiledPrimitive{prim: p, weight: w}
	}
	return out, nil
}

// combine folds one sample's per-primitive values into a scalar reward,
// matching original_source/motivo/reward_context.py's additive/
// multiplicative/min/max/geometric combiners exactly (spec.md §4.3 step 3).
func combine(compiled []compiledPrimitive, snap collab.Snapshot, combinationType string) float64 {
	switch combinationType {
	case "additive":
		total := 0.0
		for _, c := range compiled {
			total += c.weight * c.prim.Compute(snap)
		}
		return total
	case "min", "max":
		best := 0.0
		for i, c := range compiled {
			v := c.weight * c.prim.Compute(snap)
			if i == 0 {
				best = v
				continue
			}
			if combinationType == "min" && v < best {
				best = v
			}
			if combinationType == "max" && v > best {
				best = v
			}
		}
		return best
	case "geometric":
		prod := 1.0
		for _, c := range compiled {
			v := math.Max(c.prim.Compute(snap), 1e-8)
			prod *= math.Pow(v, c.weight)
		}
		return math.Pow(prod, 1.0/float64(len(compiled)))
	default: // "multiplicative"
		prod := 1.0
		for _, c := range compiled {
			prod *= math.Pow(c.prim.Compute(snap), c.weight)
		}
		return prod
	}
}

// computeCore runs the full pipeline: validate, cache lookup, batch sample,
// parallel evaluate, policy inference, cache store. batchOverride of 0 uses
// the engine's configured default.
func (e *Engine) computeCore(ctx context.Context, spec protocol.RewardSpec, batchOverride int) ([]float32, error) {
	compiled, err := e.compile(spec)
	if err != nil {
		return nil, err
	}

	fp, err := Fingerprint(spec)
	if err != nil {
		return nil, fmt.Errorf("rewardctx: computing fingerprint: %w", err)
	}
	if cached, ok := e.cache.Get(fp); ok {
		return cached, nil
	}

	if e.buffer == nil || e.buffer.Len() == 0 {
		return nil, fmt.Errorf("rewardctx: reward buffer not loaded")
	}
	batchSize := batchOverride
	if batchSize <= 0 {
		batchSize = e.BatchSize()
	}
	idx := e.buffer.Sample(batchSize)

	combinationType := spec.CombinationType
	if combinationType == "" {
		combinationType = "multiplicative"
	}

	rewardVec := make([]float64, batchSize)
	obsBatch := make([][]float32, batchSize)

	group, groupCtx := errgroup.WithContext(ctx)
	for i, sampleIdx := range idx {
		i, sampleIdx := i, sampleIdx
		if err := e.sem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer e.sem.Release(1)
			snap, obs := e.buffer.At(sampleIdx)
			rewardVec[i] = combine(compiled, snap, combinationType)
			obsBatch[i] = obs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("rewardctx: batch evaluation: %w", err)
	}

	z, err := e.policy.RewardWeightedInference(ctx, obsBatch, rewardVec)
	if err != nil {
		return nil, fmt.Errorf("rewardctx: reward-weighted inference: %w", err)
	}
	ctxVec := []float32(z)

	if err := e.cache.Put(fp, ctxVec); err != nil {
		logger.With("component", "rewardctx").Warn("failed to persist context to disk cache", "fingerprint", fp, "error", err)
	}
	return ctxVec, nil
}

// ComputeSync blocks until the context is computed. Used only at startup
// (spec.md §4.3) — callers on the hot path must use ComputeAsync instead.
func (e *Engine) ComputeSync(ctx context.Context, spec protocol.RewardSpec) ([]float32, error) {
	return e.computeCore(ctx, spec, 0)
}

// ComputeAsync runs the pipeline off the caller's goroutine and invokes
// onDone exactly once. fallbackToDefault tells the caller whether to reset
// the active context to the engine's default-idle context: true on an
// inference/buffer failure, false on a validation failure (terminal, active
// context unchanged) or success.
func (e *Engine) ComputeAsync(ctx context.Context, spec protocol.RewardSpec, onDone func(ctxVec []float32, fallbackToDefault bool, err error)) {
	e.busy.Store(true)
	go func() {
		defer e.busy.Store(false)
		ctxVec, err := e.computeCore(ctx, spec, 0)
		if err != nil {
			var verr *rewards.ValidationError
			if errors.As(err, &verr) {
				onDone(nil, false, err)
				return
			}
			logger.With("component", "rewardctx").Error("context computation failed, falling back to default", "error", err)
			onDone(e.defaultContext, true, err)
			return
		}
		onDone(ctxVec, false, nil)
	}()
}

// Mix schedules computation of specA and specB concurrently, awaits both,
// and blends the results per strategy and weight (spec.md §4.3). An empty
// specB is treated as "use A", not an error. batchOverride lets the
// hold-pose pathway force HoldPoseBatchSize.
func (e *Engine) Mix(ctx context.Context, specA, specB protocol.RewardSpec, weight float64, strategy string, batchOverride int, onDone func(ctxVec []float32, err error)) {
	e.busy.Store(true)
	go func() {
		defer e.busy.Store(false)

		var zA, zB []float32
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			v, err := e.computeCore(groupCtx, specA, batchOverride)
			if err != nil {
				return fmt.Errorf("component A: %w", err)
			}
			zA = v
			return nil
		})
		hasB := len(specB.Rewards) > 0
		if hasB {
			group.Go(func() error {
				v, err := e.computeCore(groupCtx, specB, batchOverride)
				if err != nil {
					return fmt.Errorf("component B: %w", err)
				}
				zB = v
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			onDone(e.defaultContext, err)
			return
		}
		if !hasB {
			onDone(zA, nil)
			return
		}
		mixed, err := mix(zA, zB, weight, strategy)
		if err != nil {
			onDone(e.defaultContext, err)
			return
		}
		onDone(mixed, nil)
	}()
}

// mix blends two equal-length context vectors per strategy.
func mix(a, b []float32, w float64, strategy string) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("rewardctx: mix dimension mismatch (%d vs %d)", len(a), len(b))
	}
	switch strategy {
	case MixNormalized:
		return l2Normalize(linearCombine(a, b, w)), nil
	case MixSlerp:
		return slerp(a, b, w), nil
	default: // MixLinear
		return linearCombine(a, b, w), nil
	}
}

func linearCombine(a, b []float32, w float64) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32((1-w)*float64(a[i]) + w*float64(b[i]))
	}
	return out
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-12 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// slerpDegenerateThreshold is the sin(omega) floor below which slerp's
// 1/sin(omega) term is numerically unstable and linear interpolation is
// substituted instead (spec.md §4.3, REDESIGN FLAGS).
const slerpDegenerateThreshold = 1e-4

func slerp(a, b []float32, w float64) []float32 {
	na := l2Normalize(a)
	nb := l2Normalize(b)
	var dot float64
	for i := range na {
		dot += float64(na[i]) * float64(nb[i])
	}
	dot = math.Max(-1, math.Min(1, dot))
	omega := math.Acos(dot)
	sinOmega := math.Sin(omega)
	if sinOmega < slerpDegenerateThreshold {
		return linearCombine(a, b, w)
	}
	s0 := math.Sin((1-w)*omega) / sinOmega
	s1 := math.Sin(w*omega) / sinOmega
	out := make([]float32, len(na))
	for i := range na {
		out[i] = float32(s0*float64(na[i]) + s1*float64(nb[i]))
	}
	return out
}

// GoalTrackingEmbedding implements the goal/tracking/embedding pathway: it
// saves the environment's physics, sets it to the target pose, observes,
// restores the original physics, and delegates to the policy's matching
// inference entry point (spec.md §4.3 "Goal/tracking/context inference").
func (e *Engine) GoalTrackingEmbedding(ctx context.Context, env collab.Environment, kind collab.InferenceKind, qpos []float64) ([]float32, error) {
	snap, err := env.CurrentSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rewardctx: reading current snapshot: %w", err)
	}
	savedQPos := append([]float64(nil), snap.QPos...)
	savedQVel := append([]float64(nil), snap.QVel...)

	if err := env.SetPhysics(ctx, qpos, make([]float64, len(savedQVel))); err != nil {
		return nil, fmt.Errorf("rewardctx: setting target physics: %w", err)
	}
	defer func() {
		if err := env.SetPhysics(ctx, savedQPos, savedQVel); err != nil {
			logger.With("component", "rewardctx").Warn("failed to restore physics after goal inference", "error", err)
		}
	}()

	obs, err := env.Observation(ctx)
	if err != nil {
		return nil, fmt.Errorf("rewardctx: observing target pose: %w", err)
	}

	z, err := e.policy.GoalTrackingEmbedding(ctx, kind, obs)
	if err != nil {
		return nil, fmt.Errorf("rewardctx: goal/tracking/embedding inference: %w", err)
	}
	return []float32(z), nil
}

// DefaultContext returns the precomputed default-idle context used as a
// fallback on inference failure.
func (e *Engine) DefaultContext() []float32 { return e.defaultContext }

// SetDefaultContext overwrites the default-idle context returned by
// DefaultContext and used as ComputeAsync's inference-failure fallback.
// Meant to be called once at startup, right after ComputeSync produces the
// real idle-stand context (spec.md §8 scenario 1) — not safe to call once
// the engine is serving concurrent requests.
func (e *Engine) SetDefaultContext(ctxVec []float32) { e.defaultContext = ctxVec }
