// Package dispatch implements C9, the message dispatcher: the single owner
// of the active-context slot, the active reward specification, and the
// recording handles, and the sole router of the duplex command channel's
// inbound command table (spec.md §4.9). Grounded on the teacher's
// internal/relay/workers.go handleWingWS (websocket.Accept, register into a
// registry, infinite read-loop unmarshaling an envelope and type-switching
// on it), with one deliberate divergence: every reply is sent through
// fanout.Registry.SendTo rather than conn.Write directly, because this
// registry's broadcast drain goroutine already owns writes to the same
// connection and a second writer would race it.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/fanout"
	"github.com/motivo-run/motivo-server/internal/framefile"
	"github.com/motivo-run/motivo-server/internal/logger"
	"github.com/motivo-run/motivo-server/internal/pose"
	"github.com/motivo-run/motivo-server/internal/protocol"
	"github.com/motivo-run/motivo-server/internal/recording"
	"github.com/motivo-run/motivo-server/internal/rewardctx"
	"github.com/motivo-run/motivo-server/internal/simloop"
)

// ReadLimit bounds one inbound command's frame size; load_pose_smpl's pose
// array is the largest payload the channel carries.
const ReadLimit = 1 << 20

// contextSlot is the single memory location the simulation loop reads each
// tick (spec.md §5 "the active-context slot is an atomic pointer; readers
// never block writers"). Dispatch is its only writer.
type contextSlot struct {
	vector    collab.Context
	cacheFile string
}

// Dispatcher is C9. It owns, behind its own mutex or atomics, every piece of
// cross-connection mutable state the command table touches: the active
// reward spec, the pose reference from the last successful load_pose, the
// last computation's terminal status (debug_model_info reads this once),
// and the active-context slot the simulation loop consumes.
type Dispatcher struct {
	engine    *rewardctx.Engine
	env       collab.Environment
	policy    collab.Policy
	peers     *fanout.Registry
	recorder  *recording.Recorder
	framesDir string

	// envMu serializes dispatcher-initiated calls into the environment
	// collaborator (GoalTrackingEmbedding's and mix_pose_reward's
	// save/mutate/observe/restore round trips, update_parameters,
	// get_target_positions, capture_frame/make_snapshot's render). It does
	// not protect against the simulation loop's own concurrent Step/Render
	// calls — true exclusivity would route these through a request channel
	// into the loop's own tick, which this dispatcher does not implement;
	// see DESIGN.md for why the mutex-guarded direct-call form was chosen
	// instead.
	envMu sync.Mutex

	mu                    sync.Mutex
	activeSpec            protocol.RewardSpec
	poseReference         []float64
	lastComputationStatus string

	slot       atomic.Pointer[contextSlot]
	genCounter atomic.Uint64
}

// New constructs a Dispatcher whose active-context slot starts at the
// engine's default-idle context (spec.md §8 scenario 1, "cold start").
func New(engine *rewardctx.Engine, env collab.Environment, policy collab.Policy, peers *fanout.Registry, recorder *recording.Recorder, framesDir string) *Dispatcher {
	d := &Dispatcher{
		engine:    engine,
		env:       env,
		policy:    policy,
		peers:     peers,
		recorder:  recorder,
		framesDir: framesDir,
	}
	d.slot.Store(&contextSlot{vector: engine.DefaultContext()})
	return d
}

// ContextSource adapts the dispatcher's active-context slot into the shape
// simloop.Loop expects to poll every tick.
func (d *Dispatcher) ContextSource() simloop.ContextSource {
	return func() simloop.ActiveContext {
		s := d.loadSlot()
		return simloop.ActiveContext{Vector: s.vector, CacheFile: s.cacheFile}
	}
}

func (d *Dispatcher) loadSlot() *contextSlot {
	s := d.slot.Load()
	if s == nil {
		return &contextSlot{}
	}
	return s
}

// setActiveContext installs a new context vector and bumps the generation
// counter. Any async completion still in flight that captured an earlier
// generation will find it stale and discard its result (spec.md §9's
// preserve_z resolution).
func (d *Dispatcher) setActiveContext(vector []float32, cacheFile string) {
	d.genCounter.Add(1)
	d.slot.Store(&contextSlot{vector: vector, cacheFile: cacheFile})
}

// bumpGeneration invalidates in-flight completions without changing the
// active context itself — clear_active_rewards with preserve_z=true uses
// this so the currently active context is kept, while still guaranteeing no
// stale computation resurrects a spec the client has already abandoned.
func (d *Dispatcher) bumpGeneration() {
	d.genCounter.Add(1)
}

// Serve accepts one duplex peer's connection: registers it into the fanout
// registry under a fresh id so it both receives broadcasts and can be
// replied to, then reads commands until the connection closes.
func (d *Dispatcher) Serve(ctx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	conn.SetReadLimit(ReadLimit)
	d.peers.Add(id, conn)
	defer d.peers.Remove(id)

	log := logger.With("component", "dispatch", "peer", id)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("peer disconnected", "error", err)
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn("malformed command envelope", "error", err)
			continue
		}
		d.route(id, env, data)
	}
}

func (d *Dispatcher) route(id string, env protocol.Envelope, raw []byte) {
	switch env.Type {
	case protocol.TypeRequestReward:
		d.handleRequestReward(id, raw)
	case protocol.TypeUpdateReward:
		d.handleUpdateReward(id, raw)
	case protocol.TypeClearActiveRewards:
		d.handleClearActiveRewards(id, raw)
	case protocol.TypeCleanRewards:
		d.handleCleanRewards(id, env.MessageID)
	case protocol.TypeMixPoseReward:
		d.handleMixPoseReward(id, raw)
	case protocol.TypeLoadPose:
		d.handleLoadPose(id, raw)
	case protocol.TypeLoadPoseSMPL:
		d.handleLoadPoseSMPL(id, raw)
	case protocol.TypeLoadNPZContext:
		d.handleLoadNPZContext(id, raw)
	case protocol.TypeGetCurrentContext:
		d.handleGetCurrentContext(id)
	case protocol.TypeUpdateParameters:
		d.handleUpdateParameters(id, raw)
	case protocol.TypeUpdateRewardComputation:
		d.handleUpdateRewardComputation(id, raw)
	case protocol.TypeGetTargetPositions:
		d.handleGetTargetPositions(id)
	case protocol.TypeCaptureFrame:
		d.handleCaptureFrame(id, protocol.TypeCaptureFrame)
	case protocol.TypeMakeSnapshot:
		d.handleCaptureFrame(id, protocol.TypeMakeSnapshot)
	case protocol.TypeStartRecording:
		d.handleStartRecording(id)
	case protocol.TypeStopRecording:
		d.handleStopRecording(id)
	case protocol.TypeStartVideoRecording:
		d.handleStartVideoRecording(id)
	case protocol.TypeStopVideoRecording:
		d.handleStopVideoRecording(id)
	case protocol.TypeDebugModelInfo:
		d.handleDebugModelInfo(id)
	default:
		d.sendJSON(id, protocol.ErrorMsg{
			Type:      env.Type + protocol.ErrorSuffix,
			Error:     "unknown command type",
			MessageID: env.MessageID,
			Timestamp: nowISO(),
		})
	}
}

// --- request_reward / update_reward -----------------------------------------

func (d *Dispatcher) handleRequestReward(id string, raw []byte) {
	var cmd protocol.RequestReward
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeRequestReward, "", err)
		return
	}
	if len(cmd.Reward.Rewards) == 0 {
		// spec.md §8 boundary behavior: an empty reward list is clean_rewards.
		d.handleCleanRewards(id, cmd.MessageID)
		return
	}
	if d.engine.IsBusy() {
		d.sendJSON(id, protocol.RewardReply{
			Type:        protocol.TypeReward,
			Status:      "computing_in_progress",
			MessageID:   cmd.MessageID,
			Timestamp:   nowISO(),
			IsComputing: true,
		})
		return
	}

	d.mu.Lock()
	d.activeSpec = cmd.Reward
	d.mu.Unlock()

	d.sendJSON(id, protocol.RewardReply{
		Type:         protocol.TypeReward,
		MessageID:    cmd.MessageID,
		Timestamp:    nowISO(),
		IsComputing:  true,
		ActiveReward: &cmd.Reward,
	})
	d.scheduleCompute(id, cmd.MessageID, cmd.Reward, protocol.TypeRewardUpdated)
}

func (d *Dispatcher) handleUpdateReward(id string, raw []byte) {
	var cmd protocol.UpdateReward
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeUpdateReward, "", err)
		return
	}

	d.mu.Lock()
	if cmd.Index < 0 || cmd.Index >= len(d.activeSpec.Rewards) {
		d.mu.Unlock()
		d.replyErrorMsg(id, protocol.TypeUpdateReward, cmd.MessageID,
			fmt.Errorf("update_reward: index %d out of range (have %d primitives)", cmd.Index, len(d.activeSpec.Rewards)))
		return
	}
	if d.activeSpec.Rewards[cmd.Index].Params == nil {
		d.activeSpec.Rewards[cmd.Index].Params = make(map[string]any, len(cmd.Params))
	}
	for k, v := range cmd.Params {
		d.activeSpec.Rewards[cmd.Index].Params[k] = v
	}
	spec := d.activeSpec
	d.mu.Unlock()

	if d.engine.IsBusy() {
		d.sendJSON(id, protocol.RewardReply{
			Type:        protocol.TypeReward,
			Status:      "computing_in_progress",
			MessageID:   cmd.MessageID,
			Timestamp:   nowISO(),
			IsComputing: true,
		})
		return
	}
	d.scheduleCompute(id, cmd.MessageID, spec, protocol.TypeRewardUpdated)
}

// scheduleCompute runs the common request_reward/update_reward tail: a
// "started" status, the async computation, and its terminal status plus
// command-specific ack. The captured generation guards against a
// clear_active_rewards (or any other context-changing command) landing
// while this computation was in flight.
func (d *Dispatcher) scheduleCompute(id, messageID string, spec protocol.RewardSpec, completionAckType string) {
	gen := d.genCounter.Load()
	d.sendJSON(id, protocol.RewardComputationStatus{
		Type:      protocol.TypeRewardComputationStatus,
		Status:    "started",
		MessageID: messageID,
		Timestamp: nowISO(),
	})
	d.engine.ComputeAsync(context.Background(), spec, func(ctxVec []float32, fallbackToDefault bool, err error) {
		status := "completed"
		errMsg := ""
		if err != nil {
			status = "error"
			errMsg = err.Error()
		}
		if d.genCounter.Load() == gen {
			d.setActiveContext(ctxVec, d.cacheFileFor(spec))
		}
		d.setLastComputationStatus(status)
		d.sendJSON(id, protocol.RewardComputationStatus{
			Type:      protocol.TypeRewardComputationStatus,
			Status:    status,
			MessageID: messageID,
			Timestamp: nowISO(),
			Error:     errMsg,
		})
		d.sendJSON(id, protocol.RewardReply{
			Type:      completionAckType,
			MessageID: messageID,
			Timestamp: nowISO(),
		})
	})
}

func (d *Dispatcher) cacheFileFor(spec protocol.RewardSpec) string {
	fp, err := rewardctx.Fingerprint(spec)
	if err != nil {
		return ""
	}
	return d.engine.Cache().DiskPath(fp)
}

// --- clear_active_rewards / clean_rewards -----------------------------------

func (d *Dispatcher) handleClearActiveRewards(id string, raw []byte) {
	var cmd protocol.ClearActiveRewards
	_ = json.Unmarshal(raw, &cmd)

	d.mu.Lock()
	d.activeSpec = protocol.RewardSpec{}
	d.mu.Unlock()

	if cmd.PreserveZ {
		d.bumpGeneration()
	} else {
		d.setActiveContext(d.engine.DefaultContext(), "")
	}
	d.sendJSON(id, protocol.RewardReply{
		Type:        protocol.TypeRewardsCleared,
		Timestamp:   nowISO(),
		IsComputing: d.engine.IsBusy(),
	})
}

func (d *Dispatcher) handleCleanRewards(id, messageID string) {
	d.mu.Lock()
	d.activeSpec = protocol.RewardSpec{}
	d.mu.Unlock()
	d.setActiveContext(d.engine.DefaultContext(), "")

	d.envMu.Lock()
	_, _, err := d.env.Reset(context.Background())
	d.envMu.Unlock()

	status := "ok"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	d.sendJSON(id, protocol.RewardReply{
		Type:      protocol.TypeCleanRewardsAck,
		Status:    status,
		MessageID: messageID,
		Timestamp: nowISO(),
		Error:     errMsg,
	})
}

// --- mix_pose_reward ---------------------------------------------------------

func (d *Dispatcher) handleMixPoseReward(id string, raw []byte) {
	var cmd protocol.MixPoseReward
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeMixPoseReward, "", err)
		return
	}
	if d.engine.IsBusy() {
		d.sendJSON(id, protocol.RewardReply{
			Type:        protocol.TypeReward,
			Status:      "computing_in_progress",
			MessageID:   cmd.MessageID,
			Timestamp:   nowISO(),
			IsComputing: true,
		})
		return
	}

	var targetQPos []float64
	if cmd.UseCurrentPose {
		d.envMu.Lock()
		snap, err := d.env.CurrentSnapshot(context.Background())
		d.envMu.Unlock()
		if err != nil {
			d.replyErrorMsg(id, protocol.TypeMixPoseReward, cmd.MessageID, err)
			return
		}
		targetQPos = snap.QPos
	} else {
		targetQPos = cmd.Pose
	}

	holdSpec, err := d.synthesizeHoldPoseSpec(targetQPos)
	if err != nil {
		d.replyErrorMsg(id, protocol.TypeMixPoseReward, cmd.MessageID, err)
		return
	}

	strategy := cmd.MixStrategy
	if strategy == "" {
		strategy = rewardctx.MixLinear
	}

	gen := d.genCounter.Load()
	d.sendJSON(id, protocol.RewardComputationStatus{
		Type:      protocol.TypeRewardComputationStatus,
		Status:    "started",
		MessageID: cmd.MessageID,
		Timestamp: nowISO(),
	})
	// HoldPoseBatchSize is forced regardless of the engine's configured
	// default (spec.md §8 "batch size override... does not leak to
	// unrelated computations" — the override is local to this one call).
	d.engine.Mix(context.Background(), holdSpec, cmd.Reward, cmd.MixWeight, strategy, rewardctx.HoldPoseBatchSize, func(ctxVec []float32, err error) {
		status := "completed"
		errMsg := ""
		if err != nil {
			status = "error"
			errMsg = err.Error()
		}
		if d.genCounter.Load() == gen {
			d.setActiveContext(ctxVec, "")
		}
		d.sendJSON(id, protocol.RewardComputationStatus{
			Type:      protocol.TypeRewardComputationStatus,
			Status:    status,
			MessageID: cmd.MessageID,
			Timestamp: nowISO(),
			Error:     errMsg,
		})
		d.sendJSON(id, protocol.RewardReply{
			Type:      protocol.TypeMixRewardOnlyUpdated,
			MessageID: cmd.MessageID,
			Timestamp: nowISO(),
		})
	})
}

// synthesizeHoldPoseSpec builds a reward spec that rewards matching
// qpos's forward-kinematics body positions, via the "position" primitive.
// It saves physics, sets qpos temporarily to read back world-frame body
// positions, and restores the original physics before returning — the same
// save/mutate/observe/restore discipline Engine.GoalTrackingEmbedding uses.
func (d *Dispatcher) synthesizeHoldPoseSpec(qpos []float64) (protocol.RewardSpec, error) {
	d.envMu.Lock()
	defer d.envMu.Unlock()

	snap, err := d.env.CurrentSnapshot(context.Background())
	if err != nil {
		return protocol.RewardSpec{}, fmt.Errorf("dispatch: reading current snapshot for hold-pose: %w", err)
	}
	savedQPos := append([]float64(nil), snap.QPos...)
	savedQVel := append([]float64(nil), snap.QVel...)

	if err := d.env.SetPhysics(context.Background(), qpos, make([]float64, len(savedQVel))); err != nil {
		return protocol.RewardSpec{}, fmt.Errorf("dispatch: setting target physics for hold-pose: %w", err)
	}
	defer func() {
		if err := d.env.SetPhysics(context.Background(), savedQPos, savedQVel); err != nil {
			logger.With("component", "dispatch").Warn("failed to restore physics after hold-pose synthesis", "error", err)
		}
	}()

	targets := make([]any, 0, len(pose.CanonicalBoneOrder))
	for _, bone := range pose.CanonicalBoneOrder {
		pos, ok := d.env.BodyPosition(context.Background(), bone)
		if !ok || len(pos) < 3 {
			continue
		}
		targets = append(targets, map[string]any{
			"body": bone, "x": pos[0], "y": pos[1], "z": pos[2],
			"weight": 1.0, "margin": 0.1, "sigmoid": "linear",
		})
	}
	if len(targets) == 0 {
		return protocol.RewardSpec{}, fmt.Errorf("dispatch: hold-pose synthesis found no known bodies in snapshot")
	}

	return protocol.RewardSpec{
		Rewards:         []protocol.RewardPrimitive{{Name: "position", Params: map[string]any{"targets": targets}}},
		Weights:         []float64{1.0},
		CombinationType: "multiplicative",
	}, nil
}

// --- load_pose / load_pose_smpl / load_npz_context --------------------------

func (d *Dispatcher) handleLoadPose(id string, raw []byte) {
	var cmd protocol.LoadPose
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeLoadPose, "", err)
		return
	}
	d.handleLoadPoseCore(id, cmd.MessageID, cmd.QPos, cmd.InferenceType)
}

func (d *Dispatcher) handleLoadPoseSMPL(id string, raw []byte) {
	var cmd protocol.LoadPoseSMPL
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeLoadPoseSMPL, "", err)
		return
	}
	axisAngles := make([][3]float64, len(cmd.Pose))
	for i, row := range cmd.Pose {
		if len(row) < 3 {
			d.replyErrorMsg(id, protocol.TypeLoadPoseSMPL, cmd.MessageID,
				fmt.Errorf("load_pose_smpl: pose row %d has length %d, want 3", i, len(row)))
			return
		}
		axisAngles[i] = [3]float64{row[0], row[1], row[2]}
	}
	var trans [3]float64
	if len(cmd.Trans) >= 3 {
		trans = [3]float64{cmd.Trans[0], cmd.Trans[1], cmd.Trans[2]}
	}
	qpos, err := pose.ToQPos(trans, axisAngles)
	if err != nil {
		d.replyErrorMsg(id, protocol.TypeLoadPoseSMPL, cmd.MessageID, err)
		return
	}
	d.handleLoadPoseCore(id, cmd.MessageID, qpos, cmd.InferenceType)
}

// handleLoadPoseCore runs the goal/tracking/embedding pathway off the
// calling goroutine. Unlike request_reward/update_reward/mix_pose_reward,
// pose loads are not subject to the is_computing mutual exclusion gate
// (spec.md §4.9); GoalTrackingEmbedding's save/restore round trip is
// already serialized against other env-touching dispatcher paths by envMu.
func (d *Dispatcher) handleLoadPoseCore(id, messageID string, qpos []float64, inferenceType string) {
	kind := inferenceKindFromString(inferenceType)
	gen := d.genCounter.Load()
	go func() {
		d.envMu.Lock()
		ctxVec, err := d.engine.GoalTrackingEmbedding(context.Background(), d.env, kind, qpos)
		d.envMu.Unlock()

		status := "ok"
		errMsg := ""
		if err != nil {
			status = "error"
			errMsg = err.Error()
		} else if d.genCounter.Load() == gen {
			d.setActiveContext(ctxVec, "")
			d.mu.Lock()
			d.poseReference = qpos
			d.mu.Unlock()
		}
		d.sendJSON(id, protocol.PoseLoaded{
			Type:      protocol.TypePoseLoaded,
			Status:    status,
			MessageID: messageID,
			Error:     errMsg,
		})
	}()
}

func inferenceKindFromString(s string) collab.InferenceKind {
	switch s {
	case "tracking":
		return collab.InferenceTracking
	case "embedding":
		return collab.InferenceEmbedding
	default:
		return collab.InferenceGoal
	}
}

func (d *Dispatcher) handleLoadNPZContext(id string, raw []byte) {
	var cmd protocol.LoadNPZContext
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeLoadNPZContext, "", err)
		return
	}
	if want := d.policy.ContextDim(); len(cmd.Context) != want {
		d.replyErrorMsg(id, protocol.TypeLoadNPZContext, cmd.MessageID,
			fmt.Errorf("load_npz_context: context has dimension %d, want %d", len(cmd.Context), want))
		return
	}
	d.setActiveContext(cmd.Context, "")
	d.sendJSON(id, protocol.PoseLoaded{
		Type:      protocol.TypePoseLoaded,
		Status:    "ok",
		MessageID: cmd.MessageID,
	})
}

// --- get_current_context / update_parameters / update_reward_computation ---

func (d *Dispatcher) handleGetCurrentContext(id string) {
	d.mu.Lock()
	spec := d.activeSpec
	poseRef := d.poseReference
	d.mu.Unlock()

	slot := d.loadSlot()
	d.sendJSON(id, protocol.CurrentContextReply{
		Type:          protocol.TypeCurrentContext,
		ActiveRewards: specOrNil(spec),
		PoseReference: poseRef,
		IsComputing:   d.engine.IsBusy(),
		CacheFile:     slot.cacheFile,
	})
}

func specOrNil(spec protocol.RewardSpec) *protocol.RewardSpec {
	if len(spec.Rewards) == 0 {
		return nil
	}
	return &spec
}

func (d *Dispatcher) handleUpdateParameters(id string, raw []byte) {
	var cmd protocol.UpdateParameters
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeUpdateParameters, "", err)
		return
	}
	d.envMu.Lock()
	err := d.env.UpdateParameters(context.Background(), cmd.Parameters)
	d.envMu.Unlock()

	status := "ok"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	d.sendJSON(id, protocol.ParametersUpdated{
		Type:   protocol.TypeParametersUpdated,
		Status: status,
		Error:  errMsg,
	})
}

func (d *Dispatcher) handleUpdateRewardComputation(id string, raw []byte) {
	var cmd protocol.UpdateRewardComputation
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.replyErrorMsg(id, protocol.TypeUpdateRewardComputation, "", err)
		return
	}
	status := "ok"
	errMsg := ""
	if err := d.engine.SetBatchSize(cmd.BatchSize); err != nil {
		status = "error"
		errMsg = err.Error()
	}
	d.sendJSON(id, protocol.ParametersUpdated{
		Type:   protocol.TypeRewardComputationUpdated,
		Status: status,
		Error:  errMsg,
	})
}

// --- get_target_positions / capture_frame / make_snapshot -------------------

func (d *Dispatcher) handleGetTargetPositions(id string) {
	d.envMu.Lock()
	snap, err := d.env.CurrentSnapshot(context.Background())
	d.envMu.Unlock()
	if err != nil {
		d.replyErrorMsg(id, protocol.TypeGetTargetPositions, "", err)
		return
	}
	positions := make(map[string][]float64, len(pose.CanonicalBoneOrder))
	for _, bone := range pose.CanonicalBoneOrder {
		if p, ok := snap.BodyPos[bone]; ok {
			positions[bone] = p
		}
	}
	d.sendJSON(id, protocol.TargetPositionsReply{
		Type:      protocol.TypeTargetPositions,
		Positions: positions,
	})
}

func (d *Dispatcher) handleCaptureFrame(id string, kind string) {
	replyType := protocol.TypeFrameCaptured
	namePrefix := "frame"
	if kind == protocol.TypeMakeSnapshot {
		replyType = protocol.TypeSnapshotCaptured
		namePrefix = "snapshot"
	}

	d.envMu.Lock()
	rgb, w, h, err := d.env.Render(context.Background())
	d.envMu.Unlock()
	if err != nil {
		d.sendJSON(id, protocol.FrameCapturedReply{Type: replyType, Error: err.Error()})
		return
	}

	ts := time.Now().UTC()
	path := filepath.Join(d.framesDir, fmt.Sprintf("%s-%d.jpg", namePrefix, ts.UnixNano()))
	if err := framefile.Write(path, rgb, w, h, framefile.DefaultWidth); err != nil {
		d.sendJSON(id, protocol.FrameCapturedReply{Type: replyType, Error: err.Error()})
		return
	}
	d.sendJSON(id, protocol.FrameCapturedReply{
		Type:      replyType,
		Path:      path,
		Timestamp: ts.Format(time.RFC3339),
	})
}

// --- recording commands ------------------------------------------------------

func (d *Dispatcher) handleStartRecording(id string) {
	if err := d.recorder.StartTrajectory(context.Background()); err != nil {
		d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeRecordingStatus, Status: "error", Error: err.Error()})
		return
	}
	d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeRecordingStatus, Status: "started"})
}

func (d *Dispatcher) handleStopRecording(id string) {
	url, err := d.recorder.StopTrajectory(context.Background())
	if err != nil {
		d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeRecordingStatus, Status: "error", Error: err.Error()})
		return
	}
	d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeRecordingStatus, Status: "stopped", DownloadURL: url})
}

func (d *Dispatcher) handleStartVideoRecording(id string) {
	d.envMu.Lock()
	_, w, h, err := d.env.Render(context.Background())
	d.envMu.Unlock()
	if err != nil {
		d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeVideoRecordingStatus, Status: "error", Error: err.Error()})
		return
	}
	if err := d.recorder.StartCombined(context.Background(), w, h); err != nil {
		d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeVideoRecordingStatus, Status: "error", Error: err.Error()})
		return
	}
	d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeVideoRecordingStatus, Status: "started"})
}

func (d *Dispatcher) handleStopVideoRecording(id string) {
	url, err := d.recorder.StopCombined(context.Background())
	status := "stopped"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	d.sendJSON(id, protocol.RecordingStatus{Type: protocol.TypeVideoRecordingStatus, Status: status, DownloadURL: url, Error: errMsg})
}

// --- debug_model_info --------------------------------------------------------

func (d *Dispatcher) handleDebugModelInfo(id string) {
	d.sendJSON(id, protocol.DebugModelInfoReply{
		Type:                  protocol.TypeDebugModelInfoReply,
		SubscriberCount:       d.peers.Count(),
		IsComputing:           d.engine.IsBusy(),
		LastComputationStatus: d.consumeLastStatus(),
	})
}

func (d *Dispatcher) setLastComputationStatus(s string) {
	d.mu.Lock()
	d.lastComputationStatus = s
	d.mu.Unlock()
}

// consumeLastStatus returns and clears the last terminal computation
// status, a one-shot read so debug_model_info reports a status transition
// exactly once rather than repeating a stale "completed" forever.
func (d *Dispatcher) consumeLastStatus() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.lastComputationStatus
	d.lastComputationStatus = ""
	return s
}

// --- wire helpers -------------------------------------------------------------

func (d *Dispatcher) sendJSON(id string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.With("component", "dispatch").Error("failed to marshal reply", "error", err)
		return
	}
	d.peers.SendTo(id, payload)
}

func (d *Dispatcher) replyErrorMsg(id, cmdType, messageID string, cause error) {
	d.sendJSON(id, protocol.ErrorMsg{
		Type:      cmdType + protocol.ErrorSuffix,
		Error:     cause.Error(),
		MessageID: messageID,
		Timestamp: nowISO(),
	})
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
