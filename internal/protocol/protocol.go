// Package protocol defines the JSON message catalog carried over the duplex
// command channel (spec.md §6), mirroring the teacher's internal/ws/protocol.go
// typed-envelope approach.
package protocol

// Inbound command types (client -> server), the exhaustive list from spec.md §4.9.
const (
	TypeRequestReward            = "request_reward"
	TypeUpdateReward             = "update_reward"
	TypeClearActiveRewards       = "clear_active_rewards"
	TypeCleanRewards             = "clean_rewards"
	TypeMixPoseReward            = "mix_pose_reward"
	TypeLoadPose                 = "load_pose"
	TypeLoadPoseSMPL             = "load_pose_smpl"
	TypeLoadNPZContext           = "load_npz_context"
	TypeGetCurrentContext        = "get_current_context"
	TypeUpdateParameters         = "update_parameters"
	TypeUpdateRewardComputation  = "update_reward_computation"
	TypeGetTargetPositions       = "get_target_positions"
	TypeCaptureFrame             = "capture_frame"
	TypeMakeSnapshot             = "make_snapshot"
	TypeStartRecording           = "start_recording"
	TypeStopRecording            = "stop_recording"
	TypeStartVideoRecording      = "start_video_recording"
	TypeStopVideoRecording       = "stop_video_recording"
	TypeDebugModelInfo           = "debug_model_info"
)

// Outbound reply/broadcast types (server -> client), per spec.md §6.
const (
	TypeSMPLUpdate               = "smpl_update"
	TypeRewardComputationStatus  = "reward_computation_status"
	TypeReward                   = "reward"
	TypeParametersUpdated        = "parameters_updated"
	TypePoseLoaded               = "pose_loaded"
	TypeMixRewardOnlyUpdated     = "mix_reward_only_updated"
	TypeRewardsCleared           = "rewards_cleared"
	TypeRewardUpdated            = "reward_updated"
	TypeCleanRewardsAck          = "clean_rewards"
	TypeRecordingStatus          = "recording_status"
	TypeVideoRecordingStatus     = "video_recording_status"
	TypeCurrentContext           = "current_context"
	TypeTargetPositions          = "target_positions"
	TypeFrameCaptured            = "frame_captured"
	TypeSnapshotCaptured         = "snapshot_captured"
	TypeDebugModelInfoReply      = "debug_model_info"
	TypeRewardComputationUpdated = "reward_computation_updated"
)

// ErrorSuffix is appended to an unknown/malformed command's type to form the
// reply type, per spec.md §6: "Unknown type produces {type}_error".
const ErrorSuffix = "_error"

// Envelope is the minimal shape every inbound message must parse as, used to
// dispatch to a typed handler before fully unmarshaling the payload.
type Envelope struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ErrorMsg is the generic "{type}_error" reply body.
type ErrorMsg struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RewardSpec is the wire form of spec.md's Reward Specification.
type RewardSpec struct {
	Rewards         []RewardPrimitive `json:"rewards"`
	Weights         []float64         `json:"weights"`
	CombinationType string            `json:"combinationType,omitempty"`
}

// RewardPrimitive is one named, parameterized primitive within a RewardSpec.
type RewardPrimitive struct {
	Name   string         `json:"name"`
	ID     string         `json:"id,omitempty"` // sequence id, stripped before fingerprinting
	Params map[string]any `json:"-"`
}

// RequestReward is the request_reward command payload.
type RequestReward struct {
	Type          string     `json:"type"`
	MessageID     string     `json:"message_id,omitempty"`
	Timestamp     string     `json:"timestamp,omitempty"`
	Reward        RewardSpec `json:"reward"`
	AddToExisting bool       `json:"add_to_existing,omitempty"`
	BatchMode     bool       `json:"batch_mode,omitempty"`
}

// RewardReply is the reply to request_reward / update_reward, and the
// "computing_in_progress" conflict reply.
type RewardReply struct {
	Type        string     `json:"type"`
	Status      string     `json:"status,omitempty"` // "computing_in_progress" | "error" | ""
	MessageID   string     `json:"message_id,omitempty"`
	Timestamp   string     `json:"timestamp,omitempty"`
	IsComputing bool       `json:"is_computing"`
	ActiveReward *RewardSpec `json:"active_rewards,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// UpdateReward updates one primitive's parameters by index in place.
type UpdateReward struct {
	Type      string         `json:"type"`
	MessageID string         `json:"message_id,omitempty"`
	Index     int            `json:"index"`
	Params    map[string]any `json:"params"`
}

// ClearActiveRewards is clear_active_rewards's payload.
type ClearActiveRewards struct {
	Type        string `json:"type"`
	PreserveZ   bool   `json:"preserve_z,omitempty"`
}

// MixPoseReward is mix_pose_reward's payload.
type MixPoseReward struct {
	Type           string     `json:"type"`
	MessageID      string     `json:"message_id,omitempty"`
	UseCurrentPose bool       `json:"use_current_pose"`
	Pose           []float64  `json:"pose,omitempty"`
	Reward         RewardSpec `json:"reward"`
	MixWeight      float64    `json:"mix_weight"`
	MixStrategy    string     `json:"mix_strategy,omitempty"` // linear|normalized|slerp
}

// LoadPose is load_pose's payload: a raw qpos target.
type LoadPose struct {
	Type          string    `json:"type"`
	MessageID     string    `json:"message_id,omitempty"`
	QPos          []float64 `json:"qpos"`
	InferenceType string    `json:"inference_type,omitempty"` // goal|tracking|embedding
}

// LoadPoseSMPL is load_pose_smpl's payload: pose+translation, canonical form.
type LoadPoseSMPL struct {
	Type          string      `json:"type"`
	MessageID     string      `json:"message_id,omitempty"`
	Pose          [][]float64 `json:"pose"`
	Trans         []float64   `json:"trans"`
	InferenceType string      `json:"inference_type,omitempty"`
}

// LoadNPZContext loads a serialized context vector directly.
type LoadNPZContext struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id,omitempty"`
	Context   []float32 `json:"context"`
}

// PoseLoaded acknowledges load_pose/load_pose_smpl/load_npz_context.
type PoseLoaded struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GetCurrentContext has no payload beyond the envelope.
type CurrentContextReply struct {
	Type             string      `json:"type"`
	ActiveRewards    *RewardSpec `json:"active_rewards,omitempty"`
	PoseReference    []float64   `json:"pose_reference,omitempty"`
	IsComputing      bool        `json:"is_computing"`
	CacheFile        string      `json:"cache_file,omitempty"`
}

// UpdateParameters forwards name->value updates to the environment.
type UpdateParameters struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

// ParametersUpdated acknowledges update_parameters.
type ParametersUpdated struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// UpdateRewardComputation reconfigures the engine (e.g. batch size).
type UpdateRewardComputation struct {
	Type      string `json:"type"`
	BatchSize int    `json:"batch_size"`
}

// GetTargetPositions has no payload beyond the envelope.
type TargetPositionsReply struct {
	Type      string               `json:"type"`
	Positions map[string][]float64 `json:"positions"`
}

// CaptureFrame / MakeSnapshot share a reply shape.
type FrameCapturedReply struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// StartRecording / StopRecording / StartVideoRecording / StopVideoRecording
// share request and reply shapes per kind.
type RecordingRequest struct {
	Type string `json:"type"`
}

type RecordingStatus struct {
	Type        string `json:"type"`
	Status      string `json:"status"` // "started" | "stopped" | "error"
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DebugModelInfoReply answers debug_model_info.
type DebugModelInfoReply struct {
	Type                string `json:"type"`
	SubscriberCount     int    `json:"subscriber_count"`
	IsComputing         bool   `json:"is_computing"`
	LastComputationStatus string `json:"last_computation_status,omitempty"`
}

// RewardComputationStatus is sent to the initiating peer only, never broadcast.
type RewardComputationStatus struct {
	Type      string `json:"type"`
	Status    string `json:"status"` // "started" | "completed" | "error"
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// SMPLUpdate is the per-frame pose broadcast.
type SMPLUpdate struct {
	Type           string      `json:"type"`
	Pose           [][]float64 `json:"pose"`
	Trans          []float64   `json:"trans"`
	Positions      [][]float64 `json:"positions"`
	QPos           []float64   `json:"qpos"`
	PositionNames  []string    `json:"position_names"`
	CacheFile      string      `json:"cache_file,omitempty"`
	Timestamp      string      `json:"timestamp"`
}
