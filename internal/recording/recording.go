// Package recording implements C8, the dual-mode recording subsystem:
// trajectory-zip (pose snapshots only) and combined-package (pose plus an
// H.264/MP4 video track plus per-frame JPEG stills), zipped into a single
// downloadable archive on stop. Grounded on spec.md §4.8, with the sqlite
// job ledger adapted from internal/store/store.go and the async video push
// adapted from internal/webrtc/transport.go's SwappableWriter discipline of
// never letting a slow consumer block the producer.
package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/framefile"
	"github.com/motivo-run/motivo-server/internal/logger"
	"github.com/motivo-run/motivo-server/internal/pose"
)

// Mode identifies which of the two mutually exclusive recording modes (or
// neither) is active.
type Mode int

const (
	ModeNone Mode = iota
	ModeTrajectory
	ModeCombined
)

// AutoStopTimeout is spec.md §4.8's "recordings auto-stop after 10 minutes"
// safeguard against a forgotten running recording.
const AutoStopTimeout = 10 * time.Minute

// pushQueueDepth bounds the combined-package video push channel; a full
// queue drops the newest frame rather than blocking the simulation loop.
const pushQueueDepth = 8

// Recorder is C8: it owns at most one active recording at a time and is
// driven by the simulation loop's per-tick OnFrame calls while Active.
type Recorder struct {
	mu   sync.Mutex
	mode Mode

	outDir    string
	frameRate int
	store     *Store
	newWriter func() collab.VideoWriter

	jobID      string
	startedAt  time.Time
	trajectory []TrajectoryFrame
	autoStop   *time.Timer

	// combined-mode only
	writer       collab.VideoWriter
	width        int
	height       int
	videoDivisor int
	frameCounter int
	framesDir    string
	videoPath    string
	pushCh       chan []byte
	pushDone     chan struct{}
}

// NewRecorder constructs a Recorder. outDir is where archives and working
// directories are written; frameRate is the simulation loop's rate F, used
// to derive the combined-package video rate F/4 and the per-frame-image
// sampling cadence. newWriter constructs a fresh collab.VideoWriter for
// each combined-package recording.
func NewRecorder(outDir string, frameRate int, newWriter func() collab.VideoWriter, store *Store) *Recorder {
	return &Recorder{
		outDir:    outDir,
		frameRate: frameRate,
		newWriter: newWriter,
		store:     store,
	}
}

// Active reports whether a recording of either mode is running, satisfying
// simloop.Recorder.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode != ModeNone
}

// StartTrajectory begins trajectory-zip capture. Returns ErrRecordingConflict
// if a combined-package recording is active, ErrAlreadyRecording if
// trajectory capture is already running.
func (r *Recorder) StartTrajectory(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canStartLocked(ModeTrajectory); err != nil {
		return err
	}

	jobID := uuid.New().String()
	if r.store != nil {
		if err := r.store.CreateJob(jobID, "trajectory"); err != nil {
			return fmt.Errorf("recording: start trajectory: %w", err)
		}
	}

	r.mode = ModeTrajectory
	r.jobID = jobID
	r.startedAt = time.Now()
	r.trajectory = nil
	r.armAutoStopLocked()
	return nil
}

// StartCombined begins combined-package capture: pose at loop rate, video
// at F/4, per-frame JPEGs at the same cadence as the video. width/height are
// the environment's current render dimensions, used to open the video
// writer.
func (r *Recorder) StartCombined(ctx context.Context, width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canStartLocked(ModeCombined); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("recording: invalid render dimensions %dx%d", width, height)
	}

	// Push every 4th tick so the video track runs at F/4, per spec.md §4.8.
	const divisor = 4
	videoFPS := r.frameRate / divisor
	if videoFPS < 1 {
		videoFPS = 1
	}

	runID := uuid.New().String()
	framesDir := filepath.Join(r.outDir, "frames-"+runID)
	videoPath := filepath.Join(r.outDir, "video-"+runID+".mp4")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return fmt.Errorf("recording: create frames dir: %w", err)
	}

	writer := r.newWriter()
	if err := writer.Open(ctx, videoPath, width, height, videoFPS); err != nil {
		return fmt.Errorf("recording: open video writer: %w", err)
	}

	jobID := uuid.New().String()
	if r.store != nil {
		if err := r.store.CreateJob(jobID, "combined"); err != nil {
			writer.Close(ctx)
			return fmt.Errorf("recording: start combined: %w", err)
		}
	}

	r.mode = ModeCombined
	r.jobID = jobID
	r.startedAt = time.Now()
	r.trajectory = nil
	r.width, r.height = width, height
	r.videoDivisor = divisor
	r.frameCounter = 0
	r.framesDir = framesDir
	r.videoPath = videoPath
	r.writer = writer
	r.pushCh = make(chan []byte, pushQueueDepth)
	r.pushDone = make(chan struct{})
	go r.drainPush(ctx, r.writer, r.pushCh, r.pushDone)
	r.armAutoStopLocked()
	return nil
}

// canStartLocked must be called with r.mu held.
func (r *Recorder) canStartLocked(want Mode) error {
	switch r.mode {
	case ModeNone:
		return nil
	case want:
		return ErrAlreadyRecording
	default:
		return ErrRecordingConflict
	}
}

// OnFrame is the simulation loop's per-tick hook, satisfying
// simloop.Recorder. It's only called while Active.
func (r *Recorder) OnFrame(snap collab.Snapshot, converted pose.Converted, rgb []byte, width, height int) {
	r.mu.Lock()
	mode := r.mode
	r.trajectory = append(r.trajectory, TrajectoryFrame{
		Translation:   converted.Translation,
		Pose:          converted.Pose,
		BodyNames:     converted.BodyNames,
		BodyPositions: converted.BodyPositions,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if mode != ModeCombined {
		r.mu.Unlock()
		return
	}

	r.frameCounter++
	due := r.frameCounter%r.videoDivisor == 0
	idx := r.frameCounter / r.videoDivisor
	framesDir := r.framesDir
	pushCh := r.pushCh
	startedWidth, startedHeight := r.width, r.height
	r.mu.Unlock()

	if width != startedWidth || height != startedHeight {
		logger.With("component", "recording").Warn("render dimensions changed mid-recording, video track will keep its original size",
			"started_width", startedWidth, "started_height", startedHeight, "frame_width", width, "frame_height", height)
	}
	if !due {
		return
	}

	framePath := filepath.Join(framesDir, fmt.Sprintf("frame_%06d.jpg", idx))
	if err := framefile.Write(framePath, rgb, width, height, width); err != nil {
		logger.With("component", "recording").Warn("failed to write per-frame image", "error", err)
	}

	select {
	case pushCh <- rgb:
	default:
		logger.With("component", "recording").Warn("video push queue full, dropping frame")
	}
}

// drainPush is the dedicated goroutine that owns the video writer for the
// lifetime of a combined-package recording, so a slow encoder backs up a
// bounded channel instead of the simulation loop's own tick.
func (r *Recorder) drainPush(ctx context.Context, writer collab.VideoWriter, ch chan []byte, done chan struct{}) {
	defer close(done)
	for rgb := range ch {
		if err := writer.WriteFrame(ctx, rgb); err != nil {
			logger.With("component", "recording").Error("video writer frame push failed", "error", err)
		}
	}
}

// StopTrajectory ends trajectory capture, serializes the document and zips
// it, returning the archive path. Returns ErrNoActiveRecording if
// trajectory capture isn't running.
func (r *Recorder) StopTrajectory(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.mode != ModeTrajectory {
		r.mu.Unlock()
		return "", ErrNoActiveRecording
	}
	frames := r.trajectory
	jobID := r.jobID
	r.disarmAutoStopLocked()
	r.mode = ModeNone
	r.trajectory = nil
	r.mu.Unlock()

	docBytes, err := encodeTrajectory(TrajectoryDocument{FrameRate: r.frameRate, Frames: frames})
	if err != nil {
		r.failJob(jobID, err)
		return "", err
	}

	archivePath := filepath.Join(r.outDir, "trajectory-"+uuid.New().String()+".zip")
	if err := writeZip(archivePath, map[string][]byte{"trajectory.bin": docBytes}); err != nil {
		r.failJob(jobID, err)
		return "", err
	}

	r.completeJob(jobID, archivePath)
	return archivePath, nil
}

// StopCombined ends combined-package capture: drains pending video writes,
// closes the writer, optionally post-processes it, bundles the trajectory
// document, video and per-frame images into one archive, and cleans up its
// working files. Returns ErrNoActiveRecording if combined capture isn't
// running.
func (r *Recorder) StopCombined(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.mode != ModeCombined {
		r.mu.Unlock()
		return "", ErrNoActiveRecording
	}
	frames := r.trajectory
	jobID := r.jobID
	writer := r.writer
	pushCh := r.pushCh
	pushDone := r.pushDone
	framesDir := r.framesDir
	videoPath := r.videoPath
	r.disarmAutoStopLocked()
	r.mode = ModeNone
	r.trajectory = nil
	r.writer = nil
	r.mu.Unlock()

	close(pushCh)
	<-pushDone

	if err := writer.Close(ctx); err != nil {
		r.failJob(jobID, err)
		return "", fmt.Errorf("recording: close video writer: %w", err)
	}
	postProcess(ctx, videoPath)

	docBytes, err := encodeTrajectory(TrajectoryDocument{FrameRate: r.frameRate, Frames: frames})
	if err != nil {
		r.failJob(jobID, err)
		return "", err
	}

	entries := map[string][]byte{"trajectory.bin": docBytes}
	if data, err := os.ReadFile(videoPath); err == nil {
		entries["video.mp4"] = data
	} else {
		logger.With("component", "recording").Warn("video file missing at stop", "error", err)
	}
	images, err := readDirAsEntries(framesDir, "frames/")
	if err != nil {
		logger.With("component", "recording").Warn("failed to read per-frame image directory", "error", err)
	}
	for name, data := range images {
		entries[name] = data
	}

	archivePath := filepath.Join(r.outDir, "package-"+uuid.New().String()+".zip")
	if err := writeZip(archivePath, entries); err != nil {
		r.failJob(jobID, err)
		return "", err
	}

	os.RemoveAll(framesDir)
	os.Remove(videoPath)
	r.completeJob(jobID, archivePath)
	return archivePath, nil
}

func (r *Recorder) completeJob(jobID, archivePath string) {
	if r.store == nil {
		return
	}
	if err := r.store.CompleteJob(jobID, archivePath); err != nil {
		logger.With("component", "recording").Error("failed to record job completion", "error", err)
	}
}

func (r *Recorder) failJob(jobID string, cause error) {
	if r.store == nil {
		return
	}
	if err := r.store.FailJob(jobID, cause.Error()); err != nil {
		logger.With("component", "recording").Error("failed to record job failure", "error", err)
	}
}

// armAutoStopLocked must be called with r.mu held.
func (r *Recorder) armAutoStopLocked() {
	r.autoStop = time.AfterFunc(AutoStopTimeout, r.onAutoStop)
}

// disarmAutoStopLocked must be called with r.mu held.
func (r *Recorder) disarmAutoStopLocked() {
	if r.autoStop != nil {
		r.autoStop.Stop()
		r.autoStop = nil
	}
}

func (r *Recorder) onAutoStop() {
	r.mu.Lock()
	mode := r.mode
	r.mu.Unlock()

	log := logger.With("component", "recording")
	switch mode {
	case ModeTrajectory:
		if _, err := r.StopTrajectory(context.Background()); err != nil {
			log.Warn("auto-stop trajectory recording failed", "error", err)
		} else {
			log.Info("recording auto-stopped after timeout", "mode", "trajectory")
		}
	case ModeCombined:
		if _, err := r.StopCombined(context.Background()); err != nil {
			log.Warn("auto-stop combined recording failed", "error", err)
		} else {
			log.Info("recording auto-stopped after timeout", "mode", "combined")
		}
	}
}
