// Package simloop implements C7, the single dedicated goroutine that owns
// the environment and policy handles and drives them at a fixed target
// frame rate. Grounded on teacher internal/timeline/loop.go's Engine.Run
// (fixed-interval loop, error-logged-and-continue poll body) and
// internal/daemon/daemon.go's context-cancellation shutdown shape, adapted
// from a ticker-driven poll to an explicit elapsed-time/sleep loop per
// spec.md §4.7 step 8's "sleep max(0, Δ-elapsed); if behind schedule,
// yield instead" requirement, which a time.Ticker cannot express (a ticker
// silently drops ticks rather than reporting how far behind it is).
package simloop

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/fanout"
	"github.com/motivo-run/motivo-server/internal/logger"
	"github.com/motivo-run/motivo-server/internal/media"
	"github.com/motivo-run/motivo-server/internal/pose"
	"github.com/motivo-run/motivo-server/internal/protocol"
)

// DefaultFrameRate is F from spec.md §4.7's "e.g., 60".
const DefaultFrameRate = 60

// ActiveContext is what the dispatcher's active-context slot hands the
// loop each tick: the context vector to act under, and the disk-cache
// file it came from, if any (spec.md §4.7 step 5).
type ActiveContext struct {
	Vector    collab.Context
	CacheFile string
}

// ContextSource is an atomic read of the dispatcher's active-context slot.
// The loop never mutates it — C9 is the sole owner.
type ContextSource func() ActiveContext

// Recorder is C8's hook into the loop: it is told about every tick's
// result while active and decides for itself what (if anything) to
// persist.
type Recorder interface {
	Active() bool
	OnFrame(snap collab.Snapshot, converted pose.Converted, rgb []byte, width, height int)
}

// Loop is C7: the single-writer simulation driver.
type Loop struct {
	env      collab.Environment
	policy   collab.Policy
	source   ContextSource
	peers    *fanout.Registry
	media    *media.Manager
	recorder Recorder

	frameRate int
	delta     time.Duration

	quitCh chan struct{}
}

// New constructs a Loop. frameRate <= 0 falls back to DefaultFrameRate.
func New(env collab.Environment, policy collab.Policy, source ContextSource, peers *fanout.Registry, mediaMgr *media.Manager, recorder Recorder, frameRate int) *Loop {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Loop{
		env:       env,
		policy:    policy,
		source:    source,
		peers:     peers,
		media:     mediaMgr,
		recorder:  recorder,
		frameRate: frameRate,
		delta:     time.Second / time.Duration(frameRate),
		quitCh:    make(chan struct{}),
	}
}

// Stop requests the loop exit at the next tick boundary (spec.md §4.7
// shutdown: "a single boolean set by the dispatcher on quit"). Safe to call
// more than once.
func (l *Loop) Stop() {
	select {
	case <-l.quitCh:
	default:
		close(l.quitCh)
	}
}

// Run drives the loop until Stop is called or ctx is cancelled. Only a
// failure to step or reset the environment is treated as fatal; pose
// conversion, broadcast and render failures are logged and the loop
// continues (spec.md §4.7 "degraded operation").
func (l *Loop) Run(ctx context.Context) error {
	log := logger.With("component", "simloop")

	snap, obs, err := l.env.Reset(ctx)
	if err != nil {
		return fmt.Errorf("simloop: initial reset: %w", err)
	}
	var quality float64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quitCh:
			return nil
		default:
		}

		tickStart := time.Now()

		active := l.source()

		action, err := l.policy.Act(ctx, obs, active.Vector)
		if err != nil {
			log.Error("policy act failed, substituting zero action", "error", err)
			action = make(collab.Action, l.policy.ActionDim())
		}

		if q, err := l.policy.QualityScore(ctx, obs, active.Vector); err != nil {
			log.Warn("quality score computation failed", "error", err)
		} else {
			quality = q
		}

		nextSnap, nextObs, terminated, err := l.env.Step(ctx, action)
		if err != nil {
			return fmt.Errorf("simloop: step: %w", err)
		}
		snap, obs = nextSnap, nextObs

		converted, convErr := pose.Convert(snap.QPos, snap)
		if convErr != nil {
			log.Error("pose conversion failed, skipping this tick's pose broadcast", "error", convErr)
		} else {
			l.broadcastPose(converted, snap.QPos, active.CacheFile)
		}

		rgb, w, h, renderErr := l.env.Render(ctx)
		if renderErr != nil {
			log.Error("render failed, skipping frame fan-out", "error", renderErr)
		} else {
			overlayQualityBar(rgb, w, h, quality)
			if l.media != nil {
				l.media.Broadcast(rgb, w, h)
			}
			if convErr == nil && l.recorder != nil && l.recorder.Active() {
				l.recorder.OnFrame(snap, converted, rgb, w, h)
			}
		}

		if terminated {
			snap, obs, err = l.env.Reset(ctx)
			if err != nil {
				return fmt.Errorf("simloop: reset after termination: %w", err)
			}
		}

		elapsed := time.Since(tickStart)
		if remaining := l.delta - elapsed; remaining > 0 {
			time.Sleep(remaining)
		} else {
			runtime.Gosched()
		}
	}
}

func (l *Loop) broadcastPose(converted pose.Converted, qpos []float64, cacheFile string) {
	if l.peers == nil {
		return
	}
	msg := protocol.SMPLUpdate{
		Type:          protocol.TypeSMPLUpdate,
		Pose:          converted.PoseRows(),
		Trans:         converted.Translation[:],
		Positions:     converted.PositionRows(),
		QPos:          qpos,
		PositionNames: converted.BodyNames,
		CacheFile:     cacheFile,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.With("component", "simloop").Error("failed to marshal smpl_update", "error", err)
		return
	}
	l.peers.Broadcast("", payload)
}

// overlayQualityBar draws the quality score spec.md §4.7 step 3 computes
// "for display" directly onto the rendered frame, the Go stand-in for
// original_source/motivo/utils/display_utils.py's DisplayManager.show_frame
// "Quality: X%" text overlay: no font-rendering library is available here,
// so the score is shown as a proportional-width bar across the frame's top
// edge instead of rendered text. Mutates rgb in place, before it reaches
// the media fan-out or the recorder, matching render_and_process_frame's
// overlay-then-stream ordering.
func overlayQualityBar(rgb []byte, width, height int, quality float64) {
	const barHeight = 6
	if width <= 0 || height <= 0 || len(rgb) < width*height*3 {
		return
	}
	rows := barHeight
	if rows > height {
		rows = height
	}
	pct := quality
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	fillWidth := int(float64(width) * pct / 100)
	for y := 0; y < rows; y++ {
		row := y * width * 3
		for x := 0; x < width; x++ {
			i := row + x*3
			if x < fillWidth {
				rgb[i], rgb[i+1], rgb[i+2] = 0, 220, 0
			} else {
				rgb[i], rgb[i+1], rgb[i+2] = 60, 60, 60
			}
		}
	}
}
