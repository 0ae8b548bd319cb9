// Package media implements C6, the per-client media session manager: each
// connected client that negotiates a realtime video session gets a
// letterboxed, ring-buffered, throttled frame source pushed out over a
// WebRTC video track. Grounded on teacher internal/webrtc/peer.go's
// PeerManager (offer/answer/ICE-gather dance, per-sender connection
// bookkeeping) generalized from a data-channel consumer to a video-track
// producer, and internal/webrtc/transport.go's SwappableWriter for the
// "don't let one slow consumer affect another" framing carried into each
// session's independent pull goroutine.
package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/logger"
)

// BurstThreshold is the "~10 queued frames not serviced" backlog spec.md
// §4.6 names as the throttle trigger.
const BurstThreshold = 10

// MaxThrottleFactor is the throttle's upper bound: at most 1-in-5 pushes
// are forwarded once throttling engages.
const MaxThrottleFactor = 5

// Session is one client's negotiated media session: an independent ring
// buffer, letterbox cache and pull loop driving a single WebRTC video
// track.
type Session struct {
	id        string
	pc        *webrtc.PeerConnection
	track     *webrtc.TrackLocalStaticSample
	encoder   collab.MediaEncoder
	letterbox *Letterboxer
	ring      *Ring
	preset    Preset

	mu                  sync.Mutex
	lastHash            [32]byte
	haveLastHash        bool
	pushedSinceServiced int
	throttleSkip        int

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newSession(id string, pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample, encoder collab.MediaEncoder, preset Preset) *Session {
	return &Session{
		id:        id,
		pc:        pc,
		track:     track,
		encoder:   encoder,
		letterbox: NewLetterboxer(preset),
		ring:      NewRing(preset.Width, preset.Height),
		preset:    preset,
		stopCh:    make(chan struct{}),
	}
}

// PushFrame offers one raw source frame to the session. It letterboxes,
// dedups by content hash, and (subject to throttling) enqueues the result
// onto the session's ring buffer. Never blocks: the ring buffer itself
// drops the oldest frame on overflow.
func (s *Session) PushFrame(rgb []byte, srcW, srcH int) {
	s.mu.Lock()
	if s.throttleSkip > 0 {
		s.throttleSkip--
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	frame := s.letterbox.Transform(rgb, srcW, srcH)
	hash := ContentHash(frame)

	s.mu.Lock()
	duplicate := s.haveLastHash && hash == s.lastHash
	s.lastHash = hash
	s.haveLastHash = true
	s.mu.Unlock()
	if duplicate {
		return
	}

	s.ring.Push(frame, hash)

	s.mu.Lock()
	s.pushedSinceServiced++
	if s.pushedSinceServiced > BurstThreshold {
		s.throttleSkip = MaxThrottleFactor - 1
	}
	s.mu.Unlock()
}

func (s *Session) serviced() {
	s.mu.Lock()
	if s.pushedSinceServiced > 0 {
		s.pushedSinceServiced--
	}
	s.mu.Unlock()
}

// run pulls frames at the session's preset rate and writes encoded samples
// to the video track until stopped.
func (s *Session) run(ctx context.Context) {
	interval := time.Second / time.Duration(s.preset.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logger.With("component", "media", "session", s.id)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := s.ring.Pull()
			s.serviced()
			if frame.PTS < 0 {
				continue // no real frame has ever been pushed yet
			}
			sample, err := s.encoder.EncodeFrame(ctx, frame.Data, s.preset.Width, s.preset.Height)
			if err != nil {
				log.Warn("frame encode failed", "error", err)
				continue
			}
			if err := s.track.WriteSample(media.Sample{Data: sample, Duration: interval}); err != nil {
				log.Warn("track write failed", "error", err)
			}
		}
	}
}

// Close tears down the session's peer connection and stops its pull loop.
// Safe to call more than once.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.pc.Close()
}

// Manager tracks one Session per negotiating client, mirroring teacher's
// PeerManager structure.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	iceServers []webrtc.ICEServer
	preset     Preset
	newEncoder func() collab.MediaEncoder

	runCtx context.Context
	cancel context.CancelFunc
}

// NewManager builds a Manager. newEncoder is called once per session to
// obtain its MediaEncoder collaborator (so sessions never share encoder
// state).
func NewManager(iceServers []webrtc.ICEServer, preset Preset, newEncoder func() collab.MediaEncoder) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions:   make(map[string]*Session),
		iceServers: iceServers,
		preset:     preset,
		newEncoder: newEncoder,
		runCtx:     ctx,
		cancel:     cancel,
	}
}

// HandleOffer negotiates a new (or replacement) media session for
// sessionID and returns the SDP answer, per spec.md §4.6 step 1.
func (m *Manager) HandleOffer(sessionID, sdpOffer string) (string, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers})
	if err != nil {
		return "", fmt.Errorf("media: new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", sessionID,
	)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("media: new video track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return "", fmt.Errorf("media: add track: %w", err)
	}

	sess := newSession(sessionID, pc, track, m.newEncoder(), m.preset)

	m.mu.Lock()
	if old, ok := m.sessions[sessionID]; ok {
		old.Close()
	}
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			m.Remove(sessionID)
		}
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpOffer}
	if err := pc.SetRemoteDescription(offer); err != nil {
		m.Remove(sessionID)
		return "", fmt.Errorf("media: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.Remove(sessionID)
		return "", fmt.Errorf("media: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		m.Remove(sessionID)
		return "", fmt.Errorf("media: set local description: %w", err)
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		m.Remove(sessionID)
		return "", fmt.Errorf("media: no local description after ICE gathering")
	}

	go sess.run(m.runCtx)
	return local.SDP, nil
}

// AddICECandidate applies one trickled remote ICE candidate to sessionID's
// peer connection, spec.md §6's third realtime-media message kind. raw is
// the standard candidate wire-form string.
func (m *Manager) AddICECandidate(sessionID, raw string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("media: unknown session %q", sessionID)
	}
	return sess.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: raw})
}

// Remove tears down and forgets a session. Safe to call for an id that is
// already gone.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Broadcast offers the latest rendered frame to every active session. Each
// session letterboxes, dedups and throttles independently, so one slow
// session's backlog never affects another's.
func (m *Manager) Broadcast(rgb []byte, width, height int) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.PushFrame(rgb, width, height)
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every session, for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		s.Close()
	}
}
