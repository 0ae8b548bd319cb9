package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/motivo-run/motivo-server/internal/backend"
	"github.com/motivo-run/motivo-server/internal/collab"
	"github.com/motivo-run/motivo-server/internal/config"
	"github.com/motivo-run/motivo-server/internal/dispatch"
	"github.com/motivo-run/motivo-server/internal/fanout"
	"github.com/motivo-run/motivo-server/internal/logger"
	"github.com/motivo-run/motivo-server/internal/media"
	"github.com/motivo-run/motivo-server/internal/pose"
	"github.com/motivo-run/motivo-server/internal/protocol"
	"github.com/motivo-run/motivo-server/internal/recording"
	"github.com/motivo-run/motivo-server/internal/rewardctx"
	"github.com/motivo-run/motivo-server/internal/rewards"
	"github.com/motivo-run/motivo-server/internal/simloop"
)

// DefaultContextDim is the fixed context vector dimensionality spec.md §3
// names as a typical default.
const DefaultContextDim = 256

// DefaultCacheCapacity is this binary's choice of in-memory LRU slots; the
// cache itself floors any smaller configured value at rewardctx.MinCacheCapacity.
const DefaultCacheCapacity = 2000

func main() {
	root := &cobra.Command{
		Use:   "motivod",
		Short: "realtime control-plane server for a pretrained humanoid-control model",
	}
	root.AddCommand(serveCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the simulation loop, context engine, and command dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a motivo.yaml tuning file (optional)")
	return cmd
}

func runServe(configPath string) error {
	cfgMgr, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer cfgMgr.Close()
	cfg := cfgMgr.Config()

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.With("component", "motivod")

	for _, dir := range []string{cfg.FramesDir, cfg.DownloadDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var buf *rewardctx.Buffer
	if cfg.BufferPath != "" {
		buf, err = rewardctx.LoadBuffer(cfg.BufferPath)
		if err != nil {
			return fmt.Errorf("load reward buffer: %w", err)
		}
	} else {
		log.Warn("no buffer_path configured, context engine has no sample buffer to evaluate against")
	}

	cache, err := rewardctx.NewCache(cfg.CacheDir, DefaultCacheCapacity)
	if err != nil {
		return fmt.Errorf("open context cache: %w", err)
	}

	// Policy and Environment are the two external collaborators spec.md §1
	// places out of scope; backend.Standin lets this binary run end to end
	// until a real inference/physics process is wired in their place.
	actionDim := (len(pose.CanonicalBoneOrder) - 1) * pose.JointDims
	collaborators := backend.New(DefaultContextDim, actionDim)

	tuning := cfgMgr.Tuning()
	engine := rewardctx.NewEngine(rewards.NewRegistry(), buf, collaborators, cache, tuning.WorkerPoolSize, tuning.DefaultBatchSize, make([]float32, DefaultContextDim))

	if buf != nil {
		idleStand, err := engine.ComputeSync(context.Background(), idleStandSpec())
		if err != nil {
			return fmt.Errorf("compute idle-stand default context: %w", err)
		}
		engine.SetDefaultContext(idleStand)
	}

	store, err := recording.OpenStore(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open recording ledger: %w", err)
	}
	defer store.Close()
	recorder := recording.NewRecorder(cfg.DownloadDir, tuning.FrameRate, func() collab.VideoWriter { return &backend.RawVideoWriter{} }, store)

	peers := fanout.NewRegistry(fanout.DefaultQueueDepth, fanout.DefaultDeadline)

	mediaMgr := media.NewManager([]webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}, media.DefaultPreset, func() collab.MediaEncoder { return backend.RawEncoder{} })
	defer mediaMgr.CloseAll()

	disp := dispatch.New(engine, collaborators, collaborators, peers, recorder, cfg.FramesDir)

	loop := simloop.New(collaborators, collaborators, disp.ContextSource(), peers, mediaMgr, recorder, tuning.FrameRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopErrCh := make(chan error, 1)
	go func() { loopErrCh <- loop.Run(ctx) }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			log.Warn("websocket accept failed", "error", err)
			return
		}
		disp.Serve(r.Context(), conn)
	})
	mux.HandleFunc("POST /media/offer", handleMediaOffer(mediaMgr))
	mux.HandleFunc("POST /media/candidate", handleMediaCandidate(mediaMgr))

	addr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.WSPort)
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("motivod listening", "addr", addr)
		httpErrCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		loop.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-httpErrCh:
		loop.Stop()
		return err
	case err := <-loopErrCh:
		return fmt.Errorf("simulation loop stopped: %w", err)
	}
}

// idleStandSpec is the literal default-context reward specification spec.md
// §8 scenario 1 names: a motionless stand at the rest height, computed once
// at startup through the normal C3 pipeline and cached like any other spec.
func idleStandSpec() protocol.RewardSpec {
	return protocol.RewardSpec{
		Rewards: []protocol.RewardPrimitive{
			{Name: "move-ego", Params: map[string]any{"move_speed": 0.0, "stand_height": 1.4}},
		},
		Weights: []float64{1.0},
	}
}

// handleMediaOffer is the realtime media negotiation surface spec.md §6
// calls out as "a separate set of message types" from the duplex command
// channel C9 serves — plain HTTP request/response, matching
// media.Manager.HandleOffer's string-in/string-out shape.
func handleMediaOffer(mgr *media.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.MediaOffer
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(protocol.MediaAnswer{Error: err.Error()})
			return
		}
		answer, err := mgr.HandleOffer(req.SessionID, req.SDP)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(protocol.MediaAnswer{Error: err.Error()})
			return
		}
		json.NewEncoder(w).Encode(protocol.MediaAnswer{SDP: answer})
	}
}

// handleMediaCandidate is spec.md §6's third realtime-media message kind:
// a trickled ICE candidate for an already-negotiated session. The raw wire
// string is parsed with protocol.ParseICECandidate before being handed to
// the peer connection, so a malformed candidate is rejected with a 400
// instead of silently failing inside pion.
func handleMediaCandidate(mgr *media.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.MediaICECandidateMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(protocol.MediaAnswer{Error: err.Error()})
			return
		}
		if _, err := protocol.ParseICECandidate(req.Candidate); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(protocol.MediaAnswer{Error: err.Error()})
			return
		}
		if err := mgr.AddICECandidate(req.SessionID, req.Candidate); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(protocol.MediaAnswer{Error: err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
