// Package fanout implements C5, the subscriber registry that broadcasts
// pose updates and control replies to every connected duplex peer. Grounded
// on teacher's internal/relay/server.go (browserConns map + mutex) and
// internal/relay/workers.go's WingRegistry (non-blocking select/default
// channel send as the backpressure primitive), generalized from "drop
// newest on full" to "drop oldest" per spec.md §4.5.
package fanout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/motivo-run/motivo-server/internal/logger"
)

// Defaults for registries constructed without explicit tuning.
const (
	DefaultQueueDepth = 4
	DefaultDeadline   = 2 * time.Second
	// DedupWindow is K from spec.md §4.5: a message_id broadcast within the
	// last K messages is suppressed on a repeat broadcast.
	DedupWindow = 512
)

type subscriber struct {
	id      string
	conn    *websocket.Conn
	queue   chan []byte
	done    chan struct{}
	success atomic.Int64
}

// Registry is the active set of duplex peers eligible for broadcast.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*subscriber

	dedupMu    sync.Mutex
	dedupSeen  map[string]struct{}
	dedupOrder []string

	queueDepth int
	deadline   time.Duration
}

// NewRegistry constructs a Registry. queueDepth and deadline fall back to
// DefaultQueueDepth/DefaultDeadline when non-positive or below the 1s floor
// spec.md §4.5 requires.
func NewRegistry(queueDepth int, deadline time.Duration) *Registry {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if deadline < time.Second {
		deadline = DefaultDeadline
	}
	return &Registry{
		subs:       make(map[string]*subscriber),
		dedupSeen:  make(map[string]struct{}, DedupWindow),
		queueDepth: queueDepth,
		deadline:   deadline,
	}
}

// Add registers conn under id and starts its dedicated writer goroutine. A
// peer's outbound writes never block another peer's: each has its own
// bounded queue and drain loop.
func (r *Registry) Add(id string, conn *websocket.Conn) {
	sub := &subscriber{id: id, conn: conn, queue: make(chan []byte, r.queueDepth), done: make(chan struct{})}
	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()
	go r.drain(sub)
}

// Remove unregisters a peer and stops its writer goroutine. Safe to call
// more than once for the same id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Count returns the number of currently registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) drain(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), r.deadline)
			err := sub.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				logger.With("component", "fanout").Warn("peer write failed, removing peer", "peer", sub.id, "error", err)
				r.Remove(sub.id)
				return
			}
			sub.success.Add(1)
		}
	}
}

// Broadcast serializes msg once (the caller passes the already-marshaled
// payload) and enqueues it for every peer, applying the message_id dedup
// window when messageID is non-empty. It returns a lifetime success-count
// snapshot per peer for diagnostics (debug_model_info reports Count, not
// this snapshot).
func (r *Registry) Broadcast(messageID string, payload []byte) map[string]int64 {
	if messageID != "" {
		if r.seenRecently(messageID) {
			return r.successSnapshot()
		}
		r.remember(messageID)
	}

	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	for _, s := range subs {
		enqueueDroppingOldest(s.queue, payload)
	}
	return r.successSnapshot()
}

// SendTo enqueues payload for a single peer, going through that peer's own
// queue and drain goroutine like Broadcast does. This is how the dispatcher
// sends a command reply to the originating connection only: a websocket
// connection is not safe for concurrent writes from two goroutines, so every
// write to a given peer — broadcast or unicast — must funnel through its one
// drain goroutine rather than calling conn.Write directly. Returns false if
// id isn't currently registered.
func (r *Registry) SendTo(id string, payload []byte) bool {
	r.mu.RLock()
	sub, ok := r.subs[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	enqueueDroppingOldest(sub.queue, payload)
	return true
}

func (r *Registry) successSnapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.subs))
	for id, s := range r.subs {
		out[id] = s.success.Load()
	}
	return out
}

// enqueueDroppingOldest pushes payload onto queue. If the queue is full, it
// drops the single oldest pending item to make room, per spec.md §4.5's
// backpressure rule.
func enqueueDroppingOldest(queue chan []byte, payload []byte) {
	select {
	case queue <- payload:
		return
	default:
	}
	select {
	case <-queue:
	default:
	}
	select {
	case queue <- payload:
	default:
	}
}

func (r *Registry) seenRecently(id string) bool {
	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()
	_, ok := r.dedupSeen[id]
	return ok
}

func (r *Registry) remember(id string) {
	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()
	if _, ok := r.dedupSeen[id]; ok {
		return
	}
	r.dedupSeen[id] = struct{}{}
	r.dedupOrder = append(r.dedupOrder, id)
	if len(r.dedupOrder) > DedupWindow {
		oldest := r.dedupOrder[0]
		r.dedupOrder = r.dedupOrder[1:]
		delete(r.dedupSeen, oldest)
	}
}
