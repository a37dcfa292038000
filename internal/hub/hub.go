// Package hub owns the live connection sessions and fans notifications out
// to them. The registry is copy-on-write: Register and Deregister serialise
// on a mutex and publish a new snapshot, Deliver reads the current snapshot
// without locking.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/hierarchy"
)

var (
	// ErrDuplicateSession is returned by Register for a session id that is
	// already live.
	ErrDuplicateSession = errors.New("hub: duplicate session id")
	// ErrClosed is returned by Register after Shutdown.
	ErrClosed = errors.New("hub: closed")
)

// Conn is the transport of one session. WriteJSON is only ever called from
// the session's own writer goroutine; Close may be called from any goroutine.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Pinger is implemented by transports that need keepalive frames.
type Pinger interface {
	Ping() error
}

// Options tunes the hub.
type Options struct {
	// SendQueue bounds each session's outbound queue. A session whose queue
	// is full when a delivery arrives is disconnected.
	SendQueue int
	// PingInterval is how often sessions whose Conn implements Pinger are
	// pinged. Zero disables pings.
	PingInterval time.Duration
}

type registry struct {
	byID   map[string]*Session
	byUser map[uuid.UUID][]*Session
}

func (r *registry) with(s *Session) *registry {
	next := &registry{
		byID:   make(map[string]*Session, len(r.byID)+1),
		byUser: make(map[uuid.UUID][]*Session, len(r.byUser)+1),
	}
	for k, v := range r.byID {
		next.byID[k] = v
	}
	for k, v := range r.byUser {
		next.byUser[k] = v
	}
	next.byID[s.id] = s
	uid := s.identity.UserID
	next.byUser[uid] = append(append([]*Session(nil), r.byUser[uid]...), s)
	return next
}

func (r *registry) without(s *Session) *registry {
	next := &registry{
		byID:   make(map[string]*Session, len(r.byID)),
		byUser: make(map[uuid.UUID][]*Session, len(r.byUser)),
	}
	for k, v := range r.byID {
		if k != s.id {
			next.byID[k] = v
		}
	}
	for k, v := range r.byUser {
		if k != s.identity.UserID {
			next.byUser[k] = v
			continue
		}
		var kept []*Session
		for _, other := range v {
			if other != s {
				kept = append(kept, other)
			}
		}
		if len(kept) > 0 {
			next.byUser[k] = kept
		}
	}
	return next
}

// Hub is the broadcast hub. Construct one per process with New and release
// it with Shutdown.
type Hub struct {
	logger *slog.Logger
	opts   Options

	mu     sync.Mutex
	closed bool
	reg    atomic.Pointer[registry]
	wg     sync.WaitGroup
}

// New constructs an empty hub.
func New(logger *slog.Logger, opts Options) *Hub {
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	h := &Hub{logger: logger, opts: opts}
	h.reg.Store(&registry{byID: map[string]*Session{}, byUser: map[uuid.UUID][]*Session{}})
	return h
}

// Register adds a session for identity and starts its writer. The returned
// session's Done channel closes when the session is removed for any reason.
func (h *Hub) Register(sessionID string, identity domain.Identity, conn Conn) (*Session, error) {
	s := &Session{
		id:       sessionID,
		identity: identity,
		conn:     conn,
		send:     make(chan domain.Notification, h.opts.SendQueue),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	cur := h.reg.Load()
	if _, dup := cur.byID[sessionID]; dup {
		h.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	h.reg.Store(cur.with(s))
	h.wg.Add(1)
	h.mu.Unlock()

	go h.write(s)

	h.logger.Info("session registered",
		"session_id", sessionID, "user_id", identity.UserID, "role", identity.Role.String())
	return s, nil
}

// Deregister removes a session and starts closing its transport. It does
// not wait for the transport: Shutdown does. Unknown ids are ignored, so it
// is safe to call more than once.
func (h *Hub) Deregister(sessionID string) {
	h.mu.Lock()
	cur := h.reg.Load()
	s, ok := cur.byID[sessionID]
	if ok {
		h.reg.Store(cur.without(s))
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	s.close(&h.wg)
	h.logger.Info("session deregistered", "session_id", sessionID, "user_id", s.identity.UserID)
}

// Deliver queues d on every session of its recipient that is allowed to
// see the payload's scope, and returns the number of sessions queued.
// It never blocks: a session with a full queue is disconnected instead.
func (h *Hub) Deliver(d domain.Delivery) int {
	sessions := h.reg.Load().byUser[d.RecipientID]
	queued := 0
	for _, s := range sessions {
		if !hierarchy.ShouldReceive(s.identity, d.Payload.Scope) {
			h.logger.Warn("delivery blocked by scope check",
				"session_id", s.id, "user_id", s.identity.UserID, "trip_id", d.Payload.TripID)
			continue
		}
		select {
		case <-s.done:
		case s.send <- d.Payload:
			queued++
		default:
			h.logger.Warn("session send queue full, disconnecting", "session_id", s.id)
			h.Deregister(s.id)
		}
	}
	return queued
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	return len(h.reg.Load().byID)
}

// Shutdown rejects further registrations, closes every session, and waits
// for their writers and transport closes to finish or ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.reg.Load().byID))
	for id := range h.reg.Load().byID {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Deregister(id)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) write(s *Session) {
	defer h.wg.Done()

	var tick <-chan time.Time
	pinger, canPing := s.conn.(Pinger)
	if canPing && h.opts.PingInterval > 0 {
		t := time.NewTicker(h.opts.PingInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.done:
			return
		case n := <-s.send:
			if err := s.conn.WriteJSON(n); err != nil {
				h.logger.Warn("session write failed", "session_id", s.id, "err", err)
				h.Deregister(s.id)
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				h.logger.Warn("session ping failed", "session_id", s.id, "err", err)
				h.Deregister(s.id)
				return
			}
		}
	}
}
