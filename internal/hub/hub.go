// Package hub is the registry of live match sessions, itself run as a single actor.
package hub

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/raidx/scorer/internal/metrics"
	"github.com/raidx/scorer/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")

type HubMsg interface{ isHubMsg() }

type EnsureSession struct {
	MatchID string
	Reply   chan *session.Session
}

type GetSession struct {
	MatchID string
	Reply   chan *session.Session
}

// RemoveSession drops Session only if it is still the one registered under MatchID.
type RemoveSession struct {
	MatchID string
	Session *session.Session
}

type ShutdownHub struct {
	Done chan struct{}
}

// sessionStopped reports that a removed session has flushed and exited.
type sessionStopped struct {
	MatchID string
	Session *session.Session
}

func (EnsureSession) isHubMsg()  {}
func (GetSession) isHubMsg()     {}
func (RemoveSession) isHubMsg()  {}
func (ShutdownHub) isHubMsg()    {}
func (sessionStopped) isHubMsg() {}

// SessionFactory builds a session for matchID. onClose must be wired into the session
// so it can ask to be evicted.
type SessionFactory func(ctx context.Context, matchID string, onClose func(*session.Session)) *session.Session

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	// draining holds removed sessions that are still writing their last snapshot.
	draining map[string]*session.Session
	factory  SessionFactory
	log      *zap.Logger
	metrics  *metrics.Metrics
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup // removals and deferred EnsureSessions
}

// NewHub starts the registry. cfg is the template for every session it creates.
func NewHub(parent context.Context, cfg session.Config) *Hub {
	return NewHubWithFactory(parent, cfg.Logger, cfg.Metrics, func(ctx context.Context, matchID string, onClose func(*session.Session)) *session.Session {
		c := cfg
		c.OnClose = onClose
		return session.New(ctx, matchID, c)
	})
}

func NewHubWithFactory(parent context.Context, log *zap.Logger, m *metrics.Metrics, f SessionFactory) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		draining: make(map[string]*session.Session),
		factory:  f,
		log:      log,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				h.ensure(msg)

			case GetSession:
				msg.Reply <- h.sessions[msg.MatchID] // may be nil

			case RemoveSession:
				if h.sessions[msg.MatchID] == msg.Session {
					delete(h.sessions, msg.MatchID)
					h.draining[msg.MatchID] = msg.Session
					h.metrics.SessionClosed()
				}
				// Stopping waits for the session's writes, so keep the hub loop free.
				h.wg.Add(1)
				go h.stop(msg.MatchID, msg.Session)

			case sessionStopped:
				if h.draining[msg.MatchID] == msg.Session {
					delete(h.draining, msg.MatchID)
				}

			case ShutdownHub:
				h.shutdown()
				close(msg.Done)
				return
			}
		}
	}
}

// ensure replies with the live session for msg.MatchID. A replacement for a closing
// session is only built once the old one has exited, so it restores the final snapshot.
func (h *Hub) ensure(msg EnsureSession) {
	old := h.sessions[msg.MatchID]
	if old != nil && !old.Closing() {
		msg.Reply <- old
		return
	}
	if old == nil {
		old = h.draining[msg.MatchID]
	}
	if old != nil && !stopped(old) {
		h.wg.Add(1)
		go h.ensureAfter(old, msg)
		return
	}

	// closed without passing through RemoveSession
	if _, ok := h.sessions[msg.MatchID]; ok {
		delete(h.sessions, msg.MatchID)
		h.metrics.SessionClosed()
	}
	delete(h.draining, msg.MatchID)

	s := h.factory(h.ctx, msg.MatchID, h.requestRemove)
	h.sessions[msg.MatchID] = s
	h.metrics.SessionOpened()
	h.log.Debug("session created", zap.String("match_id", msg.MatchID))
	msg.Reply <- s
}

// ensureAfter re-posts msg once old has exited.
func (h *Hub) ensureAfter(old *session.Session, msg EnsureSession) {
	defer h.wg.Done()
	select {
	case <-old.Done():
	case <-h.ctx.Done():
		return
	}
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
	}
}

func (h *Hub) stop(matchID string, s *session.Session) {
	defer h.wg.Done()
	s.Shutdown()
	select {
	case h.inbox <- sessionStopped{MatchID: matchID, Session: s}:
	case <-h.ctx.Done():
	}
}

func stopped(s *session.Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// shutdown stops every registered session, then waits for removals still in flight.
func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.Shutdown()
		delete(h.sessions, id)
		h.metrics.SessionClosed()
	}
	h.cancel()
	h.wg.Wait()
	clear(h.draining)
}

func (h *Hub) requestRemove(s *session.Session) {
	select {
	case h.inbox <- RemoveSession{MatchID: s.MatchID(), Session: s}:
	case <-h.done:
	}
}

// GetOrCreate returns the live session for matchID, creating it if needed. Concurrent
// callers for one id always get the same session.
func (h *Hub) GetOrCreate(ctx context.Context, matchID string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	return h.call(ctx, EnsureSession{MatchID: matchID, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, matchID string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	s, err := h.call(ctx, GetSession{MatchID: matchID, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Shutdown stops every session, including evicted ones still flushing, and waits for them.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case h.inbox <- ShutdownHub{Done: done}:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) call(ctx context.Context, m HubMsg, reply chan *session.Session) (*session.Session, error) {
	select {
	case h.inbox <- m:
	case <-h.done:
		return nil, session.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return nil, session.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
