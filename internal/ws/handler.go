package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raidx/scorer/internal/auth"
	"github.com/raidx/scorer/internal/hub"
	"github.com/raidx/scorer/internal/metrics"
	"github.com/raidx/scorer/internal/session"
	"github.com/raidx/scorer/internal/store"
	"github.com/raidx/scorer/internal/types"
	wire "github.com/raidx/scorer/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	joinAttempts = 3
)

var errRateLimited = errors.New("too many messages, slow down")

type Options struct {
	OriginPatterns []string
	RateLimit      rate.Limit
	RateBurst      int
	OutboxSize     int
}

// SnapshotLoader is the read side of the snapshot store.
type SnapshotLoader interface {
	Load(ctx context.Context, matchID string) (store.Snapshot, error)
}

type Gateway struct {
	hub      *hub.Hub
	store    SnapshotLoader
	verifier *auth.Verifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func NewGateway(h *hub.Hub, st SnapshotLoader, v *auth.Verifier, log *zap.Logger, m *metrics.Metrics, opts Options) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OutboxSize < 1 {
		opts.OutboxSize = 16
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = 20
	}
	return &Gateway{hub: h, store: st, verifier: v, log: log, metrics: m, opts: opts}
}

// ScorerHandler serves /ws/scorer/{matchID}. A scorer token is required.
func (g *Gateway) ScorerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchID")
		if matchID == "" {
			http.Error(w, "missing match id", http.StatusBadRequest)
			return
		}
		claims, err := g.verifier.Authorize(r, matchID)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrForbidden) {
				status = http.StatusForbidden
			}
			http.Error(w, err.Error(), status)
			return
		}
		g.serve(w, r, matchID, session.RoleScorer, zap.String("user_id", claims.UserID))
	}
}

// ViewerHandler serves /ws/viewer/{matchID}. Viewers are read-only and need no token,
// so they can only watch matches that are live or saved.
func (g *Gateway) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchID")
		if matchID == "" {
			http.Error(w, "missing match id", http.StatusBadRequest)
			return
		}
		ok, err := g.matchExists(r.Context(), matchID)
		if err != nil {
			g.log.Error("match lookup failed", zap.String("match_id", matchID), zap.Error(err))
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, hub.ErrSessionNotFound.Error(), http.StatusNotFound)
			return
		}
		g.serve(w, r, matchID, session.RoleViewer)
	}
}

func (g *Gateway) matchExists(ctx context.Context, matchID string) (bool, error) {
	if _, err := g.hub.Get(ctx, matchID); err == nil {
		return true, nil
	} else if !errors.Is(err, hub.ErrSessionNotFound) {
		return false, err
	}
	_, err := g.store.Load(ctx, matchID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, matchID string, role session.Role, fields ...zap.Field) {
	connID := uuid.NewString()
	log := g.log.With(append(fields,
		zap.String("match_id", matchID),
		zap.String("conn_id", connID),
		zap.String("role", string(role)),
	)...)

	out := make(chan wire.ServerMessage, g.opts.OutboxSize)
	sess, err := g.join(r.Context(), matchID, connID, role, out)
	if err != nil {
		log.Warn("join failed", zap.Error(err))
		http.Error(w, "match unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sess.Leave(connID)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.opts.OriginPatterns,
	})
	if err != nil {
		log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	g.metrics.ConnectionOpened(string(role))
	defer g.metrics.ConnectionClosed(string(role))
	log.Debug("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine
	go func() {
		defer cancel()
		for {
			select {
			case msg, ok := <-out:
				if !ok {
					// dropped as a slow consumer, or the session shut down
					conn.Close(websocket.StatusGoingAway, "session closed")
					return
				}
				if err := writeMessage(ctx, conn, msg); err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	limiter := rate.NewLimiter(g.opts.RateLimit, g.opts.RateBurst)

	// Reader loop
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		if !limiter.Allow() {
			g.metrics.EventRejected("rate_limited")
			_ = writeMessage(ctx, conn, types.ErrorMessage(errRateLimited))
			continue
		}

		if err := g.dispatch(ctx, sess, connID, data); err != nil {
			if errors.Is(err, types.ErrBadMessage) {
				g.metrics.EventRejected("bad_message")
				_ = writeMessage(ctx, conn, types.ErrorMessage(err))
				continue
			}
			if errors.Is(err, session.ErrSessionClosed) || ctx.Err() != nil {
				return
			}
			// the session already told this connection what went wrong
			log.Debug("message rejected", zap.Error(err))
		}
	}
}

// join subscribes to the match, retrying when it lands on a session that is being evicted.
func (g *Gateway) join(ctx context.Context, matchID, connID string, role session.Role, out chan wire.ServerMessage) (*session.Session, error) {
	var err error
	for range joinAttempts {
		var sess *session.Session
		sess, err = g.hub.GetOrCreate(ctx, matchID)
		if err != nil {
			return nil, err
		}
		err = sess.Join(ctx, connID, role, out)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionClosed) {
			return nil, err
		}
	}
	return nil, err
}

func (g *Gateway) dispatch(ctx context.Context, sess *session.Session, connID string, data []byte) error {
	msg, err := types.DecodeClientMessage(data)
	if err != nil {
		return err
	}

	switch msg.Type {
	case wire.MsgInit:
		p, err := types.DecodeData[wire.InitPayload](msg)
		if err != nil {
			return err
		}
		a, b := types.ToRosters(p)
		return sess.Init(ctx, connID, a, b)

	case wire.MsgRaidEvent:
		p, err := types.DecodeData[wire.RaidEventPayload](msg)
		if err != nil {
			return err
		}
		ev, err := types.ToEngineEvent(p)
		if err != nil {
			return err
		}
		return sess.Handle(ctx, connID, ev)

	case wire.MsgEndMatch:
		return sess.EndMatch(ctx, connID)

	default:
		return fmt.Errorf("%w: unknown type %q", types.ErrBadMessage, msg.Type)
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg wire.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
