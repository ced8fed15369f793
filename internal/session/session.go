// Package session runs one match. Every mutation goes through a single goroutine that owns
// the match state, its subscribers and its commentary.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raidx/scorer/internal/archive"
	"github.com/raidx/scorer/internal/engine"
	"github.com/raidx/scorer/internal/metrics"
	"github.com/raidx/scorer/internal/store"
	"github.com/raidx/scorer/internal/types"
	wire "github.com/raidx/scorer/pkg/types"
)

var (
	ErrNotAuthorized  = errors.New("not authorized")
	ErrAwaitingInit   = fmt.Errorf("%w: match has not been initialised", ErrNotAuthorized)
	ErrAlreadyStarted = errors.New("match already initialised")
	ErrMatchEnded     = errors.New("match has ended")
	ErrSessionClosed  = errors.New("session closed")

	// ErrStorageUnavailable means the store could not say whether the match already
	// exists, so it cannot be initialised yet.
	ErrStorageUnavailable = fmt.Errorf("%w: cannot check for a saved match", store.ErrUnavailable)
)

const maxCommentary = 20

type Store interface {
	Load(ctx context.Context, matchID string) (store.Snapshot, error)
	Save(ctx context.Context, s store.Snapshot) error
}

type Archiver interface {
	Archive(ctx context.Context, r archive.Record) error
}

type Config struct {
	Store   Store
	Archive Archiver // optional
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// IdleTimeout is how long a session with no subscribers stays in memory.
	IdleTimeout  time.Duration
	StoreTimeout time.Duration

	// OnClose is called from its own goroutine once the session can be evicted.
	// Without it the session shuts itself down.
	OnClose func(*Session)
}

type Msg interface{ isSessionMsg() }

type Join struct {
	ConnID string
	Role   Role
	Outbox chan wire.ServerMessage
	Reply  chan error
}

type Leave struct{ ConnID string }

type Init struct {
	ConnID string
	TeamA  engine.Roster
	TeamB  engine.Roster
	Reply  chan error
}

type FromClient struct {
	ConnID string
	Event  engine.Event
	Reply  chan error
}

type EndMatch struct {
	ConnID string
	Reply  chan error
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isSessionMsg()       {}
func (Leave) isSessionMsg()      {}
func (Init) isSessionMsg()       {}
func (FromClient) isSessionMsg() {}
func (EndMatch) isSessionMsg()   {}
func (GetState) isSessionMsg()   {}
func (Shutdown) isSessionMsg()   {}

// View is a copy of the session's state, safe to read outside the loop.
type View struct {
	MatchID     string
	Version     int
	Subscribers int
	Initialized bool
	Ended       bool
	State       engine.State
	Result      *engine.Result
	Commentary  []string
}

type Session struct {
	matchID string
	cfg     Config
	log     *zap.Logger
	inbox   chan Msg
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closing atomic.Bool

	// owned by loop
	state      engine.State
	hasState   bool
	loaded     bool // a load returned a snapshot or ErrNotFound
	version    int
	commentary []string
	ended      bool
	result     *engine.Result
	subs       *broadcaster
	persist    *persister
	idle       *time.Timer
}

func New(parent context.Context, matchID string, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger.With(zap.String("match_id", matchID))

	s := &Session{
		matchID:    matchID,
		cfg:        cfg,
		log:        log,
		inbox:      make(chan Msg, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		commentary: []string{},
		subs:       newBroadcaster(log, cfg.Metrics),
		persist:    newPersister(ctx, cfg.Store, cfg.Archive, cfg.StoreTimeout, log, cfg.Metrics),
		idle:       time.NewTimer(cfg.IdleTimeout),
	}

	go s.loop()
	return s
}

func (s *Session) MatchID() string { return s.matchID }

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Done() <-chan struct{} { return s.done }

// Closing reports whether the session has asked to be evicted. A closing session
// refuses new subscribers.
func (s *Session) Closing() bool { return s.closing.Load() }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-s.idle.C:
			if s.subs.len() == 0 {
				s.log.Info("evicting idle session")
				s.requestClose()
			}

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- s.join(msg)

			case Leave:
				if s.subs.remove(msg.ConnID) {
					s.afterLeave()
				}

			case Init:
				msg.Reply <- s.init(msg)

			case FromClient:
				msg.Reply <- s.handle(msg)

			case EndMatch:
				msg.Reply <- s.endMatch(msg)

			case GetState:
				msg.Reply <- s.view()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) join(msg Join) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	s.subs.add(msg.ConnID, msg.Role, msg.Outbox)
	s.idle.Stop()

	if !s.loaded && s.restore() == nil && s.hasState {
		// earlier subscribers joined while the store was down
		s.subs.publish(s.statsMessage(nil))
		return nil
	}

	switch {
	case s.hasState:
		s.subs.sendTo(msg.ConnID, s.statsMessage(nil))
	case msg.Role != RoleScorer:
	case !s.loaded:
		s.subs.sendTo(msg.ConnID, types.ErrorMessage(ErrStorageUnavailable))
	default:
		s.subs.sendTo(msg.ConnID, wire.ServerMessage{Type: wire.MsgRequestInit})
	}
	return nil
}

// restore loads the last snapshot. On failure loaded stays false so the next join or
// init tries again.
func (s *Session) restore() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.StoreTimeout)
	defer cancel()

	snap, err := s.cfg.Store.Load(ctx, s.matchID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.loaded = true
		return nil
	case err != nil:
		s.cfg.Metrics.StorageFailed("load")
		s.log.Warn("snapshot restore failed", zap.Error(err))
		return err
	}

	s.loaded = true
	s.state = snap.State
	s.hasState = true
	s.version = snap.Version
	s.commentary = snap.Commentary
	if s.commentary == nil {
		s.commentary = []string{}
	}
	s.ended = snap.Ended
	s.result = snap.Result
	s.log.Info("restored snapshot", zap.Int("version", snap.Version), zap.Bool("ended", snap.Ended))
	return nil
}

func (s *Session) init(msg Init) error {
	if err := s.authorize(msg.ConnID); err != nil {
		return s.reject(msg.ConnID, "not_authorized", err)
	}
	if !s.loaded {
		if err := s.restore(); err != nil {
			return s.reject(msg.ConnID, "storage_unavailable", ErrStorageUnavailable)
		}
		if s.hasState {
			s.subs.publish(s.statsMessage(nil))
		}
	}
	if s.hasState {
		return s.reject(msg.ConnID, "already_started", ErrAlreadyStarted)
	}
	st, err := engine.NewState(msg.TeamA, msg.TeamB)
	if err != nil {
		return s.reject(msg.ConnID, "invalid_roster", err)
	}

	s.state = st
	s.hasState = true
	s.version++
	s.persistState()
	s.subs.publish(s.statsMessage(nil))
	s.log.Info("match initialised", zap.String("team_a", st.TeamA.Name), zap.String("team_b", st.TeamB.Name))
	return nil
}

func (s *Session) handle(msg FromClient) error {
	if err := s.authorize(msg.ConnID); err != nil {
		return s.reject(msg.ConnID, "not_authorized", err)
	}
	if !s.hasState {
		return s.reject(msg.ConnID, "awaiting_init", ErrAwaitingInit)
	}
	if s.ended {
		return s.reject(msg.ConnID, "match_ended", ErrMatchEnded)
	}

	next, out, err := engine.Apply(s.state, msg.Event)
	if err != nil {
		return s.reject(msg.ConnID, "invalid_selection", err)
	}

	s.state = next
	s.version++
	s.commentary = prepend(s.commentary, out.Commentary())
	s.cfg.Metrics.RaidApplied(string(out.Kind))
	s.persistState()
	s.subs.publish(s.statsMessage(&out))
	return nil
}

func (s *Session) endMatch(msg EndMatch) error {
	if err := s.authorize(msg.ConnID); err != nil {
		return s.reject(msg.ConnID, "not_authorized", err)
	}
	if !s.hasState {
		return s.reject(msg.ConnID, "awaiting_init", ErrAwaitingInit)
	}
	if s.ended {
		return s.reject(msg.ConnID, "match_ended", ErrMatchEnded)
	}

	res := s.state.Result()
	s.ended = true
	s.result = &res
	s.version++
	s.persistState()
	s.persist.queueArchive(archive.Record{
		MatchID: s.matchID,
		State:   s.state.Clone(),
		Result:  res,
		EndedAt: time.Now().UTC(),
	})
	s.subs.publish(s.statsMessage(nil))
	s.log.Info("match ended",
		zap.Int("score_a", res.ScoreA),
		zap.Int("score_b", res.ScoreB),
		zap.Bool("draw", res.Draw),
		zap.String("winner", res.WinnerName),
	)
	return nil
}

func (s *Session) authorize(connID string) error {
	role, ok := s.subs.role(connID)
	if !ok || role != RoleScorer {
		return ErrNotAuthorized
	}
	return nil
}

// reject reports err to the issuing connection only.
func (s *Session) reject(connID, reason string, err error) error {
	s.cfg.Metrics.EventRejected(reason)
	s.subs.sendTo(connID, types.ErrorMessage(err))
	s.log.Debug("rejected client message", zap.String("conn_id", connID), zap.Error(err))
	return err
}

func (s *Session) afterLeave() {
	if s.subs.len() > 0 {
		return
	}
	if s.ended {
		s.requestClose()
		return
	}
	s.idle.Reset(s.cfg.IdleTimeout)
}

func (s *Session) requestClose() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	if s.cfg.OnClose != nil {
		go s.cfg.OnClose(s)
		return
	}
	s.cancel()
}

func (s *Session) persistState() {
	s.persist.save(store.Snapshot{
		MatchID:    s.matchID,
		Version:    s.version,
		State:      s.state.Clone(),
		Commentary: slices.Clone(s.commentary),
		Ended:      s.ended,
		Result:     s.result,
		SavedAt:    time.Now().UTC(),
	})
}

func (s *Session) statsMessage(out *engine.Outcome) wire.ServerMessage {
	gs := types.ToGameStats(s.matchID, s.version, s.state)
	if s.ended && s.result != nil {
		gs.MatchEnded = true
		gs.Result = types.ToResult(*s.result)
	}
	extra := &wire.Extra{CommentaryList: slices.Clone(s.commentary)}
	if out != nil {
		extra.Commentary = types.ToCommentary(*out)
	}
	return wire.ServerMessage{Type: wire.MsgGameStats, Data: gs, Extra: extra}
}

func (s *Session) view() View {
	v := View{
		MatchID:     s.matchID,
		Version:     s.version,
		Subscribers: s.subs.len(),
		Initialized: s.hasState,
		Ended:       s.ended,
		State:       s.state.Clone(),
		Commentary:  slices.Clone(s.commentary),
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}

func (s *Session) shutdown() {
	s.closing.Store(true)
	s.idle.Stop()
	s.subs.close()
	s.persist.close()
	s.cancel()
}

func prepend(list []string, line string) []string {
	next := make([]string, 0, min(len(list)+1, maxCommentary))
	next = append(next, line)
	for _, l := range list {
		if len(next) == maxCommentary {
			break
		}
		next = append(next, l)
	}
	return next
}

// Join subscribes connID. Scorers joining an empty match receive requestInit, or an error
// when the store cannot confirm the match is new; everyone else receives the current
// stats when there are any.
func (s *Session) Join(ctx context.Context, connID string, role Role, outbox chan wire.ServerMessage) error {
	reply := make(chan error, 1)
	return s.call(ctx, Join{ConnID: connID, Role: role, Outbox: outbox, Reply: reply}, reply)
}

// Leave never blocks past the session's lifetime.
func (s *Session) Leave(connID string) {
	select {
	case s.inbox <- Leave{ConnID: connID}:
	case <-s.done:
	}
}

func (s *Session) Init(ctx context.Context, connID string, a, b engine.Roster) error {
	reply := make(chan error, 1)
	return s.call(ctx, Init{ConnID: connID, TeamA: a, TeamB: b, Reply: reply}, reply)
}

func (s *Session) Handle(ctx context.Context, connID string, ev engine.Event) error {
	reply := make(chan error, 1)
	return s.call(ctx, FromClient{ConnID: connID, Event: ev, Reply: reply}, reply)
}

func (s *Session) EndMatch(ctx context.Context, connID string) error {
	reply := make(chan error, 1)
	return s.call(ctx, EndMatch{ConnID: connID, Reply: reply}, reply)
}

func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return View{}, ErrSessionClosed
		}
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Shutdown stops the loop and waits for queued writes to finish.
func (s *Session) Shutdown() {
	s.cancel()
	<-s.done
}

func (s *Session) send(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) call(ctx context.Context, m Msg, reply chan error) error {
	if err := s.send(ctx, m); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		// the loop may have answered right before exiting
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
