package session

import (
	"go.uber.org/zap"

	"github.com/raidx/scorer/internal/metrics"
	wire "github.com/raidx/scorer/pkg/types"
)

type Role string

const (
	RoleScorer Role = "scorer"
	RoleViewer Role = "viewer"
)

type subscriber struct {
	role   Role
	outbox chan wire.ServerMessage
}

// broadcaster is owned by the session loop and is never touched from another goroutine.
type broadcaster struct {
	subs    map[string]subscriber
	log     *zap.Logger
	metrics *metrics.Metrics
}

func newBroadcaster(log *zap.Logger, m *metrics.Metrics) *broadcaster {
	return &broadcaster{
		subs:    make(map[string]subscriber),
		log:     log,
		metrics: m,
	}
}

func (b *broadcaster) add(connID string, role Role, outbox chan wire.ServerMessage) {
	if old, ok := b.subs[connID]; ok && old.outbox != outbox {
		close(old.outbox)
	}
	b.subs[connID] = subscriber{role: role, outbox: outbox}
}

// remove forgets the connection. The outbox stays open; its owner is already leaving.
func (b *broadcaster) remove(connID string) bool {
	if _, ok := b.subs[connID]; !ok {
		return false
	}
	delete(b.subs, connID)
	return true
}

func (b *broadcaster) role(connID string) (Role, bool) {
	sub, ok := b.subs[connID]
	return sub.role, ok
}

func (b *broadcaster) len() int { return len(b.subs) }

// publish delivers msg to every subscriber, the scorer included.
func (b *broadcaster) publish(msg wire.ServerMessage) {
	for id := range b.subs {
		b.sendTo(id, msg)
	}
}

func (b *broadcaster) sendTo(connID string, msg wire.ServerMessage) {
	sub, ok := b.subs[connID]
	if !ok {
		return
	}
	select {
	case sub.outbox <- msg:
	default:
		// Slow consumer. Dropping it keeps the match loop moving.
		close(sub.outbox)
		delete(b.subs, connID)
		b.metrics.SubscriberDropped()
		b.log.Warn("dropped slow subscriber", zap.String("conn_id", connID), zap.String("role", string(sub.role)))
	}
}

func (b *broadcaster) close() {
	for id, sub := range b.subs {
		close(sub.outbox)
		delete(b.subs, id)
	}
}
