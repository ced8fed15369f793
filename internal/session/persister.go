package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raidx/scorer/internal/archive"
	"github.com/raidx/scorer/internal/metrics"
	"github.com/raidx/scorer/internal/store"
)

// persister writes snapshots off the session loop. It holds one pending snapshot and a
// newer one replaces it, so a slow store costs intermediate versions, never ordering.
type persister struct {
	store   Store
	archive Archiver
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	base    context.Context

	mu       sync.Mutex
	pending  *store.Snapshot
	archives []archive.Record

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newPersister(ctx context.Context, st Store, ar Archiver, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *persister {
	p := &persister{
		store:   st,
		archive: ar,
		timeout: timeout,
		log:     log,
		metrics: m,
		// Writes already queued must still land when the session is torn down.
		base: context.WithoutCancel(ctx),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) save(snap store.Snapshot) {
	p.mu.Lock()
	p.pending = &snap
	p.mu.Unlock()
	p.signal()
}

// queueArchive runs after any snapshot already pending.
func (p *persister) queueArchive(rec archive.Record) {
	if p.archive == nil {
		return
	}
	p.mu.Lock()
	p.archives = append(p.archives, rec)
	p.mu.Unlock()
	p.signal()
}

func (p *persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	snap := p.pending
	recs := p.archives
	p.pending = nil
	p.archives = nil
	p.mu.Unlock()

	if snap != nil {
		ctx, cancel := context.WithTimeout(p.base, p.timeout)
		err := p.store.Save(ctx, *snap)
		cancel()
		if err != nil {
			p.metrics.StorageFailed("save")
			p.log.Error("snapshot save failed", zap.Int("version", snap.Version), zap.Error(err))
		}
	}

	for _, rec := range recs {
		ctx, cancel := context.WithTimeout(p.base, p.timeout)
		err := p.archive.Archive(ctx, rec)
		cancel()
		if err != nil {
			p.metrics.ArchiveFailed()
			p.log.Error("match archive failed", zap.Error(err))
		}
	}
}

// close flushes whatever is queued and waits for the worker to exit.
func (p *persister) close() {
	close(p.stop)
	<-p.done
}
