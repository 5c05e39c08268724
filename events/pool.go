// Package events provides an asynchronous, bounded worker pool in front of
// an event publisher so request handling never blocks on event delivery.
package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

// Config tunes the pool. Zero values fall back to defaults.
type Config struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

type job struct {
	userID string
	events []domain.Event
}

// Pool fans event batches out to workers publishing through the base
// publisher. When the buffer is saturated past the handoff timeout the batch
// is published inline so events are not silently dropped.
type Pool struct {
	base           domain.EventPublisher
	logger         *log.Logger
	jobs           chan job
	workerWG       sync.WaitGroup
	shutdownOnce   sync.Once
	publishTimeout time.Duration
	handoffTimeout time.Duration
}

func NewPool(base domain.EventPublisher, logger *log.Logger, cfg Config) *Pool {
	if base == nil {
		panic("events.NewPool: base publisher is nil")
	}
	if logger == nil {
		panic("events.NewPool: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	if cfg.HandoffTimeout < 0 {
		cfg.HandoffTimeout = 0
	}

	p := &Pool{
		base:           base,
		logger:         logger,
		jobs:           make(chan job, cfg.Buffer),
		publishTimeout: cfg.PublishTimeout,
		handoffTimeout: cfg.HandoffTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.workerWG.Add(1)
		go p.worker(i)
	}
	logger.Infof("event pool started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return p
}

func (p *Pool) worker(id int) {
	defer p.workerWG.Done()
	for j := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
		err := p.base.PublishEvents(ctx, j.userID, j.events)
		cancel()
		if err != nil {
			p.logger.Errorf("event publish failed, err: %v, user: %s, count: %d, worker: %d",
				err, j.userID, len(j.events), id)
		}
	}
}

// PublishEvents hands the batch to a worker, falling back to inline
// publication when the buffer stays saturated past the handoff timeout.
func (p *Pool) PublishEvents(ctx context.Context, userID string, evs []domain.Event) error {
	if len(evs) == 0 {
		return nil
	}
	if p.tryHandoff(job{userID: userID, events: evs}) {
		return nil
	}

	p.logger.Warn("event buffer saturated; publishing inline")
	inlineCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()
	return p.base.PublishEvents(inlineCtx, userID, evs)
}

func (p *Pool) tryHandoff(j job) bool {
	if ok, closed := p.trySendNonBlocking(j); closed {
		return false
	} else if ok {
		return true
	}

	if p.handoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.handoffTimeout)
	defer timer.Stop()

	ok, closed := p.sendWithTimer(j, timer.C)
	if closed {
		return false
	}
	return ok
}

func (p *Pool) trySendNonBlocking(j job) (ok bool, closed bool) {
	// A send on a closed channel panics; treat it as a rejected handoff so
	// late publishers fall back to inline delivery during shutdown.
	defer func() {
		if r := recover(); r != nil {
			ok, closed = false, true
		}
	}()
	select {
	case p.jobs <- j:
		return true, false
	default:
		return false, false
	}
}

func (p *Pool) sendWithTimer(j job, expired <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok, closed = false, true
		}
	}()
	select {
	case p.jobs <- j:
		return true, false
	case <-expired:
		return false, false
	}
}

// Shutdown stops accepting new batches and waits for queued ones to drain.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.jobs)
	})
	p.workerWG.Wait()
}

var _ domain.EventPublisher = (*Pool)(nil)
