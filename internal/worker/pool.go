package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("dispatch pool is stopped")

// Pool runs deliveries on a fixed set of goroutines fed by a bounded queue.
// Enqueue never blocks; a full queue is reported to the caller.
type Pool struct {
	deliverer *Deliverer
	workers   int
	tasks     chan dispatch.Task
	log       *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(d *Deliverer, workers, queueSize int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		deliverer: d,
		workers:   workers,
		tasks:     make(chan dispatch.Task, queueSize),
		log:       log,
	}
}

var _ dispatch.Queue = (*Pool)(nil)

// Start launches the workers. ctx is the lifetime of deliveries, not of any request.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				metrics.DispatchQueueDepth.Dec()
				p.deliverer.Deliver(ctx, t)
			}
		}()
	}
	p.log.Info("dispatch pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.tasks)))
}

func (p *Pool) Enqueue(_ context.Context, t dispatch.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		metrics.DispatchQueueDepth.Inc()
		return nil
	default:
		return dispatch.ErrQueueFull
	}
}

// Stop rejects new tasks, drains what is queued and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
