package taskexec

import (
	"context"
	"sync"

	"service-dispatch/internal/logx"
)

type job struct {
	name string
	run  RunFunc
}

// Pool is a bounded background worker pool: a buffered job channel drained by
// a fixed set of goroutines. A full buffer rejects the submission instead of
// blocking or growing, so backpressure is explicit and the executor can fall
// through to its synchronous tier.
type Pool struct {
	jobs    chan job
	logger  logx.Logger
	baseCtx context.Context

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	workers   int
}

// NewPool - creates a new Pool with the given worker count and queue size.
func NewPool(workers, queueSize int, logger logx.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		jobs:    make(chan job, queueSize),
		logger:  logger,
		workers: workers,
	}
}

// Start launches the workers. Jobs run under ctx, not under the submitting
// request's context, so they outlive the request that queued them.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.baseCtx = ctx
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// TrySubmit enqueues a job without blocking; false means the buffer is full
// or the pool was never started.
func (p *Pool) TrySubmit(name string, run RunFunc) (ok bool) {
	if p.baseCtx == nil {
		return false
	}
	// Submitting to a stopped pool would panic on the closed channel; treat
	// it as a plain rejection instead.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case p.jobs <- job{name: name, run: run}:
		return true
	default:
		return false
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		if err := j.run(p.baseCtx); err != nil {
			p.logger.Error("background task failed",
				logx.String("task", j.name),
				logx.Any("err", err),
			)
		}
	}
}
