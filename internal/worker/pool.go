// Package worker runs background jobs on a fixed set of goroutines fed by a
// bounded queue. The sync engine uses one worker and a one-slot queue so at
// most one pass runs and at most one waits.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vytor/wordflash/internal/logger"
)

// ErrStopped is returned when submitting to a pool that has been stopped.
var ErrStopped = errors.New("worker pool stopped")

type Job interface {
	Run(context.Context) error
	Name() string
}

type Pool struct {
	jobs    chan Job
	done    chan struct{}
	workers int
	wg      sync.WaitGroup
	log     *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		jobs:    make(chan Job, queueSize),
		done:    make(chan struct{}),
		workers: workers,
		log:     logger.Default().WithPrefix("worker-pool"),
	}
}

// Start launches the workers. Jobs run with a context derived from ctx that
// is cancelled by Stop.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.log.Debug("starting %d workers, queue size %d", p.workers, cap(p.jobs))

	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, p.log.WithField("worker_id", i))
	}
}

func (p *Pool) work(ctx context.Context, log *logger.Logger) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case job := <-p.jobs:
			p.run(ctx, log.WithField("job", job.Name()), job)
		}
	}
}

// run executes one job; a panicking job is logged and does not take the worker down.
func (p *Pool) run(ctx context.Context, log *logger.Logger, job Job) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("job panicked after %v: %v", time.Since(start), rec)
		}
	}()

	err := job.Run(logger.NewContext(ctx, log))
	switch {
	case err == nil:
		log.Debug("job completed in %v", time.Since(start))
	case errors.Is(err, context.Canceled):
		log.Info("job interrupted after %v", time.Since(start))
	default:
		log.Error("job failed after %v: %v", time.Since(start), err)
	}
}

// Stop cancels running jobs and waits for the workers. Queued jobs that have
// not started are dropped. It is safe to call twice.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.done)
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debug("worker pool stopped")
}

// Submit blocks until the job is queued, the pool stops or ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("submit %s: %w", job.Name(), ctx.Err())
	}
}

// TrySubmit queues job unless the queue is full or the pool is stopped.
func (p *Pool) TrySubmit(job Job) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// QueueSize returns the current number of pending jobs.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}
