package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Pool submission failures.
var (
	// ErrPoolClosed reports a submission after shutdown began.
	ErrPoolClosed = errors.New("executor pool is shut down")

	// ErrPoolSaturated reports a full task queue.
	ErrPoolSaturated = errors.New("executor pool queue is full")
)

// Pool is a bounded worker pool fed by a task channel. Submissions never
// block: a full queue is reported immediately so callers can shed load.
type Pool struct {
	name   string
	logger *slog.Logger
	tasks  chan func()
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

// NewPool starts workers goroutines draining a queue of depth queueDepth.
func NewPool(name string, workers, queueDepth int, logger *slog.Logger) *Pool {
	p := &Pool{
		name:   name,
		logger: logger,
		tasks:  make(chan func(), queueDepth),
	}

	for i := range workers {
		p.wg.Add(1)

		go p.worker(i)
	}

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		task()
	}

	p.logger.Debug("pool worker exited",
		slog.String("pool", p.name),
		slog.Int("worker", id),
	)
}

// Submit enqueues a fire-and-forget task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%s pool: %w", p.name, ErrPoolClosed)
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%s pool: %w", p.name, ErrPoolSaturated)
	}
}

// Execute enqueues the task and waits for it to finish or for ctx to expire.
// The ctx deadline covers queue wait plus execution; an expired task that is
// still queued is skipped when a worker reaches it.
func (p *Pool) Execute(ctx context.Context, task func(ctx context.Context)) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)

		if ctx.Err() != nil {
			return
		}

		task(ctx)
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return fmt.Errorf("%s pool: %w", p.name, ErrPoolClosed)
	}

	select {
	case p.tasks <- wrapped:
		p.mu.Unlock()
	default:
		// Queue full: register as a pending sender so Shutdown cannot
		// close the channel under the blocking send, then wait for a
		// slot or the deadline.
		p.senders.Add(1)
		p.mu.Unlock()

		select {
		case p.tasks <- wrapped:
			p.senders.Done()
		case <-ctx.Done():
			p.senders.Done()

			return fmt.Errorf("%s pool enqueue: %w", p.name, ctx.Err())
		}
	}

	select {
	case <-done:
		if ctx.Err() != nil {
			return fmt.Errorf("%s pool run: %w", p.name, ctx.Err())
		}

		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s pool run: %w", p.name, ctx.Err())
	}
}

// Shutdown rejects new submissions, drains queued tasks, and waits for the
// workers to exit. Pending blocked enqueues land or hit their deadline before
// the queue closes. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	p.mu.Unlock()

	p.senders.Wait()
	close(p.tasks)
	p.wg.Wait()
}
