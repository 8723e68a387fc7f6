// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
)

// Task is one unit of background work, typically a whole poll loop.
type Task = func(ctx context.Context) error

// ErrNotRunning is returned by Submit before Start and after Stop.
var ErrNotRunning = errors.New("worker pool not running")

const defaultMaxLoops = 64

// Pool runs every submitted task on its own goroutine, so a long loop never
// delays another one. maxLoops caps how many run at once.
type Pool struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}
	log    *zerolog.Logger
}

func NewPool(maxLoops int, logger *zerolog.Logger) *Pool {
	if maxLoops <= 0 {
		maxLoops = defaultMaxLoops
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{slots: make(chan struct{}, maxLoops), log: &l}
}

// Start derives the pool context from parent. Canceling parent or calling
// Stop cancels every running task.
func (p *Pool) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return
	}
	p.ctx, p.cancel = context.WithCancel(parent)
}

// Stop cancels running tasks and waits for them to return. It is safe to call twice.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Running reports how many tasks are in flight.
func (p *Pool) Running() int { return len(p.slots) }

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil || p.ctx.Err() != nil {
		return ErrNotRunning
	}
	select {
	case p.slots <- struct{}{}:
	default:
		return domain.ErrQueueFull
	}

	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error().Err(err).Msg("task error")
		}
	}()
	return nil
}
