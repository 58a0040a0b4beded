package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const DefaultTickInterval = 5 * time.Second

// Runner calls Queue.Tick on a fixed interval from its own goroutine.
type Runner struct {
	queue    *Queue
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(queue *Queue, interval time.Duration, c clock.Clock, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:    queue,
		clock:    c,
		interval: interval,
		logger:   logger,
	}
}

// Start is a no-op when the runner is already running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	ticker := r.clock.Ticker(r.interval)
	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		r.loop(runCtx, ticker.C)
	}(r.done)
}

func (r *Runner) loop(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("scheduler tick panic", zap.Any("reason", rec))
		}
	}()
	if ran := r.queue.Tick(r.clock.Now()); len(ran) > 0 {
		r.logger.Debug("scheduler tick", zap.Int("submitted", len(ran)))
	}
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}
