// Package mainthread is the hand-off point between goroutines that serve
// network traffic or timers and the host's single execution loop. Only the
// host loop consumes the queue; everything else submits to it.
package mainthread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"game-bridge/internal/protocol"

	"go.uber.org/zap"
)

var (
	ErrStopped = fmt.Errorf("main thread stopped: %w", protocol.ErrHostUnavailable)
	ErrBusy    = fmt.Errorf("main thread queue busy: %w", protocol.ErrHostUnavailable)
	ErrTimeout = fmt.Errorf("main thread reply timeout: %w", protocol.ErrTimeout)
)

const (
	DefaultSize    = 256
	DefaultTimeout = 5 * time.Second

	retryInterval = 5 * time.Millisecond
)

const (
	stateRunning int32 = iota
	stateStopped
)

type result struct {
	value any
	err   error
}

// Task is one unit of work queued for the host loop.
type Task struct {
	fn    func() (any, error)
	reply chan result
	name  string
	log   *zap.Logger
}

// Run executes the task on the caller's goroutine, which must be the host
// loop. A panic is recovered and reported to the waiter, if any.
func (t Task) Run() {
	var (
		value any
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("main thread task %q panic: %v", t.name, r)
			if t.log != nil {
				t.log.Error("main thread task panic",
					zap.String("task", t.name),
					zap.Any("reason", r),
				)
			}
		}
		if t.reply != nil {
			t.reply <- result{value: value, err: err}
		} else if err != nil && t.log != nil {
			t.log.Warn("main thread task failed",
				zap.String("task", t.name),
				zap.String("reason", err.Error()),
			)
		}
	}()
	value, err = t.fn()
}

func (t Task) fail(err error) {
	if t.reply != nil {
		t.reply <- result{err: err}
	}
}

type Queue struct {
	inbox chan Task
	// mu orders post against Stop: a task accepted by post is always either
	// run by the host loop or failed by Stop.
	mu      sync.RWMutex
	state   int32
	stopped chan struct{}
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Queue)

func WithSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.inbox = make(chan Task, n)
		}
	}
}

// WithTimeout sets the wait applied by Call when ctx carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		inbox:   make(chan Task, DefaultSize),
		stopped: make(chan struct{}),
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Stopped() bool {
	return atomic.LoadInt32(&q.state) == stateStopped
}

func (q *Queue) post(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.Stopped() {
		return ErrStopped
	}
	select {
	case q.inbox <- t:
		return nil
	default:
		return ErrBusy
	}
}

// Submit queues fn without waiting for it to run.
func (q *Queue) Submit(name string, fn func()) error {
	return q.post(Task{
		name: name,
		log:  q.logger,
		fn: func() (any, error) {
			fn()
			return nil, nil
		},
	})
}

// SubmitWait queues fn like Submit but waits for room instead of failing
// with ErrBusy. It gives up when the queue stops or ctx is done. Lifecycle
// events that must not be dropped go through here.
func (q *Queue) SubmitWait(ctx context.Context, name string, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var retry *time.Ticker
	for {
		err := q.Submit(name, fn)
		if !errors.Is(err, ErrBusy) {
			return err
		}
		if retry == nil {
			retry = time.NewTicker(retryInterval)
			defer retry.Stop()
		}
		select {
		case <-retry.C:
		case <-q.stopped:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Call queues fn and blocks until the host loop ran it or the wait expired.
// On expiry fn may still run later; its result is then discarded.
func (q *Queue) Call(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	reply := make(chan result, 1)
	if err := q.post(Task{name: name, fn: fn, reply: reply, log: q.logger}); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Tasks is consumed by the host loop; each received Task must be Run there.
func (q *Queue) Tasks() <-chan Task {
	return q.inbox
}

// Drain runs up to limit already-queued tasks without blocking and returns
// how many ran. limit <= 0 means everything currently queued.
func (q *Queue) Drain(limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		select {
		case t := <-q.inbox:
			t.Run()
			n++
		default:
			return n
		}
	}
	return n
}

// Run is a minimal host loop for hosts without their own: it executes tasks
// until ctx is done, then stops the queue.
func (q *Queue) Run(ctx context.Context) {
	defer q.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.inbox:
			t.Run()
		}
	}
}

// Stop rejects further submissions and fails tasks still waiting.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&q.state, stateRunning, stateStopped) {
		return
	}
	close(q.stopped)
	for {
		select {
		case t := <-q.inbox:
			t.fail(ErrStopped)
		default:
			return
		}
	}
}
