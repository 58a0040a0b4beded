package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"game-bridge/internal/protocol"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const saveTimeout = 3 * time.Second

// Executor hands a command to the host execution thread. It must not wait
// for the command to finish.
type Executor interface {
	Execute(command string) error
}

type ExecutorFunc func(command string) error

func (f ExecutorFunc) Execute(command string) error {
	return f(command)
}

// Recorder receives queue activity; metrics.Bridge implements it.
type Recorder interface {
	ScheduledExecuted(n int)
	ScheduledPending(n int)
	PersistenceFailed(op string)
}

type nopRecorder struct{}

func (nopRecorder) ScheduledExecuted(int)    {}
func (nopRecorder) ScheduledPending(int)     {}
func (nopRecorder) PersistenceFailed(string) {}

type Queue struct {
	mu      sync.Mutex
	pending map[string]Command

	// tickMu serializes Tick; saveMu orders snapshots with their writes.
	tickMu sync.Mutex
	saveMu sync.Mutex

	store    Store
	exec     Executor
	clock    clock.Clock
	logger   *zap.Logger
	recorder Recorder
}

type Option func(*Queue)

func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
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

func WithRecorder(r Recorder) Option {
	return func(q *Queue) {
		if r != nil {
			q.recorder = r
		}
	}
}

func NewQueue(store Store, exec Executor, opts ...Option) *Queue {
	q := &Queue{
		pending:  make(map[string]Command),
		store:    store,
		exec:     exec,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a command due at dueAt, repeating every interval when
// interval > 0. A failed save is logged; the command stays queued.
func (q *Queue) Enqueue(command string, dueAt time.Time, interval time.Duration) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", protocol.NewError(protocol.CodeInvalidArguments, "command is empty")
	}
	if interval < 0 {
		return "", protocol.NewError(protocol.CodeInvalidArguments, "interval must not be negative")
	}
	if dueAt.IsZero() {
		return "", protocol.NewError(protocol.CodeInvalidArguments, "due time is required")
	}

	cmd := Command{
		ID:        uuid.NewString(),
		Command:   command,
		DueAt:     dueAt.UTC().Round(0),
		Interval:  interval,
		State:     StatePending,
		CreatedAt: q.clock.Now().UTC().Round(0),
	}

	q.mu.Lock()
	q.pending[cmd.ID] = cmd
	q.mu.Unlock()

	q.logger.Info("scheduled command",
		zap.String("id", cmd.ID),
		zap.String("command", cmd.Command),
		zap.Time("due_at", cmd.DueAt),
		zap.Duration("interval", cmd.Interval),
	)
	q.persist("enqueue")
	return cmd.ID, nil
}

// Now reads the queue's clock.
func (q *Queue) Now() time.Time {
	return q.clock.Now()
}

// Cancel drops a pending command. A command already handed to the host
// thread still runs.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	_, ok := q.pending[id]
	delete(q.pending, id)
	q.mu.Unlock()

	if !ok {
		return false
	}
	q.logger.Info("cancelled scheduled command", zap.String("id", id))
	q.persist("cancel")
	return true
}

// Get returns a pending command by id.
func (q *Queue) Get(id string) (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.pending[id]
	return cmd, ok
}

// Pending returns a copy of the pending set ordered by due time.
func (q *Queue) Pending() []Command {
	q.mu.Lock()
	out := q.snapshotLocked()
	q.mu.Unlock()
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) snapshotLocked() []Command {
	out := make([]Command, 0, len(q.pending))
	for _, cmd := range q.pending {
		out = append(out, cmd)
	}
	sortCommands(out)
	return out
}

// Tick hands every command due at now to the executor in due order and
// returns the ones handed over. One-shots are dropped, recurring commands
// move to their first due time after now. If the executor refuses a
// command, it and everything after it stay pending for the next tick.
func (q *Queue) Tick(now time.Time) []Command {
	q.tickMu.Lock()
	defer q.tickMu.Unlock()

	q.mu.Lock()
	var due []Command
	for _, cmd := range q.pending {
		if cmd.Due(now) {
			due = append(due, cmd)
		}
	}
	q.mu.Unlock()

	if len(due) == 0 {
		return nil
	}
	sortCommands(due)

	submitted := make([]Command, 0, len(due))
	for _, cmd := range due {
		if err := q.exec.Execute(cmd.Command); err != nil {
			q.logger.Warn("scheduled command not submitted",
				zap.String("id", cmd.ID),
				zap.String("command", cmd.Command),
				zap.String("reason", err.Error()),
			)
			break
		}
		submitted = append(submitted, cmd)
	}
	if len(submitted) == 0 {
		return nil
	}

	ran := now.UTC().Round(0)
	executed := make([]Command, 0, len(submitted))
	q.mu.Lock()
	for _, cmd := range submitted {
		cmd.LastRunAt = ran
		cmd.Runs++
		current, ok := q.pending[cmd.ID]
		switch {
		case !ok:
			// Cancelled while being submitted.
		case cmd.Recurring():
			current.DueAt = cmd.nextAfter(now)
			current.LastRunAt = cmd.LastRunAt
			current.Runs = cmd.Runs
			q.pending[cmd.ID] = current
		default:
			delete(q.pending, cmd.ID)
		}
		cmd.State = StateExecuted
		executed = append(executed, cmd)
	}
	q.mu.Unlock()

	q.recorder.ScheduledExecuted(len(executed))
	q.persist("tick")
	return executed
}

// Save writes the pending set to the store.
func (q *Queue) Save(ctx context.Context) error {
	q.saveMu.Lock()
	defer q.saveMu.Unlock()

	q.mu.Lock()
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.recorder.ScheduledPending(len(snapshot))
	if err := q.store.Save(ctx, snapshot); err != nil {
		return protocol.WrapError(protocol.CodePersistenceFailure, "save scheduled commands", err)
	}
	return nil
}

// Load replaces the in-memory set with the stored one. Past-due commands
// stay as they are and run on the next Tick.
func (q *Queue) Load(ctx context.Context) error {
	cmds, err := q.store.Load(ctx)
	if err != nil {
		return protocol.WrapError(protocol.CodePersistenceFailure, "load scheduled commands", err)
	}

	loaded := make(map[string]Command, len(cmds))
	for _, cmd := range cmds {
		if cmd.ID == "" || strings.TrimSpace(cmd.Command) == "" {
			q.logger.Warn("skipping malformed scheduled command", zap.String("id", cmd.ID))
			continue
		}
		if cmd.State != "" && cmd.State != StatePending {
			continue
		}
		cmd.State = StatePending
		loaded[cmd.ID] = cmd
	}

	q.mu.Lock()
	q.pending = loaded
	q.mu.Unlock()

	q.recorder.ScheduledPending(len(loaded))
	q.logger.Info("loaded scheduled commands", zap.Int("count", len(loaded)))
	return nil
}

func (q *Queue) persist(op string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := q.Save(ctx); err != nil {
		q.recorder.PersistenceFailed(op)
		q.logger.Error("persist scheduled commands failed",
			zap.String("op", op),
			zap.String("reason", err.Error()),
		)
	}
}

func (q *Queue) String() string {
	return fmt.Sprintf("schedule.Queue(pending=%d)", q.Len())
}
