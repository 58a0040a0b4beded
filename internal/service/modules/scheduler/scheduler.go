// internal/service/modules/scheduler/scheduler.go
package scheduler

import (
	"errors"
	"time"

	"game-bridge/internal/protocol"
	"game-bridge/internal/schedule"
	"game-bridge/internal/service"
)

// Module exposes the scheduled command queue.
type Module struct {
	queue *schedule.Queue
	now   func() time.Time
}

func New(queue *schedule.Queue) *Module {
	m := &Module{queue: queue, now: time.Now}
	if queue != nil {
		m.now = queue.Now
	}
	return m
}

func (m *Module) Name() string { return "scheduler" }

func (m *Module) Init() error {
	if m.queue == nil {
		return errors.New("scheduler module needs a queue")
	}
	return nil
}

func (m *Module) Operations() map[string]service.Operation {
	return map[string]service.Operation{
		protocol.OpRunScheduledCommand:    service.OperationFunc(m.enqueue),
		protocol.OpGetScheduledCommands:   service.OperationFunc(m.list),
		protocol.OpCancelScheduledCommand: service.OperationFunc(m.cancel),
	}
}

// ScheduledView is how a scheduled command is reported to callers.
type ScheduledView struct {
	ID          string `json:"id"`
	Command     string `json:"command"`
	Time        int64  `json:"time"`
	IntervalSec int64  `json:"interval,omitempty"`
	Runs        int    `json:"runs,omitempty"`
}

func view(c schedule.Command) ScheduledView {
	return ScheduledView{
		ID:          c.ID,
		Command:     c.Command,
		Time:        c.DueAt.UnixMilli(),
		IntervalSec: int64(c.Interval / time.Second),
		Runs:        c.Runs,
	}
}

// enqueue takes [command, time, interval] or {"command","time","interval"}.
// time is unix milliseconds and defaults to now; interval is in seconds.
func (m *Module) enqueue(ctx *service.Context, _ service.Host) (any, error) {
	command, err := ctx.StringArg(0, "command")
	if err != nil {
		return nil, err
	}
	due := m.now()
	if ms, ok, err := ctx.Int64Arg(1, "time"); err != nil {
		return nil, err
	} else if ok {
		due = time.UnixMilli(ms)
	}
	var interval time.Duration
	if sec, ok, err := ctx.Int64Arg(2, "interval"); err != nil {
		return nil, err
	} else if ok {
		if sec < 0 {
			return nil, protocol.NewError(protocol.CodeInvalidArguments, "interval must not be negative")
		}
		interval = time.Duration(sec) * time.Second
	}

	id, err := m.queue.Enqueue(command, due, interval)
	if err != nil {
		return nil, err
	}
	cmd, ok := m.queue.Get(id)
	if !ok {
		// Already due and handed to the host.
		cmd = schedule.Command{ID: id, Command: command, DueAt: due, Interval: interval}
	}
	return view(cmd), nil
}

func (m *Module) list(_ *service.Context, _ service.Host) (any, error) {
	pending := m.queue.Pending()
	out := make([]ScheduledView, 0, len(pending))
	for _, c := range pending {
		out = append(out, view(c))
	}
	return out, nil
}

func (m *Module) cancel(ctx *service.Context, _ service.Host) (any, error) {
	id, err := ctx.StringArg(0, "id")
	if err != nil {
		return nil, err
	}
	return m.queue.Cancel(id), nil
}
