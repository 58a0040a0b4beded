// Package schedule keeps deferred host commands, persists them on every
// change and hands due ones to the host execution thread.
package schedule

import (
	"sort"
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateExecuted  State = "executed"
	StateCancelled State = "cancelled"
)

// Command is one scheduled console command. Interval zero means one-shot.
type Command struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	DueAt     time.Time     `json:"due_at"`
	Interval  time.Duration `json:"interval,omitempty"`
	State     State         `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	LastRunAt time.Time     `json:"last_run_at,omitempty"`
	Runs      int           `json:"runs,omitempty"`
}

func (c Command) Recurring() bool {
	return c.Interval > 0
}

// Due reports whether c may run at now.
func (c Command) Due(now time.Time) bool {
	return !c.DueAt.After(now)
}

// nextAfter returns the first recurrence strictly after now.
func (c Command) nextAfter(now time.Time) time.Time {
	next := c.DueAt.Add(c.Interval)
	if next.After(now) {
		return next
	}
	missed := now.Sub(c.DueAt) / c.Interval
	next = c.DueAt.Add((missed + 1) * c.Interval)
	for !next.After(now) {
		next = next.Add(c.Interval)
	}
	return next
}

func sortCommands(cmds []Command) {
	sort.Slice(cmds, func(i, j int) bool {
		a, b := cmds[i], cmds[j]
		if !a.DueAt.Equal(b.DueAt) {
			return a.DueAt.Before(b.DueAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
