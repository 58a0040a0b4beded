package service

import (
	"context"
	"fmt"
	"time"

	"game-bridge/internal/mainthread"
	"game-bridge/internal/player"
)

// State is the host API. Every method must run on the host thread.
type State interface {
	MaxPlayers() int
	MOTD() string
	Version() string
	BannedPlayers() []string
	WhitelistedPlayers() []string
	DispatchCommand(command string) bool
}

// Host is what operations see of the host application. Methods taking a
// context run on the host thread and fail with HostUnavailable or Timeout
// when it does not answer in time.
type Host interface {
	Type() string
	StartedAt() time.Time
	Players() *player.Cache

	MaxPlayers(ctx context.Context) (int, error)
	MOTD(ctx context.Context) (string, error)
	Version(ctx context.Context) (string, error)
	BannedPlayers(ctx context.Context) ([]string, error)
	WhitelistedPlayers(ctx context.Context) ([]string, error)
	RunCommand(ctx context.Context, command string) (bool, error)
}

// MainThreadHost marshals every State call onto the host thread through a
// mainthread.Queue.
type MainThreadHost struct {
	kind      string
	state     State
	players   *player.Cache
	queue     *mainthread.Queue
	startedAt time.Time
}

func NewMainThreadHost(kind string, state State, players *player.Cache, queue *mainthread.Queue) *MainThreadHost {
	if players == nil {
		players = player.NewCache()
	}
	return &MainThreadHost{
		kind:      kind,
		state:     state,
		players:   players,
		queue:     queue,
		startedAt: time.Now(),
	}
}

func (h *MainThreadHost) Type() string           { return h.kind }
func (h *MainThreadHost) StartedAt() time.Time   { return h.startedAt }
func (h *MainThreadHost) Players() *player.Cache { return h.players }

func (h *MainThreadHost) MaxPlayers(ctx context.Context) (int, error) {
	return call(ctx, h.queue, "max_players", h.state.MaxPlayers)
}

func (h *MainThreadHost) MOTD(ctx context.Context) (string, error) {
	return call(ctx, h.queue, "motd", h.state.MOTD)
}

func (h *MainThreadHost) Version(ctx context.Context) (string, error) {
	return call(ctx, h.queue, "version", h.state.Version)
}

func (h *MainThreadHost) BannedPlayers(ctx context.Context) ([]string, error) {
	return call(ctx, h.queue, "banned_players", h.state.BannedPlayers)
}

func (h *MainThreadHost) WhitelistedPlayers(ctx context.Context) ([]string, error) {
	return call(ctx, h.queue, "whitelisted_players", h.state.WhitelistedPlayers)
}

func (h *MainThreadHost) RunCommand(ctx context.Context, command string) (bool, error) {
	return call(ctx, h.queue, "run_command", func() bool {
		return h.state.DispatchCommand(command)
	})
}

// Execute queues command on the host thread without waiting; it lets the
// scheduled command queue hand work to the host.
func (h *MainThreadHost) Execute(command string) error {
	return h.queue.Submit("scheduled_command", func() {
		h.state.DispatchCommand(command)
	})
}

func call[T any](ctx context.Context, q *mainthread.Queue, name string, fn func() T) (T, error) {
	var zero T
	v, err := q.Call(ctx, name, func() (any, error) {
		return fn(), nil
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("%s: unexpected result %T", name, v)
	}
	return out, nil
}
