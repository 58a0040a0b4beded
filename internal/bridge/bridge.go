// Package bridge assembles the HTTP RPC bridge inside a host application:
// configuration, logging, the scheduled command queue, the route table and
// the network entry point.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"game-bridge/internal/common/logging"
	"game-bridge/internal/config"
	"game-bridge/internal/db/redis_tools"
	"game-bridge/internal/injector"
	"game-bridge/internal/mainthread"
	"game-bridge/internal/metrics"
	"game-bridge/internal/player"
	"game-bridge/internal/protocol"
	"game-bridge/internal/router"
	"game-bridge/internal/schedule"
	"game-bridge/internal/service"
	"game-bridge/internal/service/modules/common"
	"game-bridge/internal/service/modules/hostinfo"
	"game-bridge/internal/service/modules/scheduler"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	ConfigFile = "config.json"
	LogFile    = "bridge.log"

	redisHealthInterval = 30 * time.Second
)

// Options describe the host the bridge is embedded in.
type Options struct {
	DataDir string
	// Kind is reported by GET_PLUGIN_TYPE.
	Kind  string
	State service.State
	Queue *mainthread.Queue
	// Pipeline enables shared-port mode; nil leaves only dedicated mode.
	Pipeline injector.Pipeline
	// Online lists connected players. It runs on the host thread and seeds
	// the player cache on enable.
	Online   func() []string
	BindHost string
	Clock    clock.Clock
	// Logger replaces the bridge's own file logger.
	Logger *zap.Logger
}

type Bridge struct {
	opts       Options
	configPath string

	// lifecycle serializes Enable and Disable; mu guards the fields below
	// and is never held across a blocking shutdown step.
	lifecycle sync.Mutex
	mu        sync.Mutex
	cfg       *config.BridgeConfig
	enabled   bool

	logger     *zap.Logger
	level      zap.AtomicLevel
	ownsLogger bool

	players    *player.Cache
	host       *service.MainThreadHost
	redis      *redis.Client
	health     *redis_tools.Health
	scheduled  *schedule.Queue
	runner     *schedule.Runner
	router     *router.Router
	dispatcher *service.Dispatcher
	injector   *injector.Injector
	metrics    *metrics.Bridge

	cancel    context.CancelFunc
	watchDone chan struct{}
}

func New(opts Options) *Bridge {
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Bridge{
		opts:       opts,
		configPath: filepath.Join(opts.DataDir, ConfigFile),
		players:    player.NewCache(),
		logger:     zap.NewNop(),
	}
}

// Enable loads the configuration and brings every component up. A failing
// HTTP entry point leaves the bridge enabled but unavailable.
func (b *Bridge) Enable(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.enabled {
		return nil
	}
	if b.opts.State == nil || b.opts.Queue == nil {
		return fmt.Errorf("bridge: host state and main thread queue are required")
	}
	if err := os.MkdirAll(b.opts.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", b.opts.DataDir, err)
	}

	cfg, err := config.LoadBridge(b.configPath)
	if err != nil {
		return err
	}
	b.cfg = cfg
	if err := b.setupLogger(cfg); err != nil {
		return err
	}
	b.logger.Info("loading bridge",
		zap.String("data_dir", b.opts.DataDir),
		zap.String("store", cfg.Store.Backend),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	abort := func(err error) error {
		cancel()
		if b.redis != nil {
			_ = b.redis.Close()
			b.redis = nil
		}
		return err
	}

	store, err := b.openStore(ctx, runCtx, cfg)
	if err != nil {
		return abort(err)
	}

	b.host = service.NewMainThreadHost(b.opts.Kind, b.opts.State, b.players, b.opts.Queue)
	b.seedPlayers()

	// set before the injector starts serving, so scrapes always see it
	var inj *injector.Injector
	probes := metrics.Probes{
		Available: func() bool { return inj != nil && inj.Status().Available },
		Players:   b.players.Count,
	}
	if b.health != nil {
		probes.StoreHealthy = b.health.Healthy
	}
	b.metrics = metrics.New(probes)

	b.scheduled = schedule.NewQueue(store, b.host,
		schedule.WithClock(b.opts.Clock),
		schedule.WithLogger(b.logger.Named("schedule")),
		schedule.WithRecorder(b.metrics),
	)
	if err := b.scheduled.Load(ctx); err != nil {
		b.logger.Warn("scheduled commands not loaded, starting empty", zap.String("reason", err.Error()))
	}

	b.logger.Info("registering routes")
	b.router, err = b.buildRouter(cfg)
	if err != nil {
		return abort(err)
	}

	inj = injector.New(b.router, b.opts.Pipeline,
		injector.WithPathPrefix(cfg.PathPrefix),
		injector.WithBindHost(b.opts.BindHost),
		injector.WithLogger(b.logger.Named("injector")),
	)
	b.injector = inj
	inj.Start(cfg.Port)

	b.logger.Info("starting command scheduler", zap.Duration("interval", cfg.TickInterval()))
	b.runner = schedule.NewRunner(b.scheduled, cfg.TickInterval(), b.opts.Clock, b.logger.Named("schedule"))
	b.runner.Start(runCtx)

	watchDone := make(chan struct{})
	b.watchDone = watchDone
	go func() {
		defer close(watchDone)
		if err := config.Watch(runCtx, b.configPath, b.logger.Named("config"), b.applyConfig); err != nil {
			b.logger.Warn("config watcher stopped", zap.String("reason", err.Error()))
		}
	}()

	b.enabled = true
	b.logger.Info("bridge ready", zap.String("mode", b.injector.Status().Mode.String()))
	return nil
}

func (b *Bridge) setupLogger(cfg *config.BridgeConfig) error {
	if b.opts.Logger != nil {
		b.logger = b.opts.Logger.Named("bridge")
		return nil
	}
	logger, level, err := logging.Build("bridge", logging.Options{
		Level: cfg.LogLevel,
		File:  filepath.Join(b.opts.DataDir, LogFile),
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	b.logger, b.level, b.ownsLogger = logger, level, true
	return nil
}

func (b *Bridge) openStore(ctx, runCtx context.Context, cfg *config.BridgeConfig) (schedule.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		client, err := redis_tools.Open(ctx, cfg.Store.Redis)
		if err != nil {
			return nil, protocol.WrapError(protocol.CodePersistenceFailure, "open scheduled store", err)
		}
		b.redis = client
		b.health = redis_tools.StartHealthCheck(runCtx, client, b.logger.Named("redis"), redisHealthInterval)
		return schedule.NewRedisStore(redis_tools.NewRedisDao(client), cfg.Store.Redis.Key), nil
	default:
		return schedule.NewFileStore(filepath.Join(b.opts.DataDir, cfg.Store.File)), nil
	}
}

// seedPlayers fills the cache from the host once the host thread runs.
// Join and quit events run on the same thread and apply on top of it.
func (b *Bridge) seedPlayers() {
	if b.opts.Online == nil {
		return
	}
	online := b.opts.Online
	if err := b.opts.Queue.Submit("bridge.seed_players", func() {
		b.players.Reset(online())
	}); err != nil {
		b.logger.Warn("player cache not seeded", zap.String("reason", err.Error()))
	}
}

func (b *Bridge) buildRouter(cfg *config.BridgeConfig) (*router.Router, error) {
	svc := service.NewServer(b.logger.Named("service"))
	for _, m := range []service.Module{
		common.New(),
		&hostinfo.Module{},
		scheduler.New(b.scheduled),
	} {
		if err := svc.RegisterModule(m); err != nil {
			return nil, err
		}
	}
	b.dispatcher = svc.Seal(b.host, cfg.HostTimeout())
	b.dispatcher.SetRecorder(b.metrics)

	r := router.New(b.logger.Named("router"))
	err := multierr.Combine(
		r.EveryMatch(b.logRequest),
		r.EveryMatch(b.metrics.ObserveRequest),
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			_ = protocol.WriteEnvelope(w, http.StatusOK, protocol.Success("ok"))
		}),
		r.Register(http.MethodGet, cfg.RPCPath, b.dispatcher),
		r.Register(http.MethodPost, cfg.RPCPath, b.dispatcher),
		r.Register(http.MethodGet, "/metrics", b.metrics.Handler()),
	)
	if err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}
	r.Seal()
	return r, nil
}

func (b *Bridge) logRequest(ev router.Event) {
	b.logger.Debug("http request",
		zap.Int("status", ev.Status),
		zap.String("method", ev.Method),
		zap.String("uri", ev.URI),
		zap.Duration("took", ev.Duration),
	)
}

// applyConfig takes a reloaded config file. Only the log level and a new
// dedicated port are applied live.
func (b *Bridge) applyConfig(next *config.BridgeConfig) {
	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return
	}
	prev := b.cfg
	b.cfg = next
	inj := b.injector
	b.mu.Unlock()

	b.applyLevel(next.LogLevel)
	if next.Port == nil || inj == nil {
		return
	}
	if prev != nil && prev.Port != nil && *prev.Port == *next.Port {
		return
	}
	if err := inj.SwitchToDedicated(*next.Port); err != nil {
		b.logger.Warn("reloaded port not applied", zap.String("reason", err.Error()))
	}
}

func (b *Bridge) applyLevel(name string) {
	if !b.ownsLogger {
		return
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		b.logger.Warn("log level not applied", zap.String("reason", err.Error()))
		return
	}
	if b.level.Level() != level {
		b.level.SetLevel(level)
		b.logger.Info("log level changed", zap.String("level", level.String()))
	}
}

// Disable stops the config watcher and the scheduler, persists pending
// commands and closes the HTTP entry point. Errors are collected, not
// short-circuited, and no step waits past ctx.
func (b *Bridge) Disable(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return nil
	}
	b.enabled = false
	runner, scheduled, inj := b.runner, b.scheduled, b.injector
	cancel, watchDone, client := b.cancel, b.watchDone, b.redis
	b.redis, b.health = nil, nil
	b.mu.Unlock()

	b.logger.Info("shutting down")
	var err error
	if cancel != nil {
		cancel()
	}
	if watchDone != nil {
		select {
		case <-watchDone:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("config watcher: %w", ctx.Err()))
		}
	}
	if runner != nil {
		runner.Stop()
	}
	if scheduled != nil {
		err = multierr.Append(err, scheduled.Save(ctx))
	}
	if inj != nil {
		err = multierr.Append(err, inj.Close(ctx))
	}
	if client != nil {
		err = multierr.Append(err, client.Close())
	}
	if b.ownsLogger {
		_ = b.logger.Sync()
	}
	return err
}

func (b *Bridge) OnJoin(name string) { b.players.Add(name) }
func (b *Bridge) OnQuit(name string) { b.players.Remove(name) }

func (b *Bridge) Players() *player.Cache { return b.players }

// Handler is the bridge route table, for hosts that mount it themselves.
func (b *Bridge) Handler() http.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.router
}

func (b *Bridge) Config() config.BridgeConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg == nil {
		return config.DefaultBridgeConfig()
	}
	return *b.cfg
}

type Status struct {
	Enabled   bool
	Mode      string
	Available bool
	Addr      string
	Port      int
	LastError string
	Pending   int
	Players   int
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	inj, scheduled, enabled := b.injector, b.scheduled, b.enabled
	b.mu.Unlock()

	st := Status{Enabled: enabled, Mode: injector.ModeNone.String(), Players: b.players.Count()}
	if inj != nil {
		is := inj.Status()
		st.Mode = is.Mode.String()
		st.Available = is.Available
		st.Addr = is.Addr
		st.Port = is.Port
		st.LastError = is.LastError
	}
	if scheduled != nil {
		st.Pending = scheduled.Len()
	}
	return st
}
