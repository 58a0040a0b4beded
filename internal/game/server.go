// Package game is a small single-threaded game host. All host state lives
// on the goroutine running Server.Run; network goroutines reach it through
// the mainthread queue.
package game

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"game-bridge/internal/config"
	"game-bridge/internal/mainthread"
	"game-bridge/internal/transport"

	"go.uber.org/zap"
)

// PluginType is reported to bridge clients as the host kind.
const PluginType = "GOSERVER"

const (
	TickInterval      = 50 * time.Millisecond
	statsInterval     = time.Minute
	heartbeatInterval = time.Second
	// tasks run per tick on top of the ones the select loop picks up
	drainPerTick = 64
)

type Server struct {
	cfg    config.HostConfig
	logger *zap.Logger

	queue    *mainthread.Queue
	pipeline *Pipeline
	players  *PlayerManager
	commands map[string]CommandFunc
	console  Sender

	maxPlayers  int
	motd        string
	version     string
	banned      map[string]struct{}
	whitelist   map[string]struct{}
	whitelistOn bool

	heartbeatTimeout time.Duration

	ticks     uint64
	startedAt time.Time

	joinCount      uint64
	quitCount      uint64
	rejectedCount  uint64
	commandCount   uint64
	heartbeatKicks uint64
}

func New(cfg config.HostConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		queue:      mainthread.NewQueue(mainthread.WithLogger(logger.Named("mainthread"))),
		players:    NewPlayerManager(),
		commands:   make(map[string]CommandFunc),
		maxPlayers: cfg.MaxPlayers,
		motd:       cfg.MOTD,
		version:    cfg.Version,
		banned:     make(map[string]struct{}),
		whitelist:  make(map[string]struct{}),
		startedAt:  time.Now(),

		heartbeatTimeout: time.Duration(cfg.HeartbeatTimeoutSec) * time.Second,
	}
	s.console = &logSender{logger: logger.Named("console")}
	s.pipeline = NewPipeline(s.handleNative, logger.Named("pipeline"))
	s.registerBuiltins()
	return s
}

func (s *Server) Queue() *mainthread.Queue { return s.queue }
func (s *Server) Pipeline() *Pipeline      { return s.pipeline }
func (s *Server) Logger() *zap.Logger      { return s.logger }

// AddListener must be called before Run or from the host thread.
func (s *Server) AddListener(l PlayerListener) {
	s.players.AddListener(l)
}

// Run is the host thread. It returns when ctx is done, after kicking every
// player and stopping the queue.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	s.logger.Info("host thread started",
		zap.Int("max_players", s.maxPlayers),
		zap.String("version", s.version),
	)
	defer s.shutdown()

	tasks := s.queue.Tasks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-tasks:
			t.Run()
		case <-ticker.C:
			s.tick()
		case <-stats.C:
			s.reportStats()
		case <-heartbeat.C:
			s.checkHeartbeat()
		}
	}
}

func (s *Server) tick() {
	atomic.AddUint64(&s.ticks, 1)
	s.queue.Drain(drainPerTick)
}

// Ticks is the number of game ticks run so far.
func (s *Server) Ticks() uint64 {
	return atomic.LoadUint64(&s.ticks)
}

func (s *Server) checkHeartbeat() {
	if s.heartbeatTimeout <= 0 {
		return
	}
	if n := s.players.KickIdle(time.Now().Add(-s.heartbeatTimeout), "heartbeat timeout"); n > 0 {
		atomic.AddUint64(&s.heartbeatKicks, uint64(n))
		s.logger.Warn("heartbeat timeout", zap.Int("kicked", n))
	}
}

func (s *Server) shutdown() {
	s.players.KickAll("server closed")
	s.queue.Stop()
	s.logger.Info("host thread stopped", zap.Uint64("ticks", s.Ticks()))
}

func (s *Server) reportStats() {
	joins := atomic.SwapUint64(&s.joinCount, 0)
	quits := atomic.SwapUint64(&s.quitCount, 0)
	rejected := atomic.SwapUint64(&s.rejectedCount, 0)
	commands := atomic.SwapUint64(&s.commandCount, 0)
	heartbeatKicks := atomic.SwapUint64(&s.heartbeatKicks, 0)

	if joins == 0 && quits == 0 && rejected == 0 && commands == 0 && heartbeatKicks == 0 {
		return
	}
	s.logger.Info("host stats",
		zap.Int("online", s.players.Count()),
		zap.Uint64("joins", joins),
		zap.Uint64("quits", quits),
		zap.Uint64("rejected", rejected),
		zap.Uint64("commands", commands),
		zap.Uint64("heartbeat_timeout", heartbeatKicks),
	)
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs each through the pipeline.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.logger.Info("host listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", zap.String("reason", err.Error()))
			continue
		}
		go s.pipeline.Serve(conn)
	}
}

func (s *Server) handleNative(conn *transport.BufferedConn) {
	s.serveSession(conn, conn.RemoteAddr().String())
}

// The accessors below implement service.State and must run on the host
// thread.

func (s *Server) MaxPlayers() int { return s.maxPlayers }
func (s *Server) MOTD() string    { return s.motd }
func (s *Server) Version() string { return s.version }

func (s *Server) BannedPlayers() []string {
	return sortedKeys(s.banned)
}

func (s *Server) WhitelistedPlayers() []string {
	return sortedKeys(s.whitelist)
}

func (s *Server) OnlinePlayers() []string {
	return s.players.Names()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
