// Package injector gives the bridge its HTTP entry point: either a stage in
// the host's own connection pipeline (shared port) or a listener of its own
// (dedicated port).
package injector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"game-bridge/internal/protocol"
	"game-bridge/internal/router"
	"game-bridge/internal/transport"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StageName keys the shared-port stage in the host pipeline.
const StageName = "bridge-http"

const (
	sniffTimeout      = 5 * time.Second
	maxRequestLine    = 8 * 1024
	readHeaderTimeout = 10 * time.Second
	drainTimeout      = 5 * time.Second
)

type Mode int

const (
	ModeNone Mode = iota
	ModeShared
	ModeDedicated
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeDedicated:
		return "dedicated"
	default:
		return "none"
	}
}

// Pipeline is the part of the host connection pipeline the injector needs.
// AddStage must be idempotent per name.
type Pipeline interface {
	AddStage(name string, stage transport.Stage) bool
	HasStage(name string) bool
	OnRebuild(fn func())
}

type Status struct {
	Mode      Mode
	Available bool
	Addr      string
	Port      int
	LastError string
}

type sharedEntry struct {
	listener *chanListener
	server   *http.Server
	active   atomic.Bool
	prefix   string
	logger   *zap.Logger
}

type dedicatedEntry struct {
	port     int
	listener net.Listener
	server   *http.Server
}

type Injector struct {
	handler  http.Handler
	pipeline Pipeline
	prefix   string
	bindHost string
	logger   *zap.Logger

	mu        sync.Mutex
	mode      Mode
	shared    *sharedEntry
	dedicated *dedicatedEntry
	hooked    bool
	available bool
	lastErr   error
	closed    bool
	wg        sync.WaitGroup
}

type Option func(*Injector)

// WithPathPrefix limits shared-port diversion to paths under prefix.
func WithPathPrefix(prefix string) Option {
	return func(i *Injector) {
		if prefix != "" {
			i.prefix = prefix
		}
	}
}

// WithBindHost sets the interface dedicated listeners bind to; empty binds
// all interfaces.
func WithBindHost(host string) Option {
	return func(i *Injector) {
		i.bindHost = host
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(i *Injector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func New(handler http.Handler, pipeline Pipeline, opts ...Option) *Injector {
	i := &Injector{
		handler:  handler,
		pipeline: pipeline,
		prefix:   "/",
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start picks the entry point: shared port when port is nil, a dedicated
// listener otherwise. Failures only mark the bridge unavailable.
func (i *Injector) Start(port *int) {
	i.mu.Lock()
	started := i.mode != ModeNone
	i.mu.Unlock()
	if started {
		i.logger.Warn("injector already started")
		return
	}

	if port == nil {
		i.logger.Info("injecting into host pipeline", zap.String("prefix", i.prefix))
		i.attachShared()
		return
	}
	i.logger.Info("starting dedicated http server", zap.Int("port", *port))
	if err := i.SwitchToDedicated(*port); err != nil {
		i.logger.Warn("bridge running without http entry point", zap.String("reason", err.Error()))
	}
}

func (i *Injector) attachShared() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pipeline == nil {
		i.setFailureLocked(ModeShared, protocol.NewError(protocol.CodeHostUnavailable, "host exposes no connection pipeline"))
		return
	}
	if i.shared == nil {
		i.shared = i.newShared()
	}
	i.mode = ModeShared

	if !i.hooked {
		i.pipeline.OnRebuild(i.reattach)
		i.hooked = true
	}
	i.pipeline.AddStage(StageName, i.shared.stage)
	i.available = true
	i.lastErr = nil
}

func (i *Injector) newShared() *sharedEntry {
	s := &sharedEntry{
		listener: newChanListener(StageName),
		prefix:   i.prefix,
		logger:   i.logger,
	}
	s.server = &http.Server{
		Handler:           i.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(i.logger.Named("http")),
	}
	s.active.Store(true)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.logger.Warn("shared http server stopped", zap.String("reason", err.Error()))
		}
	}()
	return s
}

// reattach runs after the host rebuilt its pipeline. The stage is keyed by
// name, so repeated calls never stack interceptors.
func (i *Injector) reattach() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.shared == nil || i.pipeline == nil {
		return
	}
	if i.pipeline.AddStage(StageName, i.shared.stage) {
		i.logger.Info("re-attached to rebuilt host pipeline")
	}
}

// stage diverts HTTP requests under the prefix to the bridge server.
func (s *sharedEntry) stage(conn *transport.BufferedConn) bool {
	if !s.active.Load() {
		return false
	}

	_ = conn.SetReadDeadline(time.Now().Add(sniffTimeout))
	line, ok, err := conn.PeekLine(maxRequestLine)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil || !ok {
		return false
	}
	_, target, ok := transport.ParseRequestLine(line)
	if !ok {
		return false
	}
	path := target
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	if !router.MatchPrefix(path, s.prefix) {
		return false
	}
	if err := s.listener.deliver(conn); err != nil {
		s.logger.Debug("shared stage closed, passing connection on", zap.String("reason", err.Error()))
		return false
	}
	return true
}

// SwitchToDedicated binds port and serves the bridge there. A shared-port
// stage, if any, stays in the host pipeline but stops diverting. A previous
// dedicated listener is drained only after the new one is bound.
func (i *Injector) SwitchToDedicated(port int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return protocol.NewError(protocol.CodeHostUnavailable, "bridge entry point is closed")
	}
	if i.dedicated != nil && port != 0 && i.dedicated.port == port {
		return nil
	}

	entry, err := i.listen(port)
	if err != nil {
		bindErr := protocol.WrapError(protocol.CodeListenerBindFailure, fmt.Sprintf("bind port %d", port), err)
		if i.dedicated == nil && (i.shared == nil || !i.shared.active.Load()) {
			i.setFailureLocked(ModeDedicated, bindErr)
		} else {
			i.lastErr = bindErr
		}
		i.logger.Warn("http server start failed",
			zap.Int("port", port),
			zap.String("reason", err.Error()),
		)
		return bindErr
	}

	old := i.dedicated
	i.dedicated = entry
	if i.shared != nil {
		i.shared.active.Store(false)
	}
	i.mode = ModeDedicated
	i.available = true
	i.lastErr = nil
	i.logger.Info("dedicated http server listening", zap.String("addr", entry.listener.Addr().String()))

	if old != nil {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := old.server.Shutdown(ctx); err != nil {
				i.logger.Warn("previous http server drain failed", zap.String("reason", err.Error()))
			}
		}()
	}
	return nil
}

func (i *Injector) listen(port int) (*dedicatedEntry, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(i.bindHost, fmt.Sprint(port)))
	if err != nil {
		return nil, err
	}
	entry := &dedicatedEntry{
		port:     ln.Addr().(*net.TCPAddr).Port,
		listener: ln,
		server: &http.Server{
			Handler:           i.handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ErrorLog:          zap.NewStdLog(i.logger.Named("http")),
		},
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := entry.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.logger.Warn("dedicated http server stopped", zap.String("reason", err.Error()))
		}
	}()
	return entry, nil
}

func (i *Injector) setFailureLocked(mode Mode, err error) {
	i.mode = mode
	i.available = false
	i.lastErr = err
	i.logger.Warn("bridge unavailable",
		zap.String("mode", mode.String()),
		zap.String("reason", err.Error()),
	)
}

func (i *Injector) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()

	st := Status{Mode: i.mode, Available: i.available}
	if i.lastErr != nil {
		st.LastError = i.lastErr.Error()
	}
	switch {
	case i.mode == ModeDedicated && i.dedicated != nil:
		st.Addr = i.dedicated.listener.Addr().String()
		st.Port = i.dedicated.port
	case i.mode == ModeShared && i.shared != nil:
		st.Addr = i.shared.listener.Addr().String()
	}
	return st
}

// Close shuts every server down and waits for their goroutines.
func (i *Injector) Close(ctx context.Context) error {
	i.mu.Lock()
	shared, dedicated := i.shared, i.dedicated
	i.shared, i.dedicated = nil, nil
	i.available = false
	i.closed = true
	i.mu.Unlock()

	var err error
	if shared != nil {
		shared.active.Store(false)
		err = multierr.Append(err, shared.server.Shutdown(ctx))
		_ = shared.listener.Close()
	}
	if dedicated != nil {
		err = multierr.Append(err, dedicated.server.Shutdown(ctx))
	}

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	return err
}
