package game

import (
	"net"
	"sync"

	"game-bridge/internal/transport"

	"go.uber.org/zap"
)

type namedStage struct {
	name  string
	stage transport.Stage
}

// Pipeline is the chain every accepted connection runs through. Plugins add
// named stages in front of the native protocol handler. Each connection
// works on a snapshot of the chain taken when it was accepted, so a rebuild
// never affects connections already in flight.
type Pipeline struct {
	mu     sync.RWMutex
	stages []namedStage
	native func(conn *transport.BufferedConn)

	hooksMu sync.Mutex
	hooks   []func()

	logger *zap.Logger
}

func NewPipeline(native func(conn *transport.BufferedConn), logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{native: native, logger: logger}
}

// AddStage appends a stage before the native handler. It returns false and
// changes nothing when a stage with that name is already installed.
func (p *Pipeline) AddStage(name string, stage transport.Stage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.stages {
		if s.name == name {
			return false
		}
	}
	p.stages = append(p.stages, namedStage{name: name, stage: stage})
	p.logger.Debug("pipeline stage added", zap.String("stage", name))
	return true
}

func (p *Pipeline) RemoveStage(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.stages {
		if s.name == name {
			p.stages = append(p.stages[:i:i], p.stages[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pipeline) HasStage(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, s := range p.stages {
		if s.name == name {
			return true
		}
	}
	return false
}

func (p *Pipeline) Stages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.name)
	}
	return names
}

// OnRebuild registers fn to run after every Rebuild.
func (p *Pipeline) OnRebuild(fn func()) {
	p.hooksMu.Lock()
	p.hooks = append(p.hooks, fn)
	p.hooksMu.Unlock()
}

// Rebuild drops every plugin stage, as a host reload does, and then lets
// the rebuild hooks install theirs again.
func (p *Pipeline) Rebuild() {
	p.mu.Lock()
	p.stages = nil
	p.mu.Unlock()

	p.hooksMu.Lock()
	hooks := append([]func(){}, p.hooks...)
	p.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	p.logger.Info("pipeline rebuilt", zap.Strings("stages", p.Stages()))
}

// Serve runs conn through the stages and, unless one took it, the native
// handler. It returns once the connection has been handed off or handled.
func (p *Pipeline) Serve(conn net.Conn) {
	bc := transport.NewBufferedConn(conn)

	p.mu.RLock()
	stages := append([]namedStage(nil), p.stages...)
	p.mu.RUnlock()

	for _, s := range stages {
		if p.runStage(s, bc) {
			return
		}
	}
	if p.native != nil {
		p.native(bc)
		return
	}
	_ = bc.Close()
}

func (p *Pipeline) runStage(s namedStage, bc *transport.BufferedConn) (taken bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline stage panic",
				zap.String("stage", s.name),
				zap.Any("reason", r),
			)
			_ = bc.Close()
			taken = true
		}
	}()
	return s.stage(bc)
}
