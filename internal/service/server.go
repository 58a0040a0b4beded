// internal/service/server.go
package service

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Server struct {
	registry *Registry
	logger   *zap.Logger

	mu         sync.Mutex
	dispatcher *Dispatcher
}

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: NewRegistry(),
		logger:   logger,
	}
}

func (s *Server) RegisterModule(m Module) error {
	s.mu.Lock()
	sealed := s.dispatcher != nil
	s.mu.Unlock()
	if sealed {
		return errors.New("service sealed, cannot register module " + m.Name())
	}
	return s.registry.Register(m)
}

// Seal freezes the operation table and returns the dispatcher serving it.
// Later calls return the same dispatcher.
func (s *Server) Seal(host Host, timeout time.Duration) *Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dispatcher != nil {
		return s.dispatcher
	}
	table := s.registry.Seal()
	s.dispatcher = NewDispatcher(table, host, timeout, s.logger)
	s.logger.Info("operations sealed",
		zap.Strings("modules", s.registry.Modules()),
		zap.Int("operations", table.Len()),
	)
	return s.dispatcher
}
