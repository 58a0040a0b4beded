package game

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"game-bridge/internal/transport"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const WebSocketPath = "/play"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketHandler upgrades /play requests and runs them as player sessions.
// Text messages carry JSON, binary messages protobuf.
func (s *Server) WebSocketHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", zap.String("reason", err.Error()))
			return
		}
		useJSON := r.URL.Query().Get("format") != "binary"
		s.serveSession(transport.NewWSConn(ws, useJSON), r.RemoteAddr)
	})
	return mux
}

// ServeWebSocket serves browser clients on addr until ctx is done.
func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serveWebSocket(ctx, ln)
}

func (s *Server) serveWebSocket(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.WebSocketHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Named("websocket")),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("websocket listening", zap.String("addr", ln.Addr().String()), zap.String("path", WebSocketPath))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
