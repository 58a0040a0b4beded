package game

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"time"

	"game-bridge/internal/transport"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	loginTimeout = 10 * time.Second
	maxChatLen   = 256
)

var (
	ErrBadLogin  = errors.New("first message must be a login")
	ErrBadName   = errors.New("invalid player name")
	validNameExp = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
)

// serveSession owns conn until the client goes away. Reads happen here,
// writes on the player's writer goroutine, state changes on the host thread.
func (s *Server) serveSession(conn transport.Conn, addr string) {
	defer conn.Close()

	timer := time.AfterFunc(loginTimeout, func() { _ = conn.Close() })
	first, err := conn.ReadFrame()
	timer.Stop()
	if err != nil {
		s.logger.Debug("session closed before login",
			zap.String("addr", addr),
			zap.String("reason", err.Error()),
		)
		return
	}

	name, err := parseLogin(first)
	if err != nil {
		s.reject(conn, addr, err)
		return
	}

	p := newPlayerInfo(name, addr, conn)
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	_, err = s.queue.Call(ctx, "player.join", func() (any, error) {
		return nil, s.join(p)
	})
	cancel()
	if err != nil {
		// a timed-out join may still run later
		s.submitQuit(p)
		s.reject(conn, addr, err)
		return
	}

	done := make(chan struct{})
	go p.writeLoop(done, s.logger)
	defer func() {
		close(done)
		s.submitQuit(p)
	}()

	for {
		msg, err := conn.ReadFrame()
		if err != nil {
			return
		}
		p.touch()
		switch op := transport.StringField(msg, "op"); op {
		case "chat":
			text := transport.StringField(msg, "text")
			if text == "" || len(text) > maxChatLen {
				continue
			}
			if err := s.queue.Submit("player.chat", func() { s.chat(p, text) }); err != nil {
				s.logger.Debug("chat dropped", zap.String("player", name), zap.String("reason", err.Error()))
			}
		case "ping":
			_ = s.queue.Submit("player.ping", func() {
				pong, _ := transport.NewMessage(map[string]any{"op": "pong"})
				p.Send(pong)
			})
		case "quit":
			return
		default:
			s.logger.Debug("unknown client op", zap.String("player", name), zap.String("op", op))
		}
	}
}

// submitQuit waits for room in the queue: a dropped quit would leave the
// player online forever. It only fails once the host thread has stopped.
func (s *Server) submitQuit(p *PlayerInfo) {
	if err := s.queue.SubmitWait(context.Background(), "player.quit", func() { s.quit(p) }); err != nil {
		s.logger.Warn("quit not delivered to host thread",
			zap.String("player", p.Name),
			zap.String("reason", err.Error()),
		)
	}
}

func parseLogin(msg *structpb.Struct) (string, error) {
	if transport.StringField(msg, "op") != "login" {
		return "", ErrBadLogin
	}
	name := transport.StringField(msg, "name")
	if !validNameExp.MatchString(name) {
		return "", ErrBadName
	}
	return name, nil
}

func (s *Server) reject(conn transport.Conn, addr string, err error) {
	atomic.AddUint64(&s.rejectedCount, 1)
	s.logger.Info("login rejected",
		zap.String("addr", addr),
		zap.String("reason", err.Error()),
	)
	msg, _ := transport.NewMessage(map[string]any{"op": "error", "reason": err.Error()})
	_ = conn.WriteFrame(msg)
}

// join runs on the host thread.
func (s *Server) join(p *PlayerInfo) error {
	if _, ok := s.banned[p.Name]; ok {
		return ErrBanned
	}
	if s.whitelistOn {
		if _, ok := s.whitelist[p.Name]; !ok {
			return ErrNotWhitelisted
		}
	}
	if err := s.players.Join(p, s.maxPlayers); err != nil {
		return err
	}
	atomic.AddUint64(&s.joinCount, 1)

	welcome, _ := transport.NewMessage(map[string]any{
		"op":      "welcome",
		"motd":    s.motd,
		"version": s.version,
		"online":  float64(s.players.Count()),
	})
	p.Send(welcome)
	s.logger.Info("player joined", zap.String("player", p.Name), zap.String("addr", p.Addr))
	return nil
}

// quit runs on the host thread.
func (s *Server) quit(p *PlayerInfo) {
	p.closed = true
	if !s.players.Quit(p) {
		return
	}
	atomic.AddUint64(&s.quitCount, 1)
	s.logger.Info("player left", zap.String("player", p.Name))
}

func (s *Server) chat(p *PlayerInfo, text string) {
	if s.players.Get(p.Name) != p {
		return
	}
	msg, _ := transport.NewMessage(map[string]any{"op": "chat", "from": p.Name, "text": text})
	s.players.Broadcast(msg)
}
