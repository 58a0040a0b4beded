package game

import (
	"sync/atomic"
	"time"

	"game-bridge/internal/transport"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

const outboxSize = 64

type outgoing struct {
	msg   *structpb.Struct
	close bool
}

// PlayerInfo is one connected player. Fields are owned by the host thread;
// the outbox is drained by the session's writer goroutine.
type PlayerInfo struct {
	Name     string
	Addr     string
	JoinedAt time.Time

	conn     transport.Conn
	outbox   chan outgoing
	closed   bool
	lastSeen atomic.Int64
}

func newPlayerInfo(name, addr string, conn transport.Conn) *PlayerInfo {
	p := &PlayerInfo{
		Name:     name,
		Addr:     addr,
		JoinedAt: time.Now(),
		conn:     conn,
		outbox:   make(chan outgoing, outboxSize),
	}
	p.touch()
	return p
}

// touch is called by the reading goroutine for every frame received.
func (p *PlayerInfo) touch() {
	p.lastSeen.Store(time.Now().UnixNano())
}

func (p *PlayerInfo) LastSeen() time.Time {
	return time.Unix(0, p.lastSeen.Load())
}

// Send queues msg without blocking; a full outbox drops it.
func (p *PlayerInfo) Send(msg *structpb.Struct) bool {
	if p.closed {
		return false
	}
	select {
	case p.outbox <- outgoing{msg: msg}:
		return true
	default:
		return false
	}
}

// Kick sends a final message and closes the connection once it is written.
func (p *PlayerInfo) Kick(reason string) {
	if p.closed {
		return
	}
	p.closed = true
	msg, _ := transport.NewMessage(map[string]any{"op": "kick", "reason": reason})
	select {
	case p.outbox <- outgoing{msg: msg, close: true}:
	default:
		_ = p.conn.Close()
	}
}

// writeLoop runs on the session goroutine side until the connection ends.
func (p *PlayerInfo) writeLoop(done <-chan struct{}, logger *zap.Logger) {
	for {
		select {
		case <-done:
			return
		case out := <-p.outbox:
			if err := p.conn.WriteFrame(out.msg); err != nil {
				logger.Debug("player write failed",
					zap.String("player", p.Name),
					zap.String("reason", err.Error()),
				)
				_ = p.conn.Close()
				return
			}
			if out.close {
				_ = p.conn.Close()
				return
			}
		}
	}
}
