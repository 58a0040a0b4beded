package game

import (
	"errors"
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrAlreadyOnline  = errors.New("player already online")
	ErrServerFull     = errors.New("server is full")
	ErrBanned         = errors.New("player is banned")
	ErrNotWhitelisted = errors.New("player is not whitelisted")
)

// PlayerListener observes joins and quits. Calls happen on the host thread
// right after the player set changed.
type PlayerListener interface {
	OnJoin(name string)
	OnQuit(name string)
}

// PlayerManager is only touched from the host thread and needs no lock.
type PlayerManager struct {
	players   map[string]*PlayerInfo
	listeners []PlayerListener
}

func NewPlayerManager() *PlayerManager {
	return &PlayerManager{
		players: make(map[string]*PlayerInfo),
	}
}

func (m *PlayerManager) AddListener(l PlayerListener) {
	m.listeners = append(m.listeners, l)
}

func (m *PlayerManager) Join(p *PlayerInfo, maxPlayers int) error {
	if _, ok := m.players[p.Name]; ok {
		return ErrAlreadyOnline
	}
	if maxPlayers > 0 && len(m.players) >= maxPlayers {
		return ErrServerFull
	}
	m.players[p.Name] = p
	for _, l := range m.listeners {
		l.OnJoin(p.Name)
	}
	return nil
}

// Quit removes the player if p is still the registered session for its name.
func (m *PlayerManager) Quit(p *PlayerInfo) bool {
	current, ok := m.players[p.Name]
	if !ok || current != p {
		return false
	}
	delete(m.players, p.Name)
	for _, l := range m.listeners {
		l.OnQuit(p.Name)
	}
	return true
}

func (m *PlayerManager) Get(name string) *PlayerInfo {
	return m.players[name]
}

func (m *PlayerManager) Count() int {
	return len(m.players)
}

func (m *PlayerManager) Names() []string {
	names := make([]string, 0, len(m.players))
	for name := range m.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *PlayerManager) Broadcast(msg *structpb.Struct) int {
	sent := 0
	for _, p := range m.players {
		if p.Send(msg) {
			sent++
		}
	}
	return sent
}

// KickIdle kicks every player not heard from since before cutoff and
// returns how many were kicked.
func (m *PlayerManager) KickIdle(cutoff time.Time, reason string) int {
	n := 0
	for _, p := range m.players {
		if p.LastSeen().Before(cutoff) && !p.closed {
			p.Kick(reason)
			n++
		}
	}
	return n
}

func (m *PlayerManager) KickAll(reason string) {
	for _, p := range m.players {
		p.Kick(reason)
	}
}
