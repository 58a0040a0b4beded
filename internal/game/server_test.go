package game

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"game-bridge/internal/config"
	"game-bridge/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordingListener struct {
	events chan string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan string, 16)}
}

func (l *recordingListener) OnJoin(name string) { l.events <- "join:" + name }
func (l *recordingListener) OnQuit(name string) { l.events <- "quit:" + name }

func (l *recordingListener) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-l.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no player event")
		return ""
	}
}

type running struct {
	server *Server
	addr   string
	ctx    context.Context
}

func startServer(t *testing.T, mutate func(*config.HostConfig), listeners ...PlayerListener) *running {
	t.Helper()
	cfg := config.DefaultHostConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, nil)
	for _, l := range listeners {
		s.AddListener(l)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(runDone)
	}()
	go func() { _ = s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		<-runDone
	})
	return &running{server: s, addr: ln.Addr().String(), ctx: ctx}
}

func send(t *testing.T, conn net.Conn, fields map[string]any) {
	t.Helper()
	msg, err := transport.NewMessage(fields)
	require.NoError(t, err)
	require.NoError(t, transport.WriteFrame(conn, msg))
}

func recv(t *testing.T, conn net.Conn) *structpb.Struct {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg, err := transport.ReadFrame(conn)
	require.NoError(t, err)
	return msg
}

// recvOp skips frames until one with the given op arrives.
func recvOp(t *testing.T, conn net.Conn, op string) *structpb.Struct {
	t.Helper()
	for i := 0; i < 8; i++ {
		msg := recv(t, conn)
		if transport.StringField(msg, "op") == op {
			return msg
		}
	}
	t.Fatalf("no %q frame", op)
	return nil
}

func login(t *testing.T, addr, name string) (net.Conn, *structpb.Struct) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	send(t, conn, map[string]any{"op": "login", "name": name})
	return conn, recv(t, conn)
}

func TestLoginJoinsAndDisconnectQuits(t *testing.T) {
	events := newRecordingListener()
	r := startServer(t, nil, events)

	conn, first := login(t, r.addr, "alice")
	assert.Equal(t, "welcome", transport.StringField(first, "op"))
	assert.Equal(t, config.DefaultHostConfig().MOTD, transport.StringField(first, "motd"))
	assert.Equal(t, "join:alice", events.next(t))

	require.NoError(t, conn.Close())
	assert.Equal(t, "quit:alice", events.next(t))
}

func TestChatIsBroadcast(t *testing.T) {
	r := startServer(t, nil)

	alice, _ := login(t, r.addr, "alice")
	bob, _ := login(t, r.addr, "bob")

	send(t, alice, map[string]any{"op": "chat", "text": "hi bob"})
	msg := recvOp(t, bob, "chat")
	assert.Equal(t, "alice", transport.StringField(msg, "from"))
	assert.Equal(t, "hi bob", transport.StringField(msg, "text"))
}

func TestLoginRejections(t *testing.T) {
	r := startServer(t, func(cfg *config.HostConfig) { cfg.MaxPlayers = 1 })

	_, first := login(t, r.addr, "alice")
	require.Equal(t, "welcome", transport.StringField(first, "op"))

	_, dup := login(t, r.addr, "alice")
	assert.Equal(t, "error", transport.StringField(dup, "op"))
	assert.Equal(t, ErrAlreadyOnline.Error(), transport.StringField(dup, "reason"))

	_, full := login(t, r.addr, "bob")
	assert.Equal(t, ErrServerFull.Error(), transport.StringField(full, "reason"))

	_, bad := login(t, r.addr, "not a name")
	assert.Equal(t, ErrBadName.Error(), transport.StringField(bad, "reason"))
}

func TestFirstFrameMustBeLogin(t *testing.T) {
	r := startServer(t, nil)

	conn, err := net.Dial("tcp", r.addr)
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, map[string]any{"op": "chat", "text": "hello"})
	msg := recv(t, conn)
	assert.Equal(t, ErrBadLogin.Error(), transport.StringField(msg, "reason"))
}

func TestBanKicksOnlinePlayer(t *testing.T) {
	events := newRecordingListener()
	r := startServer(t, nil, events)

	conn, _ := login(t, r.addr, "alice")
	assert.Equal(t, "join:alice", events.next(t))

	ok, err := r.server.Queue().Call(r.ctx, "ban", func() (any, error) {
		return r.server.DispatchCommand("ban alice"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	kick := recvOp(t, conn, "kick")
	assert.Equal(t, "banned", transport.StringField(kick, "reason"))
	assert.Equal(t, "quit:alice", events.next(t))

	_, again := login(t, r.addr, "alice")
	assert.Equal(t, ErrBanned.Error(), transport.StringField(again, "reason"))
}

func TestWebSocketSession(t *testing.T) {
	events := newRecordingListener()
	r := startServer(t, nil, events)

	srv := httptest.NewServer(r.server.WebSocketHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"op":"login","name":"carol"}`)))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"welcome"`)
	assert.Equal(t, "join:carol", events.next(t))
}

func TestIdlePlayerIsKicked(t *testing.T) {
	events := newRecordingListener()
	r := startServer(t, func(cfg *config.HostConfig) { cfg.HeartbeatTimeoutSec = 1 }, events)

	conn, _ := login(t, r.addr, "idle")
	assert.Equal(t, "join:idle", events.next(t))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		msg, err := transport.ReadFrame(conn)
		require.NoError(t, err)
		if transport.StringField(msg, "op") == "kick" {
			assert.Equal(t, "heartbeat timeout", transport.StringField(msg, "reason"))
			break
		}
	}
	assert.Equal(t, "quit:idle", events.next(t))
}

func TestQuitSurvivesFullQueue(t *testing.T) {
	events := newRecordingListener()
	r := startServer(t, nil, events)

	conn, _ := login(t, r.addr, "alice")
	assert.Equal(t, "join:alice", events.next(t))

	// Park the host thread and fill its inbox.
	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, r.server.Queue().Submit("park", func() {
		close(started)
		<-release
	}))
	<-started
	for r.server.Queue().Submit("filler", func() {}) == nil {
	}

	require.NoError(t, conn.Close())
	time.Sleep(100 * time.Millisecond)
	close(release)

	assert.Equal(t, "quit:alice", events.next(t))
	online, err := r.server.Queue().Call(r.ctx, "online", func() (any, error) {
		return r.server.OnlinePlayers(), nil
	})
	require.NoError(t, err)
	assert.Empty(t, online)
}
