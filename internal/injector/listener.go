package injector

import (
	"errors"
	"net"
	"sync"
)

var errListenerClosed = errors.New("listener closed")

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// chanListener is a net.Listener fed by the shared-port stage instead of a
// socket, so the bridge's http.Server can serve diverted host connections.
type chanListener struct {
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
	addr      net.Addr
}

func newChanListener(name string) *chanListener {
	return &chanListener{
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
		addr:  pipeAddr(name),
	}
}

func (l *chanListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// deliver blocks until the server accepted conn or the listener closed.
func (l *chanListener) deliver(c net.Conn) error {
	select {
	case l.conns <- c:
		return nil
	case <-l.done:
		return errListenerClosed
	}
}

func (l *chanListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *chanListener) Addr() net.Addr {
	return l.addr
}
