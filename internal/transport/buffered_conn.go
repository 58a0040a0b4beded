package transport

import (
	"bufio"
	"bytes"
	"net"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"
)

const defaultBufferSize = 32 * 1024

// BufferedConn is a net.Conn whose unread input can be inspected with Peek
// before any consumer reads it. Peeked bytes are returned by later reads.
type BufferedConn struct {
	net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex
}

func NewBufferedConn(conn net.Conn) *BufferedConn {
	if bc, ok := conn.(*BufferedConn); ok {
		return bc
	}
	return &BufferedConn{
		Conn:   conn,
		reader: bufio.NewReaderSize(conn, defaultBufferSize),
		writer: bufio.NewWriterSize(conn, defaultBufferSize),
	}
}

func (c *BufferedConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *BufferedConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n, err := c.writer.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.writer.Flush()
}

func (c *BufferedConn) Peek(n int) ([]byte, error) {
	return c.reader.Peek(n)
}

// PeekLine returns the buffered input up to and including the first '\n',
// reading more only while the input still looks like an HTTP request line.
// ok is false as soon as the bytes cannot start a request line or no line
// end shows up within limit bytes.
func (c *BufferedConn) PeekLine(limit int) (line []byte, ok bool, err error) {
	if limit <= 0 || limit > defaultBufferSize {
		limit = defaultBufferSize
	}
	want := 1
	for {
		n := c.reader.Buffered()
		if n < want {
			n = want
		}
		if n > limit {
			n = limit
		}
		buf, err := c.reader.Peek(n)
		if err != nil {
			return nil, false, err
		}
		if !plausibleRequestLine(buf) {
			return nil, false, nil
		}
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return buf[:i+1], true, nil
		}
		if n >= limit {
			return nil, false, nil
		}
		want = n + 1
	}
}

// plausibleRequestLine reports whether b can be the start of
// "METHOD SP target SP version".
func plausibleRequestLine(b []byte) bool {
	for i, ch := range b {
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch == ' ' && i > 0:
			return true
		default:
			return false
		}
	}
	return len(b) > 0
}

func (c *BufferedConn) ReadFrame() (*structpb.Struct, error) {
	return readFrame(c.reader)
}

func (c *BufferedConn) WriteFrame(msg *structpb.Struct) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.writer, msg); err != nil {
		return err
	}
	return c.writer.Flush()
}

// ParseRequestLine splits "GET /path?q HTTP/1.1\r\n" into method and target.
func ParseRequestLine(line []byte) (method, target string, ok bool) {
	line = bytes.TrimRight(line, "\r\n")
	parts := bytes.Split(line, []byte{' '})
	if len(parts) != 3 || !bytes.HasPrefix(parts[2], []byte("HTTP/")) {
		return "", "", false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return "", "", false
	}
	return string(parts[0]), string(parts[1]), true
}
