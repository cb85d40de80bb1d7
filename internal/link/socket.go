package link

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/acconeer/exptool-go/a121"
)

// DefaultTCPPort is the fixed port the exploration server listens on.
const DefaultTCPPort = 6110

const socketChunkSize = 4096

// SocketLink is a Link over a TCP connection to the exploration server.
// Reads are chunked into an internal growable buffer so Recv and RecvUntil
// can hand out exact slices.
type SocketLink struct {
	host    string
	port    int
	timeout time.Duration

	conn net.Conn
	buf  bytes.Buffer
}

// NewSocketLink returns an unconnected socket link to host on the standard
// exploration port.
func NewSocketLink(host string, port int) *SocketLink {
	if port == 0 {
		port = DefaultTCPPort
	}
	return &SocketLink{host: host, port: port, timeout: DefaultTimeout}
}

func (l *SocketLink) Timeout() time.Duration     { return l.timeout }
func (l *SocketLink) SetTimeout(d time.Duration) { l.timeout = d }

// Connect dials the server. The connect attempt itself is bounded by the
// link timeout.
func (l *SocketLink) Connect() error {
	if l.conn != nil {
		return a121.NewLinkError("connect", errors.New("already connected"))
	}
	addr := net.JoinHostPort(l.host, fmt.Sprintf("%d", l.port))
	conn, err := net.DialTimeout("tcp", addr, l.timeout)
	if err != nil {
		return a121.NewLinkError("connect", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// frames are latency sensitive, don't batch small writes
		_ = tc.SetNoDelay(true)
	}
	l.conn = conn
	l.buf.Reset()
	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (l *SocketLink) Disconnect() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.buf.Reset()
	if err != nil {
		return a121.NewLinkError("disconnect", err)
	}
	return nil
}

// Send writes the whole buffer or fails.
func (l *SocketLink) Send(data []byte) error {
	if l.conn == nil {
		return a121.NewLinkError("send", errors.New("not connected"))
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.timeout)); err != nil {
		return a121.NewLinkError("send", err)
	}
	if _, err := l.conn.Write(data); err != nil {
		return a121.NewLinkError("send", wrapDeadline(err))
	}
	return nil
}

// Recv blocks until exactly n bytes are buffered, then returns them.
func (l *SocketLink) Recv(n int) ([]byte, error) {
	deadline := time.Now().Add(l.timeout)
	for l.buf.Len() < n {
		if err := l.fill(deadline); err != nil {
			return nil, err
		}
	}
	out := make([]byte, n)
	if _, err := l.buf.Read(out); err != nil {
		return nil, a121.NewLinkError("recv", err)
	}
	return out, nil
}

// RecvUntil blocks until delim appears in the stream and returns the
// consumed bytes including the delimiter.
func (l *SocketLink) RecvUntil(delim []byte) ([]byte, error) {
	deadline := time.Now().Add(l.timeout)
	for {
		if i := bytes.Index(l.buf.Bytes(), delim); i >= 0 {
			out := make([]byte, i+len(delim))
			if _, err := l.buf.Read(out); err != nil {
				return nil, a121.NewLinkError("recv_until", err)
			}
			return out, nil
		}
		if err := l.fill(deadline); err != nil {
			return nil, err
		}
	}
}

// fill reads one chunk from the connection into the internal buffer,
// respecting the overall operation deadline.
func (l *SocketLink) fill(deadline time.Time) error {
	if l.conn == nil {
		return a121.NewLinkError("recv", errors.New("not connected"))
	}
	if !time.Now().Before(deadline) {
		return a121.NewLinkError("recv", a121.ErrLinkTimeout)
	}
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return a121.NewLinkError("recv", err)
	}
	chunk := make([]byte, socketChunkSize)
	n, err := l.conn.Read(chunk)
	if n > 0 {
		l.buf.Write(chunk[:n])
		return nil
	}
	if err != nil {
		return a121.NewLinkError("recv", wrapDeadline(err))
	}
	return nil
}

// wrapDeadline folds OS-level deadline errors into ErrLinkTimeout so callers
// can test with errors.Is.
func wrapDeadline(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", a121.ErrLinkTimeout, err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", a121.ErrLinkTimeout, err)
	}
	return err
}
