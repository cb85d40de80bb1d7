package link

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/acconeer/exptool-go/a121"
)

// MockLink is an in-memory Link with scripted receive data and captured
// sends, usable from tests and from mock clients. A Responder, when set, is
// invoked for every Send so a scripted server can queue its reply.
type MockLink struct {
	mu        sync.Mutex
	connected bool
	timeout   time.Duration

	recvBuf bytes.Buffer
	sent    [][]byte

	// Responder is called with each sent payload; anything it returns is
	// appended to the receive buffer.
	Responder func(sent []byte) []byte

	// ConnectErr, when set, is returned by the next Connect call.
	ConnectErr error
	// SendErr, when set, is returned by the next Send call.
	SendErr error
}

// NewMockLink returns a disconnected mock link.
func NewMockLink() *MockLink {
	return &MockLink{timeout: DefaultTimeout}
}

func (l *MockLink) Timeout() time.Duration     { return l.timeout }
func (l *MockLink) SetTimeout(d time.Duration) { l.timeout = d }

func (l *MockLink) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ConnectErr != nil {
		err := l.ConnectErr
		l.ConnectErr = nil
		return a121.NewLinkError("connect", err)
	}
	l.connected = true
	return nil
}

func (l *MockLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	l.recvBuf.Reset()
	return nil
}

func (l *MockLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return a121.NewLinkError("send", errors.New("not connected"))
	}
	if l.SendErr != nil {
		err := l.SendErr
		l.SendErr = nil
		return a121.NewLinkError("send", err)
	}
	cp := append([]byte(nil), data...)
	l.sent = append(l.sent, cp)
	if l.Responder != nil {
		if reply := l.Responder(cp); len(reply) > 0 {
			l.recvBuf.Write(reply)
		}
	}
	return nil
}

func (l *MockLink) Recv(n int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, a121.NewLinkError("recv", errors.New("not connected"))
	}
	if l.recvBuf.Len() < n {
		return nil, a121.NewLinkError("recv", a121.ErrLinkTimeout)
	}
	out := make([]byte, n)
	l.recvBuf.Read(out)
	return out, nil
}

func (l *MockLink) RecvUntil(delim []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, a121.NewLinkError("recv_until", errors.New("not connected"))
	}
	i := bytes.Index(l.recvBuf.Bytes(), delim)
	if i < 0 {
		return nil, a121.NewLinkError("recv_until", a121.ErrLinkTimeout)
	}
	out := make([]byte, i+len(delim))
	l.recvBuf.Read(out)
	return out, nil
}

// Enqueue appends data to the receive buffer.
func (l *MockLink) Enqueue(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recvBuf.Write(data)
}

// Sent returns all payloads written to the link, in order.
func (l *MockLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent...)
}
