// Package link provides the byte-oriented transports the exploration client
// speaks over: a TCP socket link and a serial link with a background reader,
// plus a scripted in-memory link for tests and a registry of detected serial
// modules.
package link

import "time"

// DefaultTimeout is the per-operation deadline applied when none is
// configured.
const DefaultTimeout = 3 * time.Second

// Link is a blocking byte transport. Recv returns exactly n bytes or fails;
// RecvUntil accumulates until the delimiter appears and returns everything
// consumed including the delimiter. Each operation enforces the configured
// timeout independently. Disconnect is safe to call in any state and must
// unblock an in-flight Recv with an error rather than hang.
type Link interface {
	Connect() error
	Disconnect() error
	Send(data []byte) error
	Recv(n int) ([]byte, error)
	RecvUntil(delim []byte) ([]byte, error)
	Timeout() time.Duration
	SetTimeout(d time.Duration)
}
