package link

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/acconeer/exptool-go/a121"
)

// PortOptions describes the serial connection parameters used when opening a
// real serial port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	if parity == "" {
		parity = "N"
	}
	switch parity {
	case "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure
// required by go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.StopBits(opts.StopBits),
	}
	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

const (
	serialChunkSize   = 4096
	serialDrainCap    = 256
	serialPollTimeout = 100 * time.Millisecond
	serialJoinTimeout = 2 * time.Second
)

// SerialLink is a Link over a serial port. A dedicated reader goroutine owns
// the raw port handle exclusively and drains it continuously so short
// OS-level reads are coalesced; the foreground caller receives chunks
// through a bounded channel. On disconnect the foreground signals the
// reader, closes the port to unblock it, and joins with a bounded wait.
type SerialLink struct {
	device  string
	opts    PortOptions
	timeout time.Duration

	port   serial.Port
	chunks chan []byte
	errs   chan error
	done   chan struct{}
	exited chan struct{}

	buf bytes.Buffer
}

// NewSerialLink returns an unconnected serial link for the given device
// path.
func NewSerialLink(device string, opts PortOptions) *SerialLink {
	return &SerialLink{device: device, opts: opts, timeout: DefaultTimeout}
}

func (l *SerialLink) Timeout() time.Duration     { return l.timeout }
func (l *SerialLink) SetTimeout(d time.Duration) { l.timeout = d }

// Device returns the device path the link opens.
func (l *SerialLink) Device() string { return l.device }

// Baudrate returns the normalized baud rate.
func (l *SerialLink) Baudrate() int {
	opts, err := l.opts.Normalize()
	if err != nil {
		return 0
	}
	return opts.BaudRate
}

// Connect opens the port and starts the reader goroutine.
func (l *SerialLink) Connect() error {
	if l.port != nil {
		return a121.NewLinkError("connect", errors.New("already connected"))
	}
	mode, err := l.opts.SerialMode()
	if err != nil {
		return a121.NewLinkError("connect", err)
	}
	port, err := serial.Open(l.device, mode)
	if err != nil {
		return a121.NewLinkError("connect", err)
	}
	// Bounded read timeout lets the reader notice shutdown without data.
	if err := port.SetReadTimeout(serialPollTimeout); err != nil {
		port.Close()
		return a121.NewLinkError("connect", err)
	}

	l.port = port
	l.chunks = make(chan []byte, serialDrainCap)
	l.errs = make(chan error, 1)
	l.done = make(chan struct{})
	l.exited = make(chan struct{})
	l.buf.Reset()

	go l.drain(port, l.chunks, l.errs, l.done, l.exited)
	return nil
}

// drain runs on the reader goroutine. It owns the port handle exclusively
// until it exits.
func (l *SerialLink) drain(port serial.Port, chunks chan<- []byte, errs chan<- error, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	defer close(chunks)
	buf := make([]byte, serialChunkSize)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
	}
}

// Disconnect signals the reader, closes the port to unblock it, and waits a
// bounded time for the goroutine to exit. Safe to call when not connected.
func (l *SerialLink) Disconnect() error {
	if l.port == nil {
		return nil
	}
	close(l.done)
	err := l.port.Close()
	select {
	case <-l.exited:
	case <-time.After(serialJoinTimeout):
		// reader is wedged in the driver; abandon it
	}
	l.port = nil
	l.buf.Reset()
	if err != nil {
		return a121.NewLinkError("disconnect", err)
	}
	return nil
}

// Send writes the whole buffer or fails.
func (l *SerialLink) Send(data []byte) error {
	if l.port == nil {
		return a121.NewLinkError("send", errors.New("not connected"))
	}
	n, err := l.port.Write(data)
	if err != nil {
		return a121.NewLinkError("send", err)
	}
	if n != len(data) {
		return a121.NewLinkError("send", fmt.Errorf("short write: %d of %d bytes", n, len(data)))
	}
	return nil
}

// Recv blocks until exactly n bytes are available.
func (l *SerialLink) Recv(n int) ([]byte, error) {
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

// RecvUntil blocks until delim appears and returns the consumed bytes
// including the delimiter.
func (l *SerialLink) RecvUntil(delim []byte) ([]byte, error) {
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

// fill waits for the next chunk from the reader goroutine, bounded by the
// operation deadline.
func (l *SerialLink) fill(deadline time.Time) error {
	if l.port == nil {
		return a121.NewLinkError("recv", errors.New("not connected"))
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		return a121.NewLinkError("recv", a121.ErrLinkTimeout)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case chunk, ok := <-l.chunks:
		if !ok {
			select {
			case err := <-l.errs:
				return a121.NewLinkError("recv", err)
			default:
				return a121.NewLinkError("recv", errors.New("port closed"))
			}
		}
		l.buf.Write(chunk)
		return nil
	case <-timer.C:
		return a121.NewLinkError("recv", a121.ErrLinkTimeout)
	}
}
