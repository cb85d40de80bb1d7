// Package client implements the live exploration client: the session
// state machine over a transport link and the wire codec. The transport
// variant (serial, socket or mock) is resolved once at construction; after
// that every operation goes through the same Link interface.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acconeer/exptool-go/a121"
	"github.com/acconeer/exptool-go/internal/link"
	"github.com/acconeer/exptool-go/internal/logging"
	"github.com/acconeer/exptool-go/internal/protocol"
)

type state int

const (
	stateDisconnected state = iota
	stateConnected
	stateSessionSetup
	stateSessionStarted
)

var stateNames = map[state]string{
	stateDisconnected:   "disconnected",
	stateConnected:      "connected",
	stateSessionSetup:   "session_setup",
	stateSessionStarted: "session_started",
}

func (s state) String() string { return stateNames[s] }

// Client is the live a121.Client implementation. It is the single point of
// truth for what state the hardware session is in. Operations are blocking
// and must not be invoked concurrently.
type Client struct {
	link link.Link
	log  *slog.Logger
	info a121.ClientInfo

	st         state
	serverInfo a121.ServerInfo
	sensors    []int
	config     *a121.SessionConfig
	metadata   *a121.Extended[a121.Metadata]
	recorder   a121.Recorder
}

var _ a121.Client = (*Client)(nil)

// Option configures a Client at construction.
type Option func(*clientOptions)

type clientOptions struct {
	log      *slog.Logger
	timeout  time.Duration
	port     link.PortOptions
	registry *link.Registry
}

// WithLogger injects a logger; the default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// WithTimeout overrides the per-link-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithPortOptions overrides the serial parameters used by NewSerial.
func WithPortOptions(p link.PortOptions) Option {
	return func(o *clientOptions) { o.port = p }
}

// WithRegistry supplies the port registry NewSerial consults when
// auto-detecting a module. The default is a fresh registry probing the OS.
func WithRegistry(r *link.Registry) Option {
	return func(o *clientOptions) { o.registry = r }
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{log: logging.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func newClient(l link.Link, info a121.ClientInfo, o clientOptions) *Client {
	if o.timeout > 0 {
		l.SetTimeout(o.timeout)
	}
	return &Client{
		link: l,
		log:  o.log.With("transport", string(info.Transport)),
		info: info,
		st:   stateDisconnected,
	}
}

// NewSocket returns a client over TCP to the exploration server at host on
// the standard port. The client starts disconnected.
func NewSocket(host string, opts ...Option) *Client {
	o := buildOptions(opts)
	l := link.NewSocketLink(host, 0)
	info := a121.ClientInfo{
		Transport: a121.TransportSocket,
		Address:   host,
		TCPPort:   link.DefaultTCPPort,
	}
	return newClient(l, info, o)
}

// NewSerial returns a client over a serial port. An empty device path
// auto-detects a connected sensor module through the port registry.
func NewSerial(device string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	if device == "" {
		reg := o.registry
		if reg == nil {
			reg = link.NewRegistry()
		}
		ports, err := reg.FindSensorPorts()
		if err != nil {
			return nil, fmt.Errorf("auto-detect serial module: %w", err)
		}
		if len(ports) == 0 {
			return nil, errors.New("no sensor module found on any serial port")
		}
		device = ports[0].Device
	}
	l := link.NewSerialLink(device, o.port)
	info := a121.ClientInfo{
		Transport:  a121.TransportSerial,
		SerialPort: device,
		Baudrate:   l.Baudrate(),
	}
	return newClient(l, info, o), nil
}

// NewMock returns a client over the given mock link, for tests and offline
// tooling.
func NewMock(l *link.MockLink, opts ...Option) *Client {
	o := buildOptions(opts)
	return newClient(l, a121.ClientInfo{Transport: a121.TransportMock}, o)
}

func (c *Client) requireState(op string, want ...state) error {
	for _, w := range want {
		if c.st == w {
			return nil
		}
	}
	wantStr := stateNames[want[0]]
	for _, w := range want[1:] {
		wantStr += " or " + stateNames[w]
	}
	return &a121.ClientStateError{Op: op, State: c.st.String(), Want: wantStr}
}

// roundTrip sends one encoded command and returns the newline-terminated
// response line.
func (c *Client) roundTrip(cmd []byte) ([]byte, error) {
	if err := c.link.Send(cmd); err != nil {
		return nil, err
	}
	return c.link.RecvUntil(protocol.Delimiter)
}

// Connect establishes the link and queries server and sensor information.
// Any failure tears the link back down and leaves the client disconnected.
func (c *Client) Connect() error {
	if err := c.requireState("connect", stateDisconnected); err != nil {
		return err
	}
	if err := c.link.Connect(); err != nil {
		return err
	}

	line, err := c.roundTrip(protocol.EncodeGetSystemInfo())
	if err == nil {
		c.serverInfo, err = protocol.DecodeSystemInfo(line)
	}
	if err == nil {
		line, err = c.roundTrip(protocol.EncodeGetSensorInfo())
	}
	if err == nil {
		c.sensors, err = protocol.DecodeSensorInfo(line)
	}
	if err != nil {
		_ = c.link.Disconnect()
		return err
	}

	c.st = stateConnected
	c.log.Debug("connected",
		"rss_version", c.serverInfo.RSSVersion,
		"sensors", c.sensors)
	return nil
}

// SetupSession negotiates a session and stores the resulting metadata and
// config as session context. Allowed from Connected and SessionSetup
// (re-setup replaces the previous session).
func (c *Client) SetupSession(config *a121.SessionConfig) (*a121.Extended[a121.Metadata], error) {
	if err := c.requireState("setup_session", stateConnected, stateSessionSetup); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("session config is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	cmd, err := protocol.EncodeSetup(config)
	if err != nil {
		return nil, err
	}
	line, err := c.roundTrip(cmd)
	if err != nil {
		return nil, err
	}
	md, err := protocol.DecodeSetupResponse(line, config)
	if err != nil {
		return nil, err
	}

	c.config = config
	c.metadata = md
	c.st = stateSessionSetup
	return md, nil
}

// StartSession starts streaming. A non-nil recorder is started with the full
// session context before the first frame is requested; if the recorder
// refuses, streaming is stopped again and the client stays in SessionSetup.
func (c *Client) StartSession(recorder a121.Recorder) error {
	if err := c.requireState("start_session", stateSessionSetup); err != nil {
		return err
	}

	line, err := c.roundTrip(protocol.EncodeStartStreaming())
	if err != nil {
		return err
	}
	if err := protocol.DecodeStartStreaming(line); err != nil {
		return err
	}

	if recorder != nil {
		if err := recorder.Start(c.info, c.metadata, c.serverInfo, c.config); err != nil {
			if line, stopErr := c.roundTrip(protocol.EncodeStopStreaming()); stopErr == nil {
				_ = protocol.DecodeStopStreaming(line)
			}
			return fmt.Errorf("start recorder: %w", err)
		}
	}

	c.recorder = recorder
	c.st = stateSessionStarted
	return nil
}

// GetNext blocks for the next frame of every configured sensor. The decode
// is two-phase: a text header with per-sensor result infos and a payload
// size, then exactly that many raw bytes sliced per the stored metadata.
// Each phase enforces the link timeout independently. A failure leaves the
// session started; the caller may retry or stop.
func (c *Client) GetNext() (*a121.Extended[a121.Result], error) {
	if err := c.requireState("get_next", stateSessionStarted); err != nil {
		return nil, err
	}

	line, err := c.roundTrip(protocol.EncodeGetNext())
	if err != nil {
		return nil, err
	}
	header, err := protocol.DecodeGetNextHeader(line)
	if err != nil {
		return nil, err
	}
	payload, err := c.link.Recv(header.PayloadSize)
	if err != nil {
		return nil, err
	}
	results, err := protocol.AssembleResults(header, payload, c.metadata, c.serverInfo.TicksPerSecond)
	if err != nil {
		return nil, err
	}

	if c.recorder != nil {
		if err := c.recorder.Sample(results); err != nil {
			return nil, fmt.Errorf("record sample: %w", err)
		}
	}
	return results, nil
}

// StopSession stops streaming and stops an attached recorder, returning the
// client to SessionSetup.
func (c *Client) StopSession() error {
	if err := c.requireState("stop_session", stateSessionStarted); err != nil {
		return err
	}

	line, err := c.roundTrip(protocol.EncodeStopStreaming())
	if err != nil {
		return err
	}
	if err := protocol.DecodeStopStreaming(line); err != nil {
		return err
	}

	if c.recorder != nil {
		if err := c.recorder.Stop(); err != nil {
			c.recorder = nil
			c.st = stateSessionSetup
			return fmt.Errorf("stop recorder: %w", err)
		}
		c.recorder = nil
	}
	c.st = stateSessionSetup
	return nil
}

// Disconnect releases the link from any state. A running session is stopped
// best-effort first; the client always ends up disconnected.
func (c *Client) Disconnect() error {
	if c.st == stateSessionStarted {
		if err := c.StopSession(); err != nil {
			c.log.Warn("stop session during disconnect", "error", err)
		}
	}
	err := c.link.Disconnect()
	c.st = stateDisconnected
	c.config = nil
	c.metadata = nil
	c.recorder = nil
	return err
}

// ServerInfo returns the server information captured at connect.
func (c *Client) ServerInfo() (a121.ServerInfo, error) {
	if c.st == stateDisconnected {
		return a121.ServerInfo{}, &a121.ClientStateError{
			Op: "server_info", State: c.st.String(), Want: "connected"}
	}
	return c.serverInfo, nil
}

// ClientInfo describes how this client reaches the server.
func (c *Client) ClientInfo() a121.ClientInfo { return c.info }

// ConnectedSensors returns the sensor ids reported at connect.
func (c *Client) ConnectedSensors() ([]int, error) {
	if c.st == stateDisconnected {
		return nil, &a121.ClientStateError{
			Op: "connected_sensors", State: c.st.String(), Want: "connected"}
	}
	return append([]int(nil), c.sensors...), nil
}
