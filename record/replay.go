package record

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/acconeer/exptool-go/a121"
	"github.com/acconeer/exptool-go/internal/logging"
	"github.com/acconeer/exptool-go/internal/timeutil"
)

type replayState int

const (
	replayDisconnected replayState = iota
	replayConnected
	replaySessionSetup
	replaySessionStarted
)

var replayStateNames = map[replayState]string{
	replayDisconnected:   "disconnected",
	replayConnected:      "connected",
	replaySessionSetup:   "session_setup",
	replaySessionStarted: "session_started",
}

func (s replayState) String() string { return replayStateNames[s] }

// ReplayClient exposes a Record through the same operation set as the live
// client, so downstream consumers are agnostic to whether data is live or
// replayed. SetupSession advances an internal session-index iterator (or
// holds it in place when cycling); GetNext streams the recorded results,
// optionally paced so the wall-clock gap since the first replayed result
// matches the recorded tick-time gap.
type ReplayClient struct {
	rec   *Record
	log   *slog.Logger
	clock timeutil.Clock

	realtime bool
	cycle    bool

	st          replayState
	nextSession int
	sessionIdx  int
	metadata    *a121.Extended[a121.Metadata]
	iter        *ResultIterator
	recorder    a121.Recorder

	haveFirst     bool
	firstTickTime float64
	startWall     time.Time
}

var _ a121.Client = (*ReplayClient)(nil)

// ReplayOption configures a ReplayClient at construction.
type ReplayOption func(*ReplayClient)

// WithRealtime enables or disables wall-clock-faithful pacing. Pacing is on
// by default.
func WithRealtime(on bool) ReplayOption {
	return func(c *ReplayClient) { c.realtime = on }
}

// WithCycle pins the session iterator so every SetupSession replays the
// same session instead of advancing.
func WithCycle() ReplayOption {
	return func(c *ReplayClient) { c.cycle = true }
}

// WithReplayLogger injects a logger; the default discards everything.
func WithReplayLogger(l *slog.Logger) ReplayOption {
	return func(c *ReplayClient) { c.log = l }
}

// WithClock overrides the clock used for pacing; tests use a mock.
func WithClock(clock timeutil.Clock) ReplayOption {
	return func(c *ReplayClient) { c.clock = clock }
}

// NewReplayClient returns a replay client over rec. The caller keeps
// ownership of rec and closes it after disconnecting.
func NewReplayClient(rec *Record, opts ...ReplayOption) *ReplayClient {
	c := &ReplayClient{
		rec:      rec,
		log:      logging.Nop(),
		clock:    timeutil.RealClock{},
		realtime: true,
		st:       replayDisconnected,
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

func (c *ReplayClient) requireState(op string, want ...replayState) error {
	for _, w := range want {
		if c.st == w {
			return nil
		}
	}
	wantStr := replayStateNames[want[0]]
	for _, w := range want[1:] {
		wantStr += " or " + replayStateNames[w]
	}
	return &a121.ClientStateError{Op: op, State: c.st.String(), Want: wantStr}
}

// Connect is a no-op beyond the state transition; the record is already
// open.
func (c *ReplayClient) Connect() error {
	if err := c.requireState("connect", replayDisconnected); err != nil {
		return err
	}
	c.st = replayConnected
	return nil
}

// SetupSession hands out the next recorded session. The passed config is
// ignored: the recorded session config governs replay. Once the iterator is
// spent (and cycling is off) it fails with a ReplayExhaustedError.
func (c *ReplayClient) SetupSession(_ *a121.SessionConfig) (*a121.Extended[a121.Metadata], error) {
	if err := c.requireState("setup_session", replayConnected, replaySessionSetup); err != nil {
		return nil, err
	}
	idx := c.nextSession
	if idx >= c.rec.NumSessions() {
		return nil, &a121.ReplayExhaustedError{Sessions: c.rec.NumSessions()}
	}
	if !c.cycle {
		c.nextSession++
	}

	md, err := c.rec.Metadata(idx)
	if err != nil {
		return nil, err
	}
	if c.iter != nil {
		c.iter.Close()
	}
	iter, err := c.rec.Results(idx)
	if err != nil {
		return nil, err
	}

	c.sessionIdx = idx
	c.metadata = md
	c.iter = iter
	c.haveFirst = false
	c.st = replaySessionSetup
	return md, nil
}

// StartSession begins replaying the prepared session. A non-nil recorder is
// started with the recorded session context, allowing re-recording.
func (c *ReplayClient) StartSession(recorder a121.Recorder) error {
	if err := c.requireState("start_session", replaySessionSetup); err != nil {
		return err
	}
	if recorder != nil {
		config, err := c.rec.SessionConfig(c.sessionIdx)
		if err != nil {
			return err
		}
		if err := recorder.Start(c.rec.ClientInfo(), c.metadata, c.rec.ServerInfo(), config); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
	}
	c.recorder = recorder
	c.st = replaySessionStarted
	return nil
}

// GetNext returns the next recorded result set. With realtime pacing it
// sleeps until the wall-clock gap since the first replayed result matches
// the recorded tick-time gap; if replay is behind schedule it never sleeps
// and proceeds immediately.
func (c *ReplayClient) GetNext() (*a121.Extended[a121.Result], error) {
	if err := c.requireState("get_next", replaySessionStarted); err != nil {
		return nil, err
	}

	results, err := c.iter.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("replay session %d results: %w", c.sessionIdx, err)
		}
		return nil, err
	}

	first := results.Groups()[0][0].Value
	if !c.haveFirst {
		c.haveFirst = true
		c.firstTickTime = first.TickTime()
		c.startWall = c.clock.Now()
	} else if c.realtime {
		target := time.Duration((first.TickTime() - c.firstTickTime) * float64(time.Second))
		elapsed := c.clock.Since(c.startWall)
		if target > elapsed {
			c.clock.Sleep(target - elapsed)
		}
	}

	if c.recorder != nil {
		if err := c.recorder.Sample(results); err != nil {
			return nil, fmt.Errorf("record sample: %w", err)
		}
	}
	return results, nil
}

// StopSession ends the replayed session. Stopping before the result
// iterator is exhausted is not an error, but it is logged as a warning.
func (c *ReplayClient) StopSession() error {
	if err := c.requireState("stop_session", replaySessionStarted); err != nil {
		return err
	}
	if !c.iter.Exhausted() {
		c.log.Warn("stopping replay before all recorded results were consumed",
			"session_index", c.sessionIdx)
	}
	c.iter.Close()
	if c.recorder != nil {
		if err := c.recorder.Stop(); err != nil {
			c.recorder = nil
			c.st = replaySessionSetup
			return fmt.Errorf("stop recorder: %w", err)
		}
		c.recorder = nil
	}
	c.st = replaySessionSetup
	return nil
}

// Disconnect releases the replay state from any state. The underlying
// Record stays open; it belongs to the caller.
func (c *ReplayClient) Disconnect() error {
	if c.st == replaySessionStarted {
		if err := c.StopSession(); err != nil {
			c.log.Warn("stop session during disconnect", "error", err)
		}
	}
	if c.iter != nil {
		c.iter.Close()
		c.iter = nil
	}
	c.metadata = nil
	c.recorder = nil
	c.st = replayDisconnected
	return nil
}

// ServerInfo returns the recorded server info.
func (c *ReplayClient) ServerInfo() (a121.ServerInfo, error) {
	if c.st == replayDisconnected {
		return a121.ServerInfo{}, &a121.ClientStateError{
			Op: "server_info", State: c.st.String(), Want: "connected"}
	}
	return c.rec.ServerInfo(), nil
}

// ClientInfo returns the recorded client connection info.
func (c *ReplayClient) ClientInfo() a121.ClientInfo { return c.rec.ClientInfo() }
