package a121

import (
	"encoding/json"
	"errors"
	"fmt"
)

// IdleState selects how much of the sensor is powered down between sweeps or
// frames. Deeper states save power but take longer to wake from.
type IdleState int

const (
	IdleStateDeepSleep IdleState = iota
	IdleStateSleep
	IdleStateReady
)

var idleStateNames = map[IdleState]string{
	IdleStateDeepSleep: "deep_sleep",
	IdleStateSleep:     "sleep",
	IdleStateReady:     "ready",
}

func (s IdleState) String() string {
	if n, ok := idleStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("IdleState(%d)", int(s))
}

func (s IdleState) MarshalJSON() ([]byte, error) {
	n, ok := idleStateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown idle state %d", int(s))
	}
	return json.Marshal(n)
}

func (s *IdleState) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for k, v := range idleStateNames {
		if v == n {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown idle state %q", n)
}

// Profile selects the pulse length/duration trade-off. Longer profiles give
// more SNR per time unit at the cost of close-in range.
type Profile int

const (
	Profile1 Profile = iota + 1
	Profile2
	Profile3
	Profile4
	Profile5
)

func (p Profile) String() string { return fmt.Sprintf("profile_%d", int(p)) }

func (p Profile) MarshalJSON() ([]byte, error) {
	if p < Profile1 || p > Profile5 {
		return nil, fmt.Errorf("unknown profile %d", int(p))
	}
	return json.Marshal(p.String())
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for c := Profile1; c <= Profile5; c++ {
		if c.String() == n {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown profile %q", n)
}

// PRF is the pulse repetition frequency. It bounds the maximum measurable
// distance and the maximum unambiguous range.
type PRF int

const (
	PRF19_5MHz PRF = iota
	PRF15_6MHz
	PRF13_0MHz
	PRF8_7MHz
	PRF6_5MHz
	PRF5_2MHz
)

var prfNames = map[PRF]string{
	PRF19_5MHz: "19_5_MHz",
	PRF15_6MHz: "15_6_MHz",
	PRF13_0MHz: "13_0_MHz",
	PRF8_7MHz:  "8_7_MHz",
	PRF6_5MHz:  "6_5_MHz",
	PRF5_2MHz:  "5_2_MHz",
}

func (p PRF) String() string {
	if n, ok := prfNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PRF(%d)", int(p))
}

func (p PRF) MarshalJSON() ([]byte, error) {
	n, ok := prfNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown PRF %d", int(p))
	}
	return json.Marshal(n)
}

func (p *PRF) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for k, v := range prfNames {
		if v == n {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown PRF %q", n)
}

// SubsweepConfig describes one contiguous range segment of a sweep. The JSON
// field names are the wire names the exploration server expects.
type SubsweepConfig struct {
	StartPoint       int     `json:"start_point"`
	NumPoints        int     `json:"num_points"`
	StepLength       int     `json:"step_length"`
	Profile          Profile `json:"profile"`
	HWAAS            int     `json:"hwaas"`
	ReceiverGain     int     `json:"receiver_gain"`
	EnableTX         bool    `json:"enable_tx"`
	EnableLoopback   bool    `json:"enable_loopback"`
	PhaseEnhancement bool    `json:"phase_enhancement"`
	PRF              PRF     `json:"prf"`
}

// DefaultSubsweepConfig returns the sensor's default subsweep parameters.
func DefaultSubsweepConfig() SubsweepConfig {
	return SubsweepConfig{
		StartPoint:   80,
		NumPoints:    160,
		StepLength:   1,
		Profile:      Profile3,
		HWAAS:        8,
		ReceiverGain: 16,
		EnableTX:     true,
		PRF:          PRF15_6MHz,
	}
}

// Validate checks the subsweep parameters against the sensor limits.
func (c SubsweepConfig) Validate() error {
	if c.NumPoints <= 0 {
		return fmt.Errorf("num_points must be positive, got %d", c.NumPoints)
	}
	if c.StepLength <= 0 {
		return fmt.Errorf("step_length must be positive, got %d", c.StepLength)
	}
	if c.HWAAS < 1 || c.HWAAS > 511 {
		return fmt.Errorf("hwaas must be in [1, 511], got %d", c.HWAAS)
	}
	if c.ReceiverGain < 0 || c.ReceiverGain > 23 {
		return fmt.Errorf("receiver_gain must be in [0, 23], got %d", c.ReceiverGain)
	}
	if c.Profile < Profile1 || c.Profile > Profile5 {
		return fmt.Errorf("invalid profile %d", int(c.Profile))
	}
	if c.EnableLoopback && c.Profile == Profile2 {
		return errors.New("loopback is not supported with profile 2")
	}
	return nil
}

// SensorConfig is the per-sensor measurement configuration: one or more
// subsweeps plus frame-level parameters. A zero SweepRate or FrameRate means
// unlocked; the wire sentinel for unlocked is 0.
//
// The three construction modes (implicit single subsweep, N default
// subsweeps, explicit subsweep list) are mutually exclusive and expressed as
// separate constructors.
type SensorConfig struct {
	Subsweeps           []SubsweepConfig `json:"subsweeps"`
	SweepsPerFrame      int              `json:"sweeps_per_frame"`
	SweepRate           float64          `json:"sweep_rate"`
	FrameRate           float64          `json:"frame_rate"`
	ContinuousSweepMode bool             `json:"continuous_sweep_mode"`
	DoubleBuffering     bool             `json:"double_buffering"`
	InterFrameIdleState IdleState        `json:"inter_frame_idle_state"`
	InterSweepIdleState IdleState        `json:"inter_sweep_idle_state"`
}

// NewSensorConfig returns a config with a single implicit default subsweep.
func NewSensorConfig() SensorConfig {
	return SensorConfig{
		Subsweeps:           []SubsweepConfig{DefaultSubsweepConfig()},
		SweepsPerFrame:      1,
		InterFrameIdleState: IdleStateDeepSleep,
		InterSweepIdleState: IdleStateReady,
	}
}

// NewSensorConfigWithNumSubsweeps returns a config with n identical default
// subsweeps.
func NewSensorConfigWithNumSubsweeps(n int) (SensorConfig, error) {
	if n < 1 {
		return SensorConfig{}, fmt.Errorf("subsweep count must be at least 1, got %d", n)
	}
	c := NewSensorConfig()
	c.Subsweeps = make([]SubsweepConfig, n)
	for i := range c.Subsweeps {
		c.Subsweeps[i] = DefaultSubsweepConfig()
	}
	return c, nil
}

// NewSensorConfigFromSubsweeps returns a config with an explicit subsweep
// list.
func NewSensorConfigFromSubsweeps(subsweeps []SubsweepConfig) (SensorConfig, error) {
	if len(subsweeps) == 0 {
		return SensorConfig{}, errors.New("explicit subsweep list must not be empty")
	}
	c := NewSensorConfig()
	c.Subsweeps = append([]SubsweepConfig(nil), subsweeps...)
	return c, nil
}

// NumSubsweeps returns the number of subsweeps.
func (c SensorConfig) NumSubsweeps() int { return len(c.Subsweeps) }

// Validate checks the config against the sensor limits without touching the
// hardware. Setup refuses to send an invalid config.
func (c SensorConfig) Validate() error {
	if len(c.Subsweeps) == 0 {
		return errors.New("sensor config has no subsweeps")
	}
	if c.SweepsPerFrame < 1 {
		return fmt.Errorf("sweeps_per_frame must be at least 1, got %d", c.SweepsPerFrame)
	}
	if c.SweepRate < 0 {
		return fmt.Errorf("sweep_rate must not be negative, got %v", c.SweepRate)
	}
	if c.FrameRate < 0 {
		return fmt.Errorf("frame_rate must not be negative, got %v", c.FrameRate)
	}
	if c.ContinuousSweepMode {
		if c.SweepRate == 0 {
			return errors.New("continuous sweep mode requires a locked sweep_rate")
		}
		if c.FrameRate != 0 {
			return errors.New("continuous sweep mode cannot be combined with a locked frame_rate")
		}
		if c.InterFrameIdleState != c.InterSweepIdleState {
			return errors.New("continuous sweep mode requires equal inter-frame and inter-sweep idle states")
		}
	}
	for i, s := range c.Subsweeps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("subsweep %d: %w", i, err)
		}
	}
	return nil
}

// SessionConfig wraps the per-sensor configs for one session. A session is
// extended when it spans more than one sensor entry across all groups; the
// convenience single-sensor accessors fail on extended sessions.
type SessionConfig struct {
	groups     *Extended[SensorConfig]
	updateRate float64
}

// NewSessionConfig builds a non-extended session for a single sensor with
// id 1.
func NewSessionConfig(cfg SensorConfig) *SessionConfig {
	x, err := ExtendedFromValue(1, cfg)
	if err != nil {
		// sensor id 1 with one entry cannot violate the invariants
		panic(err)
	}
	return &SessionConfig{groups: x}
}

// NewSessionConfigFromMap builds a single-group session from a sensor-id
// map, normalised to ascending sensor-id order.
func NewSessionConfigFromMap(m map[int]SensorConfig) (*SessionConfig, error) {
	x, err := ExtendedFromMap(m)
	if err != nil {
		return nil, err
	}
	return &SessionConfig{groups: x}, nil
}

// NewSessionConfigFromExtended builds a session from an explicit extended
// structure, preserving its group and entry order.
func NewSessionConfigFromExtended(x *Extended[SensorConfig]) (*SessionConfig, error) {
	if x == nil || x.NumGroups() == 0 {
		return nil, errors.New("session config needs at least one group")
	}
	return &SessionConfig{groups: x}, nil
}

// SetUpdateRate locks the session-wide update rate. Zero unlocks it.
func (s *SessionConfig) SetUpdateRate(rate float64) { s.updateRate = rate }

// UpdateRate returns the session-wide update rate and whether it is locked.
func (s *SessionConfig) UpdateRate() (float64, bool) {
	return s.updateRate, s.updateRate != 0
}

// Extended reports whether the session spans more than one sensor entry.
func (s *SessionConfig) Extended() bool { return s.groups.NumEntries() > 1 }

// Groups returns the underlying extended structure of sensor configs.
func (s *SessionConfig) Groups() *Extended[SensorConfig] { return s.groups }

// SensorID returns the sole sensor id of a non-extended session.
func (s *SessionConfig) SensorID() (int, error) {
	if s.Extended() {
		return 0, errors.New("session config is extended, use Groups")
	}
	return s.groups.Groups()[0][0].SensorID, nil
}

// SensorConfig returns the sole sensor config of a non-extended session.
func (s *SessionConfig) SensorConfig() (SensorConfig, error) {
	if s.Extended() {
		return SensorConfig{}, errors.New("session config is extended, use Groups")
	}
	return s.groups.Sole()
}

// Validate validates every contained sensor config plus the session-wide
// parameters.
func (s *SessionConfig) Validate() error {
	if s.updateRate < 0 {
		return fmt.Errorf("update_rate must not be negative, got %v", s.updateRate)
	}
	return s.groups.Visit(func(group, sensorID int, cfg SensorConfig) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("group %d sensor %d: %w", group, sensorID, err)
		}
		return nil
	})
}

// sessionConfigWire is the serialized shape shared by the setup command and
// the container file.
type sessionConfigWire struct {
	Groups     [][]sessionEntryWire `json:"groups"`
	UpdateRate float64              `json:"update_rate"`
}

type sessionEntryWire struct {
	SensorID int          `json:"sensor_id"`
	Config   SensorConfig `json:"config"`
}

// MarshalJSON serializes the session config in wire order: groups preserve
// the extended structure's group/sensor order and unlocked rates serialize
// as the 0 sentinel.
func (s *SessionConfig) MarshalJSON() ([]byte, error) {
	w := sessionConfigWire{UpdateRate: s.updateRate}
	for _, g := range s.groups.Groups() {
		wg := make([]sessionEntryWire, len(g))
		for i, e := range g {
			wg[i] = sessionEntryWire{SensorID: e.SensorID, Config: e.Value}
		}
		w.Groups = append(w.Groups, wg)
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a session config serialized by MarshalJSON.
func (s *SessionConfig) UnmarshalJSON(b []byte) error {
	var w sessionConfigWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	groups := make([]Group[SensorConfig], len(w.Groups))
	for gi, wg := range w.Groups {
		g := make(Group[SensorConfig], len(wg))
		for i, e := range wg {
			g[i] = Entry[SensorConfig]{SensorID: e.SensorID, Value: e.Config}
		}
		groups[gi] = g
	}
	x, err := NewExtended(groups...)
	if err != nil {
		return err
	}
	s.groups = x
	s.updateRate = w.UpdateRate
	return nil
}
