package a121

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorConfigConstructors(t *testing.T) {
	t.Parallel()

	t.Run("implicit single subsweep", func(t *testing.T) {
		c := NewSensorConfig()
		assert.Equal(t, 1, c.NumSubsweeps())
		assert.Equal(t, DefaultSubsweepConfig(), c.Subsweeps[0])
		assert.NoError(t, c.Validate())
	})

	t.Run("n default subsweeps", func(t *testing.T) {
		c, err := NewSensorConfigWithNumSubsweeps(3)
		require.NoError(t, err)
		assert.Equal(t, 3, c.NumSubsweeps())
		for _, s := range c.Subsweeps {
			assert.Equal(t, DefaultSubsweepConfig(), s)
		}

		_, err = NewSensorConfigWithNumSubsweeps(0)
		assert.Error(t, err)
	})

	t.Run("explicit subsweep list", func(t *testing.T) {
		ss := []SubsweepConfig{
			{StartPoint: 0, NumPoints: 10, StepLength: 1, Profile: Profile1, HWAAS: 4, ReceiverGain: 10, EnableTX: true, PRF: PRF19_5MHz},
			{StartPoint: 100, NumPoints: 20, StepLength: 2, Profile: Profile5, HWAAS: 16, ReceiverGain: 5, EnableTX: true, PRF: PRF6_5MHz},
		}
		c, err := NewSensorConfigFromSubsweeps(ss)
		require.NoError(t, err)
		if diff := cmp.Diff(ss, c.Subsweeps); diff != "" {
			t.Errorf("subsweeps mismatch (-want +got):\n%s", diff)
		}

		// list must be copied, not aliased
		ss[0].NumPoints = 999
		assert.Equal(t, 10, c.Subsweeps[0].NumPoints)

		_, err = NewSensorConfigFromSubsweeps(nil)
		assert.Error(t, err)
	})
}

func TestSubsweepConfigValidate(t *testing.T) {
	t.Parallel()

	mod := func(fn func(*SubsweepConfig)) SubsweepConfig {
		c := DefaultSubsweepConfig()
		fn(&c)
		return c
	}

	tests := []struct {
		name    string
		config  SubsweepConfig
		wantErr string
	}{
		{"default is valid", DefaultSubsweepConfig(), ""},
		{"hwaas low", mod(func(c *SubsweepConfig) { c.HWAAS = 0 }), "hwaas"},
		{"hwaas high", mod(func(c *SubsweepConfig) { c.HWAAS = 512 }), "hwaas"},
		{"hwaas max ok", mod(func(c *SubsweepConfig) { c.HWAAS = 511 }), ""},
		{"gain negative", mod(func(c *SubsweepConfig) { c.ReceiverGain = -1 }), "receiver_gain"},
		{"gain high", mod(func(c *SubsweepConfig) { c.ReceiverGain = 24 }), "receiver_gain"},
		{"no points", mod(func(c *SubsweepConfig) { c.NumPoints = 0 }), "num_points"},
		{"zero step", mod(func(c *SubsweepConfig) { c.StepLength = 0 }), "step_length"},
		{"loopback with profile 2", mod(func(c *SubsweepConfig) {
			c.EnableLoopback = true
			c.Profile = Profile2
		}), "loopback"},
		{"loopback with profile 1", mod(func(c *SubsweepConfig) {
			c.EnableLoopback = true
			c.Profile = Profile1
		}), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSensorConfigValidateContinuousSweepMode(t *testing.T) {
	t.Parallel()

	base := func() SensorConfig {
		c := NewSensorConfig()
		c.ContinuousSweepMode = true
		c.SweepRate = 1000
		c.InterFrameIdleState = IdleStateReady
		c.InterSweepIdleState = IdleStateReady
		return c
	}

	c := base()
	assert.NoError(t, c.Validate())

	c = base()
	c.SweepRate = 0
	assert.ErrorContains(t, c.Validate(), "sweep_rate")

	c = base()
	c.FrameRate = 10
	assert.ErrorContains(t, c.Validate(), "frame_rate")

	c = base()
	c.InterFrameIdleState = IdleStateDeepSleep
	assert.ErrorContains(t, c.Validate(), "idle state")
}

func TestSessionConfigAccessors(t *testing.T) {
	t.Parallel()

	single := NewSessionConfig(NewSensorConfig())
	assert.False(t, single.Extended())
	id, err := single.SensorID()
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	_, err = single.SensorConfig()
	assert.NoError(t, err)

	multi, err := NewSessionConfigFromMap(map[int]SensorConfig{
		2: NewSensorConfig(),
		1: NewSensorConfig(),
	})
	require.NoError(t, err)
	assert.True(t, multi.Extended())
	assert.Equal(t, []int{1, 2}, multi.Groups().SensorIDs())
	_, err = multi.SensorID()
	assert.Error(t, err)
	_, err = multi.SensorConfig()
	assert.Error(t, err)
}

func TestSessionConfigUpdateRate(t *testing.T) {
	t.Parallel()

	s := NewSessionConfig(NewSensorConfig())
	_, locked := s.UpdateRate()
	assert.False(t, locked)

	s.SetUpdateRate(25)
	rate, locked := s.UpdateRate()
	assert.True(t, locked)
	assert.Equal(t, 25.0, rate)

	s.SetUpdateRate(0)
	_, locked = s.UpdateRate()
	assert.False(t, locked)

	s.SetUpdateRate(-1)
	assert.Error(t, s.Validate())
}

func TestSessionConfigJSONRoundTrip(t *testing.T) {
	t.Parallel()

	x, err := NewExtended(
		Group[SensorConfig]{
			{SensorID: 3, Value: NewSensorConfig()},
			{SensorID: 1, Value: NewSensorConfig()},
		},
		Group[SensorConfig]{
			{SensorID: 2, Value: NewSensorConfig()},
		},
	)
	require.NoError(t, err)
	orig, err := NewSessionConfigFromExtended(x)
	require.NoError(t, err)
	orig.SetUpdateRate(12.5)

	b, err := json.Marshal(orig)
	require.NoError(t, err)

	var got SessionConfig
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, []int{3, 1, 2}, got.Groups().SensorIDs())
	rate, locked := got.UpdateRate()
	assert.True(t, locked)
	assert.Equal(t, 12.5, rate)
	if diff := cmp.Diff(orig.Groups().Groups(), got.Groups().Groups()); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumWireNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"profile", Profile3, `"profile_3"`},
		{"prf", PRF15_6MHz, `"15_6_MHz"`},
		{"prf slow", PRF5_2MHz, `"5_2_MHz"`},
		{"idle state", IdleStateDeepSleep, `"deep_sleep"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}

	var p Profile
	assert.Error(t, json.Unmarshal([]byte(`"profile_9"`), &p))
	var f PRF
	require.NoError(t, json.Unmarshal([]byte(`"13_0_MHz"`), &f))
	assert.Equal(t, PRF13_0MHz, f)
}
