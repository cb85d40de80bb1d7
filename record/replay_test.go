package record

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acconeer/exptool-go/a121"
	"github.com/acconeer/exptool-go/internal/timeutil"
)

// writeReplaySource records numSessions sessions of numRows frames each,
// ticking at 100 ticks per frame (0.1 s at 1000 ticks per second).
func writeReplaySource(t *testing.T, numSessions, numRows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	rec, err := NewRecorder(path, WithKeepOpen())
	require.NoError(t, err)
	defer rec.Close()

	tick := int64(1000)
	for s := 0; s < numSessions; s++ {
		sc, md := testSessionContext(t, 1)
		require.NoError(t, rec.Start(testClientInfo, md, testServerInfo, sc))
		for i := 0; i < numRows; i++ {
			require.NoError(t, rec.Sample(testResults(t, md, tick)))
			tick += 100
		}
		require.NoError(t, rec.Stop())
	}
	return path
}

func TestReplayLifecycle(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 3))
	require.NoError(t, err)
	defer r.Close()

	c := NewReplayClient(r, WithRealtime(false))
	require.NoError(t, c.Connect())

	info, err := c.ServerInfo()
	require.NoError(t, err)
	assert.Equal(t, testServerInfo, info)
	assert.Equal(t, testClientInfo, c.ClientInfo())

	md, err := c.SetupSession(nil)
	require.NoError(t, err)
	recorded, err := r.Metadata(0)
	require.NoError(t, err)
	assert.True(t, a121.SameShape(md, recorded))

	require.NoError(t, c.StartSession(nil))
	for i := 0; i < 3; i++ {
		results, err := c.GetNext()
		require.NoError(t, err)
		res, err := results.Sole()
		require.NoError(t, err)
		assert.Equal(t, int64(1000+100*i), res.Tick)
	}
	_, err = c.GetNext()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, c.StopSession())
	require.NoError(t, c.Disconnect())
}

func TestReplayRealtimePacing(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 4))
	require.NoError(t, err)
	defer r.Close()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewReplayClient(r, WithClock(clock))
	require.NoError(t, c.Connect())
	_, err = c.SetupSession(nil)
	require.NoError(t, err)
	require.NoError(t, c.StartSession(nil))

	for i := 0; i < 4; i++ {
		_, err := c.GetNext()
		require.NoError(t, err)
	}

	// first result anchors the schedule; each later frame is 100 ticks
	// (0.1 s) apart and the mock never advances on its own
	want := []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}
	assert.Equal(t, want, clock.Sleeps())
}

func TestReplaySkipsSleepWhenBehindSchedule(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 3))
	require.NoError(t, err)
	defer r.Close()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewReplayClient(r, WithClock(clock))
	require.NoError(t, c.Connect())
	_, err = c.SetupSession(nil)
	require.NoError(t, err)
	require.NoError(t, c.StartSession(nil))

	_, err = c.GetNext()
	require.NoError(t, err)

	// the consumer stalls well past the next frame's schedule
	clock.Advance(time.Second)
	_, err = c.GetNext()
	require.NoError(t, err)
	assert.Empty(t, clock.Sleeps())
}

func TestReplayNoPacingWhenRealtimeOff(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 3))
	require.NoError(t, err)
	defer r.Close()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewReplayClient(r, WithRealtime(false), WithClock(clock))
	require.NoError(t, c.Connect())
	_, err = c.SetupSession(nil)
	require.NoError(t, err)
	require.NoError(t, c.StartSession(nil))

	for i := 0; i < 3; i++ {
		_, err := c.GetNext()
		require.NoError(t, err)
	}
	assert.Empty(t, clock.Sleeps())
}

func TestReplaySessionsAdvanceThenExhaust(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 2, 1))
	require.NoError(t, err)
	defer r.Close()

	c := NewReplayClient(r, WithRealtime(false))
	require.NoError(t, c.Connect())

	for s := 0; s < 2; s++ {
		_, err := c.SetupSession(nil)
		require.NoError(t, err, "session %d", s)
	}

	_, err = c.SetupSession(nil)
	var xerr *a121.ReplayExhaustedError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, 2, xerr.Sessions)
}

func TestReplayCycleRepeatsSession(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 2))
	require.NoError(t, err)
	defer r.Close()

	c := NewReplayClient(r, WithRealtime(false), WithCycle())
	require.NoError(t, c.Connect())

	for round := 0; round < 3; round++ {
		_, err := c.SetupSession(nil)
		require.NoError(t, err, "round %d", round)
		require.NoError(t, c.StartSession(nil))
		for i := 0; i < 2; i++ {
			results, err := c.GetNext()
			require.NoError(t, err)
			res, err := results.Sole()
			require.NoError(t, err)
			assert.Equal(t, int64(1000+100*i), res.Tick)
		}
		require.NoError(t, c.StopSession())
	}
}

func TestReplayStatePreconditions(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 1))
	require.NoError(t, err)
	defer r.Close()

	c := NewReplayClient(r, WithRealtime(false))

	var serr *a121.ClientStateError
	_, err = c.SetupSession(nil)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "setup_session", serr.Op)
	assert.Equal(t, "disconnected", serr.State)

	require.ErrorAs(t, c.StartSession(nil), &serr)
	_, err = c.GetNext()
	require.ErrorAs(t, err, &serr)
	require.ErrorAs(t, c.StopSession(), &serr)
	_, err = c.ServerInfo()
	require.ErrorAs(t, err, &serr)

	require.NoError(t, c.Connect())
	require.ErrorAs(t, c.Connect(), &serr)
}

func TestReplayRerecords(t *testing.T) {
	t.Parallel()

	r, err := OpenRecord(writeReplaySource(t, 1, 2))
	require.NoError(t, err)
	defer r.Close()

	copyPath := filepath.Join(t.TempDir(), "copy.db")
	rec, err := NewRecorder(copyPath)
	require.NoError(t, err)

	c := NewReplayClient(r, WithRealtime(false))
	require.NoError(t, c.Connect())
	_, err = c.SetupSession(nil)
	require.NoError(t, err)
	require.NoError(t, c.StartSession(rec))
	for i := 0; i < 2; i++ {
		_, err := c.GetNext()
		require.NoError(t, err)
	}
	require.NoError(t, c.StopSession())
	require.NoError(t, c.Disconnect())

	cp, err := OpenRecord(copyPath)
	require.NoError(t, err)
	defer cp.Close()
	require.Equal(t, 1, cp.NumSessions())
	n, err := cp.NumResults(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, testClientInfo, cp.ClientInfo())
}
