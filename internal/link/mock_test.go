package link

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acconeer/exptool-go/a121"
)

func TestMockLinkScriptedResponder(t *testing.T) {
	t.Parallel()

	l := NewMockLink()
	l.Responder = func(sent []byte) []byte {
		return append([]byte("echo: "), sent...)
	}
	require.NoError(t, l.Connect())

	require.NoError(t, l.Send([]byte("ping\n")))
	line, err := l.RecvUntil([]byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, "echo: ping\n", string(line))

	sent := l.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ping\n", string(sent[0]))
}

func TestMockLinkShortBufferTimesOut(t *testing.T) {
	t.Parallel()

	l := NewMockLink()
	require.NoError(t, l.Connect())
	l.Enqueue([]byte("abc"))

	_, err := l.Recv(4)
	assert.ErrorIs(t, err, a121.ErrLinkTimeout)

	got, err := l.Recv(3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMockLinkErrorInjection(t *testing.T) {
	t.Parallel()

	l := NewMockLink()
	l.ConnectErr = errors.New("no device")
	require.Error(t, l.Connect())
	require.NoError(t, l.Connect())

	l.SendErr = errors.New("write failed")
	assert.Error(t, l.Send([]byte("x")))
	assert.NoError(t, l.Send([]byte("x")))
}

func TestMockLinkDisconnectDropsBuffer(t *testing.T) {
	t.Parallel()

	l := NewMockLink()
	require.NoError(t, l.Connect())
	l.Enqueue([]byte("stale\n"))
	require.NoError(t, l.Disconnect())
	require.NoError(t, l.Connect())

	_, err := l.RecvUntil([]byte("\n"))
	assert.ErrorIs(t, err, a121.ErrLinkTimeout)
}
