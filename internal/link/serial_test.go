package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "zero value gets defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit values kept",
			in:   PortOptions{BaudRate: 921600, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 921600, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "parity names normalised",
			in:   PortOptions{Parity: "even"},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name: "odd parity shorthand",
			in:   PortOptions{Parity: " o "},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{name: "invalid data bits", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "invalid stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "invalid parity", in: PortOptions{Parity: "mark"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	t.Parallel()

	mode, err := PortOptions{Parity: "odd", StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.StopBits(2), mode.StopBits)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

func TestSerialLinkBaudrate(t *testing.T) {
	t.Parallel()

	l := NewSerialLink("/dev/ttyUSB0", PortOptions{})
	assert.Equal(t, "/dev/ttyUSB0", l.Device())
	assert.Equal(t, 115200, l.Baudrate())

	l = NewSerialLink("/dev/ttyUSB0", PortOptions{BaudRate: 2000000})
	assert.Equal(t, 2000000, l.Baudrate())
}

func TestSerialLinkNotConnected(t *testing.T) {
	t.Parallel()

	l := NewSerialLink("/dev/ttyUSB0", PortOptions{})
	assert.Error(t, l.Send([]byte("x")))
	_, err := l.Recv(1)
	assert.Error(t, err)
	assert.NoError(t, l.Disconnect())
}
