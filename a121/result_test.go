package a121

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func complexFrameBytes(t *testing.T, frame [][]complex64) []byte {
	t.Helper()
	var b []byte
	for _, row := range frame {
		for _, v := range row {
			b = binary.LittleEndian.AppendUint16(b, uint16(int16(real(v))))
			b = binary.LittleEndian.AppendUint16(b, uint16(int16(imag(v))))
		}
	}
	return b
}

func TestResultFrameComplex(t *testing.T) {
	t.Parallel()

	// Two subsweeps per sweep: [0, 2) and [2, 5). Two sweeps per frame.
	md := Metadata{
		FrameDataLength:    10,
		SweepDataLength:    5,
		SubsweepDataOffset: []int{0, 2},
		SubsweepDataLength: []int{2, 3},
		DataType:           DataTypeInt16Complex,
	}
	require.NoError(t, md.Validate())
	assert.Equal(t, 2, md.SweepsPerFrame())
	assert.Equal(t, 40, md.FrameByteSize())

	want := [][]complex64{
		{complex(1, -1), complex(2, -2), complex(3, -3), complex(4, -4), complex(5, -5)},
		{complex(10, 1), complex(20, 2), complex(30, 3), complex(40, 4), complex(50, 5)},
	}
	res := Result{
		RawFrame: complexFrameBytes(t, want),
		Context:  ResultContext{Metadata: md},
	}

	frame, err := res.Frame()
	require.NoError(t, err)
	assert.Equal(t, want, frame)

	first, err := res.SubsweepFrame(0)
	require.NoError(t, err)
	assert.Equal(t, [][]complex64{want[0][0:2], want[1][0:2]}, first)

	second, err := res.SubsweepFrame(1)
	require.NoError(t, err)
	assert.Equal(t, [][]complex64{want[0][2:5], want[1][2:5]}, second)

	_, err = res.SubsweepFrame(2)
	assert.Error(t, err)
}

func TestResultFrameRealTypes(t *testing.T) {
	t.Parallel()

	md := Metadata{
		FrameDataLength:    3,
		SweepDataLength:    3,
		SubsweepDataOffset: []int{0},
		SubsweepDataLength: []int{3},
	}

	t.Run("uint16", func(t *testing.T) {
		md := md
		md.DataType = DataTypeUint16
		raw := make([]byte, 6)
		binary.LittleEndian.PutUint16(raw[0:], 0)
		binary.LittleEndian.PutUint16(raw[2:], 1000)
		binary.LittleEndian.PutUint16(raw[4:], 65535)
		res := Result{RawFrame: raw, Context: ResultContext{Metadata: md}}
		frame, err := res.Frame()
		require.NoError(t, err)
		assert.Equal(t, [][]complex64{{0, 1000, 65535}}, frame)
	})

	t.Run("int16", func(t *testing.T) {
		md := md
		md.DataType = DataTypeInt16
		raw := make([]byte, 6)
		vMin, vNeg := int16(-32768), int16(-1)
		binary.LittleEndian.PutUint16(raw[0:], uint16(vMin))
		binary.LittleEndian.PutUint16(raw[2:], uint16(vNeg))
		binary.LittleEndian.PutUint16(raw[4:], 32767)
		res := Result{RawFrame: raw, Context: ResultContext{Metadata: md}}
		frame, err := res.Frame()
		require.NoError(t, err)
		assert.Equal(t, [][]complex64{{-32768, -1, 32767}}, frame)
	})
}

func TestResultFrameSizeMismatch(t *testing.T) {
	t.Parallel()

	md := Metadata{
		FrameDataLength:    4,
		SweepDataLength:    4,
		SubsweepDataOffset: []int{0},
		SubsweepDataLength: []int{4},
		DataType:           DataTypeInt16Complex,
	}
	res := Result{RawFrame: make([]byte, 15), Context: ResultContext{Metadata: md}}
	_, err := res.Frame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "15 bytes")
}

func TestTickTime(t *testing.T) {
	t.Parallel()

	r := Result{Tick: 150, Context: ResultContext{TicksPerSecond: 1000}}
	assert.InDelta(t, 0.15, r.TickTime(), 1e-9)

	r = Result{Tick: 150}
	assert.Zero(t, r.TickTime())
}

func TestMetadataValidate(t *testing.T) {
	t.Parallel()

	valid := Metadata{
		FrameDataLength:    10,
		SweepDataLength:    5,
		SubsweepDataOffset: []int{0, 2},
		SubsweepDataLength: []int{2, 3},
		DataType:           DataTypeInt16Complex,
	}

	tests := []struct {
		name    string
		mutate  func(*Metadata)
		wantErr bool
	}{
		{"valid", func(*Metadata) {}, false},
		{"zero frame length", func(m *Metadata) { m.FrameDataLength = 0 }, true},
		{"frame not multiple of sweep", func(m *Metadata) { m.FrameDataLength = 7 }, true},
		{"missing subsweeps", func(m *Metadata) { m.SubsweepDataOffset = nil }, true},
		{"offset length count mismatch", func(m *Metadata) { m.SubsweepDataLength = []int{2} }, true},
		{"subsweep past sweep end", func(m *Metadata) { m.SubsweepDataLength = []int{2, 4} }, true},
		{"negative offset", func(m *Metadata) { m.SubsweepDataOffset = []int{-1, 2} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.SubsweepDataOffset = append([]int(nil), valid.SubsweepDataOffset...)
			m.SubsweepDataLength = append([]int(nil), valid.SubsweepDataLength...)
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
