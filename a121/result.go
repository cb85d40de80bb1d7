package a121

import (
	"encoding/binary"
	"fmt"
)

// ResultContext carries the session-scoped values a Result needs to
// interpret itself: the sensor's frame layout and the server tick rate. It
// is a read-back reference, never an ownership edge to the client.
type ResultContext struct {
	Metadata       Metadata
	TicksPerSecond int
}

// Result is one streamed measurement from one sensor. The raw frame buffer
// is kept as received from the wire (little-endian) and reinterpreted lazily
// through Frame and SubsweepFrame. Ownership passes to the caller when a
// result is returned; the client does not retain it.
type Result struct {
	// DataSaturated indicates that the sensor's receiver saturated during
	// the frame; data is likely corrupted.
	DataSaturated bool
	// FrameDelayed indicates the frame was delivered later than the
	// configured rate allowed.
	FrameDelayed bool
	// CalibrationNeeded indicates the sensor has drifted too far from its
	// calibration temperature and should be recalibrated.
	CalibrationNeeded bool
	// Temperature is the coarse sensor temperature in degrees Celsius.
	Temperature int
	// Tick is the server's monotonically increasing hardware counter at
	// frame completion.
	Tick int64
	// RawFrame is the frame buffer exactly as received.
	RawFrame []byte

	Context ResultContext
}

// TickTime returns the tick converted to seconds using the server tick
// rate.
func (r Result) TickTime() float64 {
	if r.Context.TicksPerSecond == 0 {
		return 0
	}
	return float64(r.Tick) / float64(r.Context.TicksPerSecond)
}

// Frame reinterprets the raw buffer as a sweeps-by-points matrix according
// to the result's metadata. Real-valued data types yield values with a zero
// imaginary part.
func (r Result) Frame() ([][]complex64, error) {
	md := r.Context.Metadata
	if err := md.Validate(); err != nil {
		return nil, err
	}
	if len(r.RawFrame) != md.FrameByteSize() {
		return nil, fmt.Errorf("raw frame is %d bytes, metadata expects %d",
			len(r.RawFrame), md.FrameByteSize())
	}
	sweeps := md.SweepsPerFrame()
	frame := make([][]complex64, sweeps)
	elem := md.DataType.ByteSize()
	for s := 0; s < sweeps; s++ {
		row := make([]complex64, md.SweepDataLength)
		base := s * md.SweepDataLength * elem
		for p := 0; p < md.SweepDataLength; p++ {
			row[p] = decodeElement(md.DataType, r.RawFrame[base+p*elem:])
		}
		frame[s] = row
	}
	return frame, nil
}

// SubsweepFrame slices the frame down to subsweep i using the metadata's
// offset/length pair, one row per sweep.
func (r Result) SubsweepFrame(i int) ([][]complex64, error) {
	md := r.Context.Metadata
	if i < 0 || i >= md.NumSubsweeps() {
		return nil, fmt.Errorf("subsweep index %d out of range [0, %d)", i, md.NumSubsweeps())
	}
	frame, err := r.Frame()
	if err != nil {
		return nil, err
	}
	off := md.SubsweepDataOffset[i]
	n := md.SubsweepDataLength[i]
	out := make([][]complex64, len(frame))
	for s, row := range frame {
		out[s] = row[off : off+n]
	}
	return out, nil
}

func decodeElement(dt DataType, b []byte) complex64 {
	switch dt {
	case DataTypeInt16Complex:
		re := int16(binary.LittleEndian.Uint16(b))
		im := int16(binary.LittleEndian.Uint16(b[2:]))
		return complex(float32(re), float32(im))
	case DataTypeInt16:
		return complex(float32(int16(binary.LittleEndian.Uint16(b))), 0)
	default:
		return complex(float32(binary.LittleEndian.Uint16(b)), 0)
	}
}
