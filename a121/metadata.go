package a121

import (
	"encoding/json"
	"fmt"
)

// DataType tags the raw element type of a sensor's frame buffer.
type DataType int

const (
	// DataTypeUint16 is unsigned 16-bit amplitude data.
	DataTypeUint16 DataType = iota
	// DataTypeInt16 is signed 16-bit data.
	DataTypeInt16
	// DataTypeInt16Complex is a signed 16-bit real/imaginary pair per
	// sample (4 bytes per element).
	DataTypeInt16Complex
)

var dataTypeNames = map[DataType]string{
	DataTypeUint16:       "uint_16",
	DataTypeInt16:        "int_16",
	DataTypeInt16Complex: "int_16_complex",
}

func (d DataType) String() string {
	if n, ok := dataTypeNames[d]; ok {
		return n
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ByteSize returns the element width in bytes: 2 per component, so 4 for
// complex pairs.
func (d DataType) ByteSize() int {
	if d == DataTypeInt16Complex {
		return 4
	}
	return 2
}

func (d DataType) MarshalJSON() ([]byte, error) {
	n, ok := dataTypeNames[d]
	if !ok {
		return nil, fmt.Errorf("unknown data type %d", int(d))
	}
	return json.Marshal(n)
}

func (d *DataType) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for k, v := range dataTypeNames {
		if v == n {
			*d = k
			return nil
		}
	}
	return fmt.Errorf("unknown data type %q", n)
}

// Metadata describes the binary frame layout one sensor produces for the
// duration of a session. It is created once at session setup and immutable
// thereafter. All lengths and offsets count elements, not bytes.
type Metadata struct {
	// FrameDataLength is the total number of elements in one frame.
	FrameDataLength int `json:"frame_data_length"`
	// SweepDataLength is the number of elements in one sweep.
	SweepDataLength int `json:"sweep_data_length"`
	// SubsweepDataOffset holds the element offset of each subsweep within
	// a sweep.
	SubsweepDataOffset []int `json:"subsweep_data_offset"`
	// SubsweepDataLength holds the element count of each subsweep.
	SubsweepDataLength []int `json:"subsweep_data_length"`
	// DataType is the raw element type of the frame buffer.
	DataType DataType `json:"data_type"`
	// CalibrationTemperature is the temperature at which the sensor was
	// last calibrated, in degrees Celsius.
	CalibrationTemperature int `json:"calibration_temperature"`
	// MaxSweepRate is the highest sweep rate the configuration can
	// sustain, in Hz.
	MaxSweepRate float64 `json:"max_sweep_rate"`
	// TickPeriod is the server tick period for the session; 0 when the
	// update rate is unlocked.
	TickPeriod int `json:"tick_period"`
	// HighSpeedMode reports whether the sensor runs its fast sampling
	// path for this configuration.
	HighSpeedMode bool `json:"high_speed_mode"`
}

// NumSubsweeps returns the number of subsweeps in the layout.
func (m Metadata) NumSubsweeps() int { return len(m.SubsweepDataOffset) }

// SweepsPerFrame derives the sweep count from the frame and sweep lengths.
func (m Metadata) SweepsPerFrame() int {
	if m.SweepDataLength == 0 {
		return 0
	}
	return m.FrameDataLength / m.SweepDataLength
}

// FrameByteSize returns the size in bytes of one raw frame.
func (m Metadata) FrameByteSize() int {
	return m.FrameDataLength * m.DataType.ByteSize()
}

// Validate checks internal consistency of the layout.
func (m Metadata) Validate() error {
	if m.FrameDataLength <= 0 || m.SweepDataLength <= 0 {
		return fmt.Errorf("non-positive frame (%d) or sweep (%d) data length",
			m.FrameDataLength, m.SweepDataLength)
	}
	if m.FrameDataLength%m.SweepDataLength != 0 {
		return fmt.Errorf("frame data length %d is not a multiple of sweep data length %d",
			m.FrameDataLength, m.SweepDataLength)
	}
	if len(m.SubsweepDataOffset) == 0 || len(m.SubsweepDataOffset) != len(m.SubsweepDataLength) {
		return fmt.Errorf("subsweep offsets (%d) and lengths (%d) must be non-empty and equal in count",
			len(m.SubsweepDataOffset), len(m.SubsweepDataLength))
	}
	for i, off := range m.SubsweepDataOffset {
		if off < 0 || m.SubsweepDataLength[i] <= 0 || off+m.SubsweepDataLength[i] > m.SweepDataLength {
			return fmt.Errorf("subsweep %d ([%d, %d)) exceeds sweep data length %d",
				i, off, off+m.SubsweepDataLength[i], m.SweepDataLength)
		}
	}
	return nil
}
