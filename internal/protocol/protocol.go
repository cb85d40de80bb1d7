// Package protocol implements the exploration server wire codec: stateless
// encode/decode pairs for every command. Commands are newline-terminated
// compact JSON objects with a "cmd" field; responses are newline-terminated
// JSON objects with a "status" field. The get_next response is followed by a
// raw binary payload whose layout is described by the session metadata.
package protocol

import (
	"encoding/json"

	"github.com/acconeer/exptool-go/a121"
)

// Delimiter terminates every command and text response.
var Delimiter = []byte("\n")

type command struct {
	Cmd string `json:"cmd"`
}

func encodeCommand(name string) []byte {
	b, _ := json.Marshal(command{Cmd: name})
	return append(b, Delimiter...)
}

// EncodeGetSystemInfo encodes the get_system_info command.
func EncodeGetSystemInfo() []byte { return encodeCommand("get_system_info") }

// EncodeGetSensorInfo encodes the get_sensor_info command.
func EncodeGetSensorInfo() []byte { return encodeCommand("get_sensor_info") }

// EncodeStartStreaming encodes the start_streaming command.
func EncodeStartStreaming() []byte { return encodeCommand("start_streaming") }

// EncodeStopStreaming encodes the stop_streaming command.
func EncodeStopStreaming() []byte { return encodeCommand("stop_streaming") }

// EncodeGetNext encodes the get_next command.
func EncodeGetNext() []byte { return encodeCommand("get_next") }

// checkStatus decodes the status field and verifies it matches want. A
// status of "error" surfaces the device-provided message verbatim as a
// ServerError; any other unexpected status is a ProtocolError.
func checkStatus(line []byte, want string) (json.RawMessage, error) {
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, &a121.ProtocolError{Msg: "malformed response", Err: err}
	}
	if resp.Status == "error" {
		return nil, &a121.ServerError{Message: resp.Message}
	}
	if resp.Status != want {
		return nil, a121.NewProtocolError("unexpected status %q, want %q", resp.Status, want)
	}
	return json.RawMessage(line), nil
}

// DecodeSystemInfo decodes the get_system_info response into ServerInfo.
func DecodeSystemInfo(line []byte) (a121.ServerInfo, error) {
	if _, err := checkStatus(line, "ok"); err != nil {
		return a121.ServerInfo{}, err
	}
	var resp struct {
		SystemInfo *a121.ServerInfo `json:"system_info"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return a121.ServerInfo{}, &a121.ProtocolError{Msg: "malformed system_info", Err: err}
	}
	if resp.SystemInfo == nil {
		return a121.ServerInfo{}, a121.NewProtocolError("response is missing system_info")
	}
	if resp.SystemInfo.TicksPerSecond <= 0 {
		return a121.ServerInfo{}, a121.NewProtocolError("system_info has non-positive ticks_per_second %d",
			resp.SystemInfo.TicksPerSecond)
	}
	return *resp.SystemInfo, nil
}

// DecodeSensorInfo decodes the get_sensor_info response into the set of
// connected sensor ids. Sensor ids are 1-based slot positions.
func DecodeSensorInfo(line []byte) ([]int, error) {
	if _, err := checkStatus(line, "ok"); err != nil {
		return nil, err
	}
	var resp struct {
		SensorInfo []struct {
			Connected bool `json:"connected"`
		} `json:"sensor_info"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, &a121.ProtocolError{Msg: "malformed sensor_info", Err: err}
	}
	if resp.SensorInfo == nil {
		return nil, a121.NewProtocolError("response is missing sensor_info")
	}
	var ids []int
	for i, s := range resp.SensorInfo {
		if s.Connected {
			ids = append(ids, i+1)
		}
	}
	return ids, nil
}

// DecodeStartStreaming verifies the start_streaming response.
func DecodeStartStreaming(line []byte) error {
	_, err := checkStatus(line, "start")
	return err
}

// DecodeStopStreaming verifies the stop_streaming response.
func DecodeStopStreaming(line []byte) error {
	_, err := checkStatus(line, "stop")
	return err
}

type setupRequest struct {
	Cmd        string         `json:"cmd"`
	Groups     [][]setupEntry `json:"groups"`
	UpdateRate *float64       `json:"update_rate,omitempty"`
}

type setupEntry struct {
	SensorID int               `json:"sensor_id"`
	Config   a121.SensorConfig `json:"config"`
}

// EncodeSetup encodes the setup command. Groups preserve the session
// config's group/sensor order; config enum values serialize to their wire
// names and unlocked rates serialize as the 0 sentinel (handled by the
// config marshalers).
func EncodeSetup(sc *a121.SessionConfig) ([]byte, error) {
	req := setupRequest{Cmd: "setup"}
	for _, g := range sc.Groups().Groups() {
		wg := make([]setupEntry, len(g))
		for i, e := range g {
			wg[i] = setupEntry{SensorID: e.SensorID, Config: e.Value}
		}
		req.Groups = append(req.Groups, wg)
	}
	if rate, ok := sc.UpdateRate(); ok {
		req.UpdateRate = &rate
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, &a121.ProtocolError{Msg: "encode setup", Err: err}
	}
	return append(b, Delimiter...), nil
}

// DecodeSetupResponse decodes the setup response into per-sensor metadata.
// The response carries metadata in the same positional group/entry order as
// the setup command that was sent; matching is strictly positional, which is
// the wire contract.
func DecodeSetupResponse(line []byte, sc *a121.SessionConfig) (*a121.Extended[a121.Metadata], error) {
	if _, err := checkStatus(line, "ok"); err != nil {
		return nil, err
	}
	var resp struct {
		Metadata [][]a121.Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, &a121.ProtocolError{Msg: "malformed setup response", Err: err}
	}
	if resp.Metadata == nil {
		return nil, a121.NewProtocolError("setup response is missing metadata")
	}

	groups := sc.Groups().Groups()
	if len(resp.Metadata) != len(groups) {
		return nil, a121.NewProtocolError("setup response has %d metadata groups, config has %d",
			len(resp.Metadata), len(groups))
	}
	for gi, g := range groups {
		if len(resp.Metadata[gi]) != len(g) {
			return nil, a121.NewProtocolError("setup response group %d has %d entries, config has %d",
				gi, len(resp.Metadata[gi]), len(g))
		}
	}

	md, err := a121.MapExtended(sc.Groups(), func(group, sensorID int, _ a121.SensorConfig) (a121.Metadata, error) {
		m := resp.Metadata[group][indexOf(groups[group], sensorID)]
		if err := m.Validate(); err != nil {
			return a121.Metadata{}, a121.NewProtocolError("metadata for sensor %d: %v", sensorID, err)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return md, nil
}

func indexOf(g a121.Group[a121.SensorConfig], sensorID int) int {
	for i, e := range g {
		if e.SensorID == sensorID {
			return i
		}
	}
	return -1
}

// ResultInfo is the small per-sensor record in the get_next header.
type ResultInfo struct {
	Tick              int64 `json:"tick"`
	DataSaturated     bool  `json:"data_saturated"`
	FrameDelayed      bool  `json:"frame_delayed"`
	CalibrationNeeded bool  `json:"calibration_needed"`
	Temperature       int   `json:"temperature"`
}

// GetNextHeader is the decoded text half of the two-phase get_next response:
// per-sensor result infos plus the byte size of the binary payload that
// follows on the wire.
type GetNextHeader struct {
	ResultInfo  [][]ResultInfo
	PayloadSize int
}

// DecodeGetNextHeader decodes the get_next text header.
func DecodeGetNextHeader(line []byte) (GetNextHeader, error) {
	if _, err := checkStatus(line, "ok"); err != nil {
		return GetNextHeader{}, err
	}
	var resp struct {
		ResultInfo  [][]ResultInfo `json:"result_info"`
		PayloadSize int            `json:"payload_size"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return GetNextHeader{}, &a121.ProtocolError{Msg: "malformed get_next header", Err: err}
	}
	if resp.ResultInfo == nil {
		return GetNextHeader{}, a121.NewProtocolError("get_next header is missing result_info")
	}
	if resp.PayloadSize < 0 {
		return GetNextHeader{}, a121.NewProtocolError("negative payload_size %d", resp.PayloadSize)
	}
	return GetNextHeader{ResultInfo: resp.ResultInfo, PayloadSize: resp.PayloadSize}, nil
}

// AssembleResults is the second phase of the get_next decode: the binary
// payload is sliced sensor by sensor using the lengths recorded in each
// sensor's metadata, in the session's group/entry order, and paired with the
// header's result infos.
func AssembleResults(header GetNextHeader, payload []byte, md *a121.Extended[a121.Metadata], ticksPerSecond int) (*a121.Extended[a121.Result], error) {
	if len(payload) != header.PayloadSize {
		return nil, a121.NewProtocolError("payload is %d bytes, header declared %d",
			len(payload), header.PayloadSize)
	}
	groups := md.Groups()
	if len(header.ResultInfo) != len(groups) {
		return nil, a121.NewProtocolError("result_info has %d groups, session has %d",
			len(header.ResultInfo), len(groups))
	}
	for gi, g := range groups {
		if len(header.ResultInfo[gi]) != len(g) {
			return nil, a121.NewProtocolError("result_info group %d has %d entries, session has %d",
				gi, len(header.ResultInfo[gi]), len(g))
		}
	}

	offset := 0
	entryIndex := make(map[int]int, len(groups))
	results, err := a121.MapExtended(md, func(group, sensorID int, m a121.Metadata) (a121.Result, error) {
		ei := entryIndex[group]
		entryIndex[group] = ei + 1
		info := header.ResultInfo[group][ei]

		size := m.FrameByteSize()
		if offset+size > len(payload) {
			return a121.Result{}, a121.NewProtocolError(
				"payload exhausted slicing sensor %d: need %d bytes at offset %d of %d",
				sensorID, size, offset, len(payload))
		}
		raw := make([]byte, size)
		copy(raw, payload[offset:offset+size])
		offset += size

		return a121.Result{
			DataSaturated:     info.DataSaturated,
			FrameDelayed:      info.FrameDelayed,
			CalibrationNeeded: info.CalibrationNeeded,
			Temperature:       info.Temperature,
			Tick:              info.Tick,
			RawFrame:          raw,
			Context: a121.ResultContext{
				Metadata:       m,
				TicksPerSecond: ticksPerSecond,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if offset != len(payload) {
		return nil, a121.NewProtocolError("payload has %d trailing bytes after slicing all sensors",
			len(payload)-offset)
	}
	return results, nil
}
