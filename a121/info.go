package a121

// ServerInfo identifies the sensor module and its capabilities for the
// lifetime of a connection.
type ServerInfo struct {
	RSSVersion     string `json:"rss_version"`
	SensorCount    int    `json:"sensor_count"`
	TicksPerSecond int    `json:"ticks_per_second"`
	HardwareName   string `json:"hw,omitempty"`
	MaxBaudrate    int    `json:"max_baudrate,omitempty"`
}

// TransportKind is the transport variant a client was constructed over,
// resolved once at construction.
type TransportKind string

const (
	TransportSerial TransportKind = "serial"
	TransportSocket TransportKind = "socket"
	TransportMock   TransportKind = "mock"
)

// ClientInfo describes how the host side connected, immutable for the
// lifetime of a connection.
type ClientInfo struct {
	Transport TransportKind `json:"transport"`
	// SerialPort is the device path for serial transports.
	SerialPort string `json:"serial_port,omitempty"`
	Baudrate   int    `json:"baudrate,omitempty"`
	// Address and TCPPort identify the peer for socket transports.
	Address string `json:"address,omitempty"`
	TCPPort int    `json:"tcp_port,omitempty"`
}
