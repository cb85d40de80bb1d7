package a121

// Client is the session-lifecycle interface shared by the live client and
// the replay client. Operations are synchronous and blocking; a Client is
// not safe for concurrent use without external serialisation.
//
// The state machine is Disconnected → Connected → SessionSetup →
// SessionStarted, with StopSession returning to SessionSetup and Disconnect
// valid from any state. Calling an operation outside its required state
// fails with a *ClientStateError and leaves the state unchanged.
type Client interface {
	// Connect establishes the transport link and queries server and
	// sensor information. On failure the client stays Disconnected.
	Connect() error

	// SetupSession negotiates a measurement session and returns the
	// per-sensor frame layout, positionally matched to the config's
	// group/sensor order. Allowed from Connected and SessionSetup.
	// For non-extended sessions the returned structure's Sole accessor
	// unwraps the single metadata value.
	SetupSession(config *SessionConfig) (*Extended[Metadata], error)

	// StartSession starts streaming. A non-nil recorder is started with
	// the session context before the first frame is requested.
	StartSession(recorder Recorder) error

	// GetNext blocks for the next frame of every configured sensor and
	// returns the reassembled results, feeding them to an attached
	// recorder first. A failed GetNext leaves the session started.
	GetNext() (*Extended[Result], error)

	// StopSession stops streaming and stops an attached recorder.
	StopSession() error

	// Disconnect releases the link. Valid from any state; the client is
	// always Disconnected afterwards.
	Disconnect() error

	// ServerInfo returns the connection's server information. Only valid
	// once connected.
	ServerInfo() (ServerInfo, error)

	// ClientInfo describes how this client reaches the server.
	ClientInfo() ClientInfo
}

// Recorder is a write-only sink attached to a live or replayed session.
// Start establishes the session structure; every Sample call must carry
// results in exactly that shape; Stop flushes and releases resources owned
// by the recorder.
type Recorder interface {
	Start(clientInfo ClientInfo, metadata *Extended[Metadata], serverInfo ServerInfo, config *SessionConfig) error
	Sample(results *Extended[Result]) error
	Stop() error
}
