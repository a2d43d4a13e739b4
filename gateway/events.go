package gateway

import (
	"time"
)

// lifecycle event types emitted by the connection itself, never from the wire
const (
	EventTypeConnect          = "connect"
	EventTypeDisconnect       = "disconnect"
	EventTypeReconnecting     = "reconnecting"
	EventTypeReconnectFailed  = "reconnect_failed"
	EventTypeHeartbeatTimeout = "heartbeat_timeout"
	EventTypeStateChange      = "state_change"
	EventTypeError            = "error"

	// the generic channel. Carries the full *protocol.Envelope, where the
	// per-type channels carry only the payload.
	EventTypeMessage = "message"

	// frames that do not parse as envelopes. Never dropped silently.
	EventTypeRawMessage = "raw_message"
)

type ConnectEvent struct {
	Url string
}

type DisconnectEvent struct {
	Intentional  bool
	Code         int
	Reason       string
	WasConnected bool
}

type ReconnectingEvent struct {
	Attempt int
	Delay   time.Duration
}

type ReconnectFailedEvent struct {
	Attempts int
}

type HeartbeatTimeoutEvent struct{}

type StateChangeEvent struct {
	State ConnectionState
}

type ErrorEvent struct {
	Err error
}

type RawMessageEvent struct {
	Data []byte
}
