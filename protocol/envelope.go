package protocol

import (
	"encoding/json"
	"time"
)

// wire event types published by the gateway daemon
const (
	EventTypeAgentStatus   = "agent.status"
	EventTypeTaskCreated   = "task.created"
	EventTypeTaskUpdated   = "task.updated"
	EventTypeLogEntry      = "log.entry"
	EventTypeSessionStart  = "session.start"
	EventTypeSessionEnd    = "session.end"
	EventTypeCronTriggered = "cron.triggered"
	EventTypeCostUpdate    = "cost.update"
)

// liveness markers. The probe is sent by the client, the reply is consumed
// inside the connection and never forwarded to listeners.
const (
	EventTypePing = "ping"
	EventTypePong = "pong"
)

// Envelope is the frame shape for both directions on the gateway socket.
// `Type` is the dispatch key. `Payload` and `Timestamp` may be absent
// (the ping probe carries neither).
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

func NewEnvelope(eventType string, payload any) (*Envelope, error) {
	envelope := &Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		envelope.Payload = payloadBytes
	}
	return envelope, nil
}

// ParseEnvelope decodes a raw frame. A frame that is not a JSON object with
// a non-empty `type` is not an envelope; the caller routes it to the
// raw-message channel instead of dropping it.
func ParseEnvelope(frame []byte) (*Envelope, bool) {
	envelope := &Envelope{}
	if err := json.Unmarshal(frame, envelope); err != nil {
		return nil, false
	}
	if envelope.Type == "" {
		return nil, false
	}
	return envelope, true
}
